package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// The feed is public and read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	id     string
	conn   *websocket.Conn
	events chan models.PoolEvent
}

type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleWebSocket streams pool events; new clients first get the backlog.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// Subscribe before reading the backlog so nothing published in between
	// is lost; writePump drops the resulting duplicates.
	client := &Client{id: uuid.NewString(), conn: conn}
	client.events = s.hub.Subscribe(client.id)
	backlog := s.hub.Recent()
	metrics.WSClients.Inc()

	go client.writePump(backlog)
	go client.readPump(s)
}

func (client *Client) writePump(backlog []models.PoolEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	if err := client.write(WSMessage{Type: "backlog", Payload: backlog}); err != nil {
		return
	}
	sent := sentInBacklog(backlog)
	for {
		select {
		case ev, ok := <-client.events:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			if sent(ev) {
				continue
			}
			if err := client.write(WSMessage{Type: ev.Type, Payload: ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// sentInBacklog reports, once per backlog entry, whether a live event was
// already delivered in the backlog.
func sentInBacklog(backlog []models.PoolEvent) func(models.PoolEvent) bool {
	pending := make(map[models.PoolEvent]int, len(backlog))
	for _, ev := range backlog {
		pending[ev]++
	}
	return func(ev models.PoolEvent) bool {
		if pending[ev] == 0 {
			return false
		}
		pending[ev]--
		return true
	}
}

func (client *Client) write(msg WSMessage) error {
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return client.conn.WriteJSON(msg)
}

// readPump only watches for the close; clients have nothing to send.
func (client *Client) readPump(s *Server) {
	defer func() {
		s.hub.Unsubscribe(client.id)
		metrics.WSClients.Dec()
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
}

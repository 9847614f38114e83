package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/auth"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/game"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/notification"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/security"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/streams"
)

var (
	testNow = time.Unix(1700000000, 0)
	player  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wei     = big.NewInt(1e16)
)

type stubLedger struct {
	mu    sync.Mutex
	owner common.Address
	pools map[int64]*models.Pool
	bets  map[int64][]models.PlayerBet
}

func newStubLedger(owner common.Address) *stubLedger {
	return &stubLedger{owner: owner, pools: map[int64]*models.Pool{}, bets: map[int64][]models.PlayerBet{}}
}

func (l *stubLedger) addPool(id, players int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools[id] = &models.Pool{
		PoolID:       models.NewBigInt(id),
		EndTime:      models.NewBigInt(testNow.Add(5 * time.Minute).Unix()),
		TotalPlayers: models.NewBigInt(players),
		PlayersLeft:  models.NewBigInt(players),
		BaseAmount:   models.BigFrom(wei),
	}
}

func (l *stubLedger) PoolCount(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return big.NewInt(int64(len(l.pools))), nil
}

func (l *stubLedger) PoolDetail(_ context.Context, poolID *big.Int) (*models.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[poolID.Int64()]
	if !ok {
		return &models.Pool{PoolID: models.BigFrom(poolID)}, nil
	}
	cp := *p
	return &cp, nil
}

func (l *stubLedger) Bets(_ context.Context, poolID *big.Int) ([]models.PlayerBet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.PlayerBet(nil), l.bets[poolID.Int64()]...), nil
}

func (l *stubLedger) Stats(context.Context) (*models.Stats, error) {
	return &models.Stats{TotalPoolsCreated: models.NewBigInt(int64(len(l.pools)))}, nil
}

func (l *stubLedger) Owner(context.Context) (common.Address, error) { return l.owner, nil }

func (l *stubLedger) SetResult(_ context.Context, poolID, result *big.Int) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[poolID.Int64()]
	if !ok {
		return common.Hash{}, errors.New("execution reverted: pool does not exist")
	}
	p.Result = models.BigFrom(result)
	p.Ended = true
	return crypto.Keccak256Hash(poolID.Bytes(), result.Bytes()), nil
}

type stubActivity struct {
	board []models.LeaderboardEntry
	seen  []string
}

func (a *stubActivity) GetLeaderboard(_ context.Context, timeframe string, limit int) ([]models.LeaderboardEntry, error) {
	a.seen = append(a.seen, timeframe)
	if limit < len(a.board) {
		return a.board[:limit], nil
	}
	return a.board, nil
}

func (a *stubActivity) CountPlayers(context.Context, string) (int, error) {
	return len(a.board), nil
}

func (a *stubActivity) GetActivity(_ context.Context, user common.Address, _ int) ([]models.Activity, error) {
	return []models.Activity{{Kind: "bet_placed", PoolID: "1", User: user.Hex()}}, nil
}

func (a *stubActivity) Ping(context.Context) error { return nil }

type harness struct {
	srv    *Server
	ledger *stubLedger
	store  *streams.MemoryStore
	hub    *notification.Hub
}

type option func(*Deps)

func newHarness(t *testing.T, owner common.Address, opts ...option) *harness {
	t.Helper()
	ledger := newStubLedger(owner)
	store := streams.NewMemoryStore(owner)
	hub := notification.NewHub(10)
	svc := game.NewService(ledger, store, nil,
		game.WithPublisher(hub),
		game.WithClock(func() time.Time { return testNow }),
		game.WithRoller(func() (int64, error) { return 4, nil }))

	deps := Deps{Game: svc, Hub: hub}
	for _, opt := range opts {
		opt(&deps)
	}
	return &harness{srv: New(deps), ledger: ledger, store: store, hub: hub}
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestPoolActionRequiredFields(t *testing.T) {
	h := newHarness(t, player)

	tests := []struct {
		body map[string]any
		want string
	}{
		{map[string]any{"action": "createPool", "poolId": "1"}, "Missing required fields: poolId, totalPlayers, baseAmount"},
		{map[string]any{"action": "placeBet", "poolId": 1, "userAddress": player.Hex()}, "Missing required fields: poolId, userAddress, amount, targetValue"},
		{map[string]any{"action": "claimBet", "poolId": "1", "userAddress": player.Hex()}, "Missing required fields: poolId, userAddress, reward"},
		{map[string]any{"action": "setResult", "poolId": "1", "resultValue": nil}, "Missing required fields: poolId, resultValue"},
		{map[string]any{"action": "getPoolById"}, "Missing required field: poolId"},
		{map[string]any{"action": "getPoolBets", "poolId": ""}, "Missing required field: poolId"},
		{map[string]any{"action": "rollResult"}, "Missing required field: poolId"},
		{map[string]any{"action": "dance"}, "Unknown action: dance"},
		{map[string]any{"action": "getAllPools", "totalPoolCount": -1}, "Invalid totalPoolCount value"},
		{map[string]any{"action": "placeBet", "poolId": "1", "userAddress": "0x12", "amount": "1", "targetValue": 3}, `Invalid userAddress: "0x12"`},
		{map[string]any{"action": "getPoolById", "poolId": "one"}, `Invalid poolId: "one" is not an integer`},
		{map[string]any{"action": "createPool", "poolId": 1, "totalPlayers": 2, "baseAmount": "abc"}, `Invalid baseAmount: invalid ether amount "abc"`},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			code, body := h.do(t, http.MethodPost, "/api/pool", tc.body)
			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, tc.want, body["error"])
		})
	}
}

func TestCreatePoolAndReadBack(t *testing.T) {
	h := newHarness(t, player)
	events := h.hub.Subscribe("test")

	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{
		"action": "createPool", "poolId": 0, "totalPlayers": "3", "baseAmount": "0.01",
	})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "0", body["poolId"])
	require.NotEmpty(t, body["txHash"])

	ev := <-events
	require.Equal(t, models.EventPoolCreated, ev.Type)

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getPoolById", "poolId": "0"})
	require.Equal(t, http.StatusOK, code)
	pool := body["pool"].(map[string]any)
	require.Equal(t, "10000000000000000", pool["baseAmount"])
	require.Equal(t, "3", pool["totalPlayers"])
	require.Equal(t, "1700000600", pool["endTime"])
}

func TestGetPoolByIDNotFound(t *testing.T) {
	h := newHarness(t, player)
	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getPoolById", "poolId": "42"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Pool not found", body["error"])
}

func TestGetAllPools(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(0, 2)
	h.ledger.addPool(1, 4)
	h.ledger.addPool(2, 6)

	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getAllPools"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["pools"], 3)

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getAllPools", "totalPoolCount": "2"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["pools"], 2)

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getAllPools", "totalPoolCount": 0})
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["pools"])
}

func TestPlaceBetAndPoolBets(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(1, 2)

	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{
		"action": "placeBet", "poolId": "1", "userAddress": player.Hex(), "amount": wei.String(), "targetValue": 5,
	})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, true, body["success"])

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getPoolBets", "poolId": 1})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{}, body["bets"])

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{
		"action": "placeBet", "poolId": "1", "userAddress": player.Hex(), "amount": "1", "targetValue": 5,
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], "base amount")

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getPoolBets", "poolId": 1})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, body["bets"])
}

func TestClaimBeforeResolution(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(1, 2)

	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{
		"action": "claimBet", "poolId": "1", "userAddress": player.Hex(), "reward": "0",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Pool is not resolved yet", body["error"])
}

func TestSetAndRollResult(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(1, 2)
	h.ledger.addPool(2, 2)

	code, body := h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "setResult", "poolId": "1", "resultValue": "3"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "3", body["result"])

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "setResult", "poolId": "2", "resultValue": "9"})
	require.Equal(t, http.StatusBadRequest, code, body)

	code, body = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "rollResult", "poolId": "2"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "4", body["result"])
}

func TestPoints(t *testing.T) {
	h := newHarness(t, player)

	code, body := h.do(t, http.MethodPost, "/api/points", map[string]any{"action": "getUserPoints"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Missing required field: userAddress", body["error"])

	code, body = h.do(t, http.MethodPost, "/api/points", map[string]any{"action": "getPoints"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Unknown action: getPoints", body["error"])

	code, body = h.do(t, http.MethodPost, "/api/points", map[string]any{"action": "getUserPoints", "userAddress": player.Hex()})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "0", body["points"])
	require.Equal(t, "0", body["totalPoints"])
}

func TestStats(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(0, 2)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		code, body := h.do(t, method, "/api/stats", nil)
		require.Equal(t, http.StatusOK, code)
		stats := body["stats"].(map[string]any)
		require.Equal(t, "1", stats["totalPoolsCreated"])
	}
}

func TestReconcile(t *testing.T) {
	h := newHarness(t, player)
	h.ledger.addPool(5, 2)

	code, body := h.do(t, http.MethodGet, "/api/pool/5/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["inSync"])
	require.Equal(t, []any{"stream"}, body["diffs"])

	code, _ = h.do(t, http.MethodGet, "/api/pool/77/reconcile", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodGet, "/api/pool/x/reconcile", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func signLogin(t *testing.T, key *ecdsa.PrivateKey, nonce string) string {
	t.Helper()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(accounts.TextHash([]byte(auth.LoginMessage(addr, nonce))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func TestOwnerLoginGuardsWrites(t *testing.T) {
	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)
	other := crypto.PubkeyToAddress(otherKey.PublicKey)

	h := newHarness(t, owner, func(d *Deps) {
		d.Auth = auth.NewIssuer("test-secret", time.Hour)
	})
	create := map[string]any{"action": "createPool", "poolId": 1, "totalPlayers": 2, "baseAmount": "1"}

	code, body := h.do(t, http.MethodPost, "/api/pool", create)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "no authorization header", body["error"])

	code, _ = h.do(t, http.MethodPost, "/api/pool", create, "Authorization", "Bearer junk")
	require.Equal(t, http.StatusUnauthorized, code)

	login := func(key *ecdsa.PrivateKey) (int, map[string]any) {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		code, body := h.do(t, http.MethodPost, "/api/auth/nonce", map[string]any{"address": addr.Hex()})
		require.Equal(t, http.StatusOK, code)
		nonce := body["nonce"].(string)
		require.Equal(t, auth.LoginMessage(addr, nonce), body["message"])
		return h.do(t, http.MethodPost, "/api/auth/login", map[string]any{
			"address": addr.Hex(), "nonce": nonce, "signature": signLogin(t, key, nonce),
		})
	}

	code, body = login(otherKey)
	require.Equal(t, http.StatusForbidden, code, body)

	// A signature by someone else over the owner's nonce is rejected.
	code, body = h.do(t, http.MethodPost, "/api/auth/nonce", map[string]any{"address": owner.Hex()})
	require.Equal(t, http.StatusOK, code)
	nonce := body["nonce"].(string)
	code, _ = h.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"address": owner.Hex(), "nonce": nonce, "signature": signLogin(t, otherKey, nonce),
	})
	require.Equal(t, http.StatusUnauthorized, code)

	code, body = login(ownerKey)
	require.Equal(t, http.StatusOK, code, body)
	token := body["token"].(string)

	code, body = h.do(t, http.MethodPost, "/api/pool", create, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, code, body)

	// Reads and player writes stay open.
	code, _ = h.do(t, http.MethodPost, "/api/pool", map[string]any{"action": "getAllPools"})
	require.Equal(t, http.StatusOK, code)
	require.NotEqual(t, owner, other)
}

func TestLoginWithoutSecret(t *testing.T) {
	h := newHarness(t, player)
	code, _ := h.do(t, http.MethodPost, "/api/auth/login", map[string]any{"address": player.Hex(), "nonce": "n", "signature": "0x00"})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t, player)
	code, body := h.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.NotEmpty(t, body["error"])

	db := &stubActivity{board: []models.LeaderboardEntry{
		{Address: "0xa1", TotalPoolsPlayed: 3, TotalRewards: "0.02", Points: 100},
		{Address: "0xb2", TotalPoolsPlayed: 1, TotalRewards: "0", Points: 0},
	}}
	h = newHarness(t, player, func(d *Deps) { d.DB = db })

	code, body = h.do(t, http.MethodGet, "/api/leaderboard?timeframe=weekly&limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["leaderboard"], 1)
	require.Equal(t, float64(2), body["totalPlayers"])
	require.Equal(t, []string{"weekly"}, db.seen)

	code, _ = h.do(t, http.MethodGet, "/api/leaderboard?timeframe=yearly", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodGet, "/api/leaderboard?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodGet, "/api/players/"+player.Hex()+"/activity", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["activity"], 1)

	code, _ = h.do(t, http.MethodGet, "/api/players/bob/activity", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRateLimitAndHeaders(t *testing.T) {
	h := newHarness(t, player, func(d *Deps) {
		d.Limiter = security.NewIPRateLimiter(rate.Every(time.Hour), 1)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	code, body := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "too many requests", body["error"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t, player)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, player)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidJSON(t *testing.T) {
	h := newHarness(t, player)
	req := httptest.NewRequest(http.MethodPost, "/api/pool", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Invalid JSON body"}`, rec.Body.String())
}

func TestWebSocketFeed(t *testing.T) {
	h := newHarness(t, player)
	h.hub.Publish(models.PoolEvent{Type: models.EventPoolCreated, PoolID: "9"})

	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		Type    string             `json:"type"`
		Payload []models.PoolEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "backlog", msg.Type)
	require.Len(t, msg.Payload, 1)
	require.Equal(t, "9", msg.Payload[0].PoolID)

	h.hub.Publish(models.PoolEvent{Type: models.EventBetPlaced, PoolID: "9", User: player.Hex()})

	var live struct {
		Type    string           `json:"type"`
		Payload models.PoolEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&live))
	require.Equal(t, models.EventBetPlaced, live.Type)
	require.Equal(t, player.Hex(), live.Payload.User)
}

func TestBacklogEventsAreNotRepeatedLive(t *testing.T) {
	a := models.PoolEvent{Type: models.EventBetPlaced, PoolID: "1", TxHash: "0x01"}
	b := models.PoolEvent{Type: models.EventResultSet, PoolID: "1", TxHash: "0x02"}
	sent := sentInBacklog([]models.PoolEvent{a})

	require.True(t, sent(a))
	require.False(t, sent(a))
	require.False(t, sent(b))
}

func TestWebSocketSubscribesBeforeBacklog(t *testing.T) {
	h := newHarness(t, player)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first WSMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "backlog", first.Type)
	require.Equal(t, 1, h.hub.Subscribers())
}

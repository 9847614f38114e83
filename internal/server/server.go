package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/auth"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/game"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/notification"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/security"
)

// ActivityReader serves the leaderboard and player history.
// *database.Database implements it.
type ActivityReader interface {
	GetLeaderboard(ctx context.Context, timeframe string, limit int) ([]models.LeaderboardEntry, error)
	CountPlayers(ctx context.Context, timeframe string) (int, error)
	GetActivity(ctx context.Context, user common.Address, limit int) ([]models.Activity, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Game    *game.Service
	Hub     *notification.Hub
	DB      ActivityReader // optional
	Auth    *auth.Issuer
	Nonces  *security.NonceStore
	Limiter *security.IPRateLimiter
	Metrics prometheus.Gatherer
	Log     *zap.Logger

	// RequestTimeout bounds /api handlers; contract writes wait for a
	// receipt, so keep it generous.
	RequestTimeout time.Duration
}

type Server struct {
	router  *gin.Engine
	game    *game.Service
	hub     *notification.Hub
	db      ActivityReader
	auth    *auth.Issuer
	nonces  *security.NonceStore
	limiter *security.IPRateLimiter
	gather  prometheus.Gatherer
	log     *zap.Logger
	timeout time.Duration
}

func New(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		game:    d.Game,
		hub:     d.Hub,
		db:      d.DB,
		auth:    d.Auth,
		nonces:  d.Nonces,
		limiter: d.Limiter,
		gather:  d.Metrics,
		log:     d.Log,
		timeout: d.RequestTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("http")
	if s.hub == nil {
		s.hub = notification.NewHub(0)
	}
	if s.auth == nil {
		s.auth = auth.NewIssuer("", 0)
	}
	if s.nonces == nil {
		s.nonces = security.NewNonceStore(5 * time.Minute)
	}
	if s.gather == nil {
		s.gather = prometheus.DefaultGatherer
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID(), s.recovery(), s.accessLog(), s.securityMiddleware(), apiMetrics())

	s.router.GET("/health", s.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.deadline())
	{
		api.POST("/pool", s.Pool)
		api.GET("/pool/:id/reconcile", s.ReconcilePool)
		api.POST("/points", s.Points)
		api.GET("/stats", s.Stats)
		api.POST("/stats", s.Stats)

		auth := api.Group("/auth")
		{
			auth.POST("/nonce", s.Nonce)
			auth.POST("/login", s.Login)
		}

		api.GET("/leaderboard", s.Leaderboard)
		api.GET("/players/:address/activity", s.PlayerActivity)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (s *Server) Health(c *gin.Context) {
	status := gin.H{"status": "ok", "subscribers": s.hub.Subscribers()}
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			status["database"] = "down"
		} else {
			status["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, status)
}

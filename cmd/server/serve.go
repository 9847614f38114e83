package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/auth"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/cache"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/chain"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/config"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/database"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/game"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/notification"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/security"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/server"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/streams"
)

func serveCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Duration("resolver-interval", 0, "settle due pools with a server-side roll every interval (0 disables)")
	_ = v.BindPFlag("http_addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("resolver_interval", cmd.Flags().Lookup("resolver-interval"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting dicemania",
		zap.String("version", version),
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.ContractAddress),
		zap.String("streams_mode", cfg.StreamsMode))

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID, cfg.PrivateKey, log)
	if err != nil {
		return err
	}
	defer client.Close()
	if !client.CanWrite() {
		log.Warn("no private key configured, write actions will fail")
	}

	dice, err := chain.NewDiceMania(common.HexToAddress(cfg.ContractAddress), client)
	if err != nil {
		return err
	}

	store, err := newStore(cfg, client, log)
	if err != nil {
		return err
	}
	log.Info("streams publisher", zap.String("address", store.Publisher().Hex()))

	hub := notification.NewHub(50)
	opts := []game.Option{game.WithPublisher(hub)}

	var db *database.Database
	if cfg.DatabaseURL != "" {
		db, err = database.NewDatabase(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, game.WithRecorder(db))
	} else {
		log.Info("no database configured, leaderboard disabled")
	}

	c, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	opts = append(opts, game.WithCache(c))

	svc := game.NewService(dice, store, log, opts...)
	if client.CanWrite() {
		if err := svc.EnsureSchemas(ctx); err != nil {
			log.Warn("schema registration deferred", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := security.NewIPRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	go pruneLimiter(ctx, limiter)

	if cfg.ResolverInterval > 0 {
		if client.CanWrite() {
			go game.NewResolver(svc, cfg.ResolverInterval).Run(ctx)
		} else {
			log.Warn("resolver needs a private key, not starting")
		}
	}

	deps := server.Deps{
		Game:           svc,
		Hub:            hub,
		Auth:           auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Nonces:         security.NewNonceStore(5 * time.Minute),
		Limiter:        limiter,
		Metrics:        reg,
		Log:            log,
		RequestTimeout: cfg.RequestTimeout,
	}
	if db != nil {
		deps.DB = db
	}
	return server.New(deps).Run(ctx, cfg.HTTPAddr)
}

func newStore(cfg *config.Config, client *chain.Client, log *zap.Logger) (streams.Store, error) {
	switch cfg.StreamsMode {
	case config.StreamsMemory:
		publisher := cfg.Publisher()
		if publisher == (common.Address{}) {
			publisher = client.From()
		}
		log.Warn("streams index kept in memory, records are lost on restart")
		return streams.NewMemoryStore(publisher), nil
	case config.StreamsContract:
		return streams.NewContractStore(client, common.HexToAddress(cfg.StreamsAddress), cfg.Publisher(), log)
	}
	return nil, fmt.Errorf("unknown streams mode %q", cfg.StreamsMode)
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), func() {}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "dicemania:")
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

func pruneLimiter(ctx context.Context, limiter *security.IPRateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune(10 * time.Minute)
		}
	}
}

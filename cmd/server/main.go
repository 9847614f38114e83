package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/config"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/database"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	v := config.New()
	if err := rootCmd(v).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "dicemania",
		Short:         "DiceMania pool backend for Somnia",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-mode", "production", "production or development")
	_ = v.BindPFlag("log_mode", root.PersistentFlags().Lookup("log-mode"))

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return nil, nil, err
		}
		log, err := logging.New(cfg.LogMode)
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	root.AddCommand(serveCmd(v, load), migrateCmd(load), versionCmd())
	return root
}

type loader func() (*config.Config, *zap.Logger, error)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the activity tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("database_url is not set")
			}

			ctx, cancel := signalContext()
			defer cancel()
			db, err := database.NewDatabase(ctx, cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Migrate(ctx)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

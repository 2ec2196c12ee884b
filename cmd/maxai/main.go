package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/maxai/internal/app"
	"github.com/ent0n29/maxai/internal/config"
	"github.com/ent0n29/maxai/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "maxai",
		Short:        "Agentic assistant: model gateway, skills and memory behind one loop",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file (environment variables win)")

	load := func() (config.Config, zerolog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("config error: %w", err)
		}
		return cfg, logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr), nil
	}

	root.AddCommand(
		newServeCmd(load),
		newChatCmd(load),
		newSkillsCmd(load),
		newBenchCmd(),
	)
	return root
}

type loader func() (config.Config, zerolog.Logger, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := app.Build(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           res.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	res.Sessions.StartJanitor(runCtx, 5*time.Second)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err, ok := <-listenErr:
		if ok && err != nil {
			return fmt.Errorf("listen error: %w", err)
		}
	case <-ctx.Done():
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func newSkillsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List registered skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			res, err := app.Build(cmd.Context(), cfg, app.Options{Logger: zerolog.Nop()})
			if err != nil {
				return err
			}
			defer res.Cleanup()

			out := cmd.OutOrStdout()
			for _, def := range res.Skills.Definitions() {
				where := "client"
				if res.Agent.IsServerSkill(def.Name) {
					where = "server"
				}
				fmt.Fprintf(out, "%-12s %-7s %s\n", def.Name, where, def.Description)
			}
			return nil
		},
	}
}

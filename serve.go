package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"okinoko_treasury/internal/api"
	"okinoko_treasury/internal/config"
	"okinoko_treasury/sdk"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the treasury API",
		RunE:  withConfig(serveRun),
	}
}

func serveRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun(cfg)
	if cfg.JWTSecret == "" {
		return errors.New("jwtSecret must be set to serve the API")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t, err := openTreasury(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Error("failed to close treasury", "error", err)
		}
	}()

	gov, created, err := t.ensureInitialized(ctx, cfg.Governance)
	if err != nil {
		return fmt.Errorf("initialize treasury: %w", err)
	}
	if created {
		logger.Info("treasury initialized", "quorum", gov.Quorum, "vote_time", gov.VoteTime.String())
	}
	if err := t.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	opts := api.Options{
		Treasury: t.engine,
		Identity: sdk.Address(cfg.TreasuryIdentity),
		Tokens:   api.NewTokenService(cfg.JWTSecret, programName),
		Logger:   logger,
	}
	if cfg.RunMode.IsDevMode() {
		opts.DevLedger = t.ledger
		logger.Warn("dev mode: in-memory ledger with /dev routes enabled")
	} else {
		logger.Warn("no external ledger adapter configured, payments settle on the in-memory ledger")
	}
	handler, err := api.New(opts)
	if err != nil {
		return err
	}

	apiServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.Port), 10)),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsRouter := chi.NewRouter()
	metricsRouter.Use(middleware.Recoverer)
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.MetricsPort), 10)),
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

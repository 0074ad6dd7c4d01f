package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/rolebridge/pkg/api"
	"github.com/mihaimyh/rolebridge/pkg/bridge"
	zerologadapter "github.com/mihaimyh/rolebridge/pkg/bridge/logger/zerolog"
	prommetrics "github.com/mihaimyh/rolebridge/pkg/bridge/metrics/prometheus"
	"github.com/mihaimyh/rolebridge/pkg/config"
	"github.com/mihaimyh/rolebridge/pkg/discord"
	bridgestripe "github.com/mihaimyh/rolebridge/pkg/stripe"
)

const (
	gatewayReadyTimeout   = 30 * time.Second
	shutdownTimeout       = 15 * time.Second
	limiterCleanupEvery   = time.Minute
	breakerFailures       = 5
	breakerResetTimeout   = 30 * time.Second
	metricsNamespace      = "rolebridge"
	serverReadHeaderLimit = 10 * time.Second
)

func serveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the Discord bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			zl, err := newLogger(cfg.LogLevel, root.logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, zerologadapter.NewLogger(&zl))
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger bridge.Logger) error {
	mapping, err := cfg.Mapping()
	if err != nil {
		return err
	}

	verifier := bridgestripe.NewVerifier(cfg.StripeWebhookSecret)
	if !verifier.Configured() {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set, every webhook delivery will be rejected")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prommetrics.NewMetrics(reg, metricsNamespace)

	store, closeStore, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s ledger: %w", cfg.LedgerBackend, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close ledger", bridge.F("error", err))
		}
	}()
	breaker := bridge.NewDefaultCircuitBreaker(breakerFailures, breakerResetTimeout, func(state bridge.CircuitBreakerState) {
		metrics.RecordCircuitBreakerStateChange(string(state))
		logger.Warn("ledger circuit breaker state changed", bridge.F("state", string(state)))
	})
	ledger := bridge.NewCircuitBreakerLedger(store, breaker)

	conn, err := discord.NewConnection(cfg.DiscordToken, logger)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, gatewayReadyTimeout)
	err = conn.Open(openCtx)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close discord session", bridge.F("error", err))
		}
	}()
	directory, err := conn.Directory()
	if err != nil {
		return err
	}

	sessions, err := bridgestripe.NewClientSessions(cfg.StripeAPIKey)
	if err != nil {
		return err
	}
	checkout, err := bridgestripe.NewCheckout(bridgestripe.CheckoutConfig{
		Sessions:   sessions,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	reconciler, err := bridge.NewReconciler(bridge.ReconcilerConfig{
		CommunityID: cfg.DiscordGuildID,
		Mapping:     mapping,
		Directory:   directory,
		Ledger:      ledger,
		Prices:      checkout,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(api.Config{
		Verifier:          verifier,
		Reconciler:        reconciler,
		Mapping:           mapping,
		Checkout:          checkout,
		RateLimit:         cfg.WebhookRateLimit,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Ready:             conn.Ready,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		ReadHeaderTimeout: serverReadHeaderLimit,
	}
	return serveUntilDone(ctx, srv, handler, logger)
}

func serveUntilDone(ctx context.Context, srv *http.Server, handler *api.Handler, logger bridge.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", bridge.F("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		handler.RunLimiterCleanup(gctx, limiterCleanupEvery)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

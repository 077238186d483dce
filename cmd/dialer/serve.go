package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"outbound-dialer/internal/audit"
	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/config"
	"outbound-dialer/internal/dialer"
	"outbound-dialer/internal/httpapi"
	"outbound-dialer/internal/metrics"
	"outbound-dialer/internal/outcomes"
	"outbound-dialer/internal/reporting"
	"outbound-dialer/internal/routing"
	"outbound-dialer/internal/telephony"
	"outbound-dialer/pkg/logger"
	"outbound-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, event listener and pacing scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Root context that cancels on shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		return err
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()
	health := utils.NewDBHealth(db, 5*time.Second)

	var guard dialer.PacingGuard = dialer.NewLocalPacingGuard()
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rdb.Close()
		guard = dialer.NewRedisPacingGuard(rdb, 0, log)
	}

	var pub outcomes.Publisher = outcomes.NopPublisher{}
	if cfg.AMQPEnabled() {
		p, err := outcomes.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("amqp init: %w", err)
		}
		pub = p
	}
	defer pub.Close()

	ariCfg := telephony.ARIConfig{
		BaseURL:        cfg.ARI.URL,
		Username:       cfg.ARI.Username,
		Password:       cfg.ARI.Password,
		App:            cfg.ARI.App,
		RequestTimeout: cfg.ARI.RequestTimeout,
	}
	gw := telephony.NewARIClient(ariCfg)
	// The only fatal runtime dependency: without the platform nothing can be dialed.
	if err := gw.HealthCheck(ctx); err != nil {
		return fmt.Errorf("call-control platform unreachable: %w", err)
	}

	campaignRepo := campaigns.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)

	engine, err := dialer.New(dialer.Options{
		Campaigns: campaignRepo,
		Calls:     callRepo,
		Gateway:   gw,
		Contexts: routing.Contexts{
			Outbound: cfg.Dialer.OutboundContext,
			Agent:    cfg.Dialer.AgentContext,
			Queue:    cfg.Dialer.QueueContext,
			IVR:      cfg.Dialer.IVRContext,
		},
		Audit:        audit.NewService(audit.NewPostgresRepo(db)),
		Outcomes:     pub,
		Guard:        guard,
		Health:       health,
		EventWorkers: cfg.Dialer.EventWorkers,
		Log:          log,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	var source telephony.EventSource
	switch cfg.Dialer.EventSource {
	case config.EventSourcePolling:
		source = telephony.NewPollingSource(gw, cfg.Dialer.PollInterval, log)
	default:
		es := telephony.NewEventStream(ariCfg, log)
		es.OnState = metrics.SetStreamConnected
		source = es
	}

	handlers := httpapi.Handlers{
		Dialer:  engine,
		Reports: reporting.NewService(callRepo),
		Health: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(log, handlers),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	events := make(chan telephony.CallEvent, 256)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "event_source", cfg.Dialer.EventSource)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return nil
	})
	g.Go(func() error { return source.Run(gctx, events) })
	g.Go(func() error { return engine.Run(gctx, events) })
	g.Go(func() error {
		s := &dialer.Scheduler{Engine: engine, Interval: cfg.Dialer.PacerInterval, Log: log}
		return s.Run(gctx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
	"stakeledger/observability/logging"
	telemetry "stakeledger/observability/otel"
	"stakeledger/services/stakingd/config"
	"stakeledger/services/stakingd/keeper"
	"stakeledger/services/stakingd/server"
	"stakeledger/storage/journal"
	"stakeledger/storage/ledger"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("stakingd: load config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("stakingd: %v", err)
	}
	var sink io.Writer = os.Stdout
	if strings.TrimSpace(cfg.Logging.File) != "" {
		file, err := logging.RotatingFile(logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		})
		if err != nil {
			log.Fatalf("stakingd: open log file: %v", err)
		}
		defer file.Close()
		sink = file
	}
	logger := logging.SetupWriter("stakingd", cfg.Environment, sink, level)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("stakingd: init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	dsn := cfg.Database
	if !strings.Contains(dsn, "://") && !strings.HasPrefix(dsn, "file:") {
		if dsn, err = ledger.FileDSN(dsn); err != nil {
			log.Fatalf("stakingd: resolve database path: %v", err)
		}
	}
	db, err := ledger.Open(dsn, ledger.WithLogger(logger))
	if err != nil {
		log.Fatalf("stakingd: open ledger: %v", err)
	}
	defer ledger.Close(db)

	events, err := journal.Open(cfg.Journal)
	if err != nil {
		log.Fatalf("stakingd: open journal: %v", err)
	}
	defer events.Close()
	events.SetLogger(logger)

	limits, err := cfg.EngineLimits()
	if err != nil {
		log.Fatalf("stakingd: limits: %v", err)
	}
	authorities, err := cfg.AuthorityAddresses()
	if err != nil {
		log.Fatalf("stakingd: %v", err)
	}
	pauses := nativecommon.NewPauses(cfg.Pauses...)

	custody := ledger.NewCustody(db)
	engine := staking.NewEngine(ledger.NewStore(db), custody)
	engine.SetLogger(logger.With("component", "staking"))
	engine.SetEmitter(events)
	engine.SetPauses(pauses)
	if err := engine.SetLimits(limits); err != nil {
		log.Fatalf("stakingd: limits: %v", err)
	}
	if len(authorities) > 0 {
		engine.SetAuthorizer(staking.NewAllowList(authorities...))
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.JWTSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, engine, custody, events, pauses, logger)
	if err != nil {
		log.Fatalf("stakingd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Keeper.Disabled {
		k, err := keeper.New(engine, keeper.Config{
			Interval:    cfg.Keeper.Interval.Duration,
			MinInterval: cfg.Keeper.MinInterval.Duration,
			Audit:       cfg.Keeper.Audit,
		}, logger)
		if err != nil {
			log.Fatalf("stakingd: keeper: %v", err)
		}
		go func() {
			if err := k.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("keeper exited", "error", err)
				stop()
			}
		}()
	}

	if err := srv.Run(rootCtx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stakingd stopped")
}

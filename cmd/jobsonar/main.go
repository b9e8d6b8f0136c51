// Package main wires together the job discovery service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/api"
	gcsarchive "github.com/jobsonar/jobsonar/internal/archive/gcs"
	memoryarchive "github.com/jobsonar/jobsonar/internal/archive/memory"
	"github.com/jobsonar/jobsonar/internal/clock/system"
	"github.com/jobsonar/jobsonar/internal/config"
	"github.com/jobsonar/jobsonar/internal/connector/arbeitnow"
	"github.com/jobsonar/jobsonar/internal/connector/board"
	"github.com/jobsonar/jobsonar/internal/connector/headless"
	"github.com/jobsonar/jobsonar/internal/connector/remotive"
	"github.com/jobsonar/jobsonar/internal/dedup"
	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/id/uuid"
	"github.com/jobsonar/jobsonar/internal/logging"
	"github.com/jobsonar/jobsonar/internal/policy/compliance"
	"github.com/jobsonar/jobsonar/internal/policy/ratelimit"
	"github.com/jobsonar/jobsonar/internal/policy/robots"
	"github.com/jobsonar/jobsonar/internal/progress"
	"github.com/jobsonar/jobsonar/internal/progress/sinks"
	memorypublisher "github.com/jobsonar/jobsonar/internal/publisher/memory"
	pubsubpublisher "github.com/jobsonar/jobsonar/internal/publisher/pubsub"
	"github.com/jobsonar/jobsonar/internal/registry"
	"github.com/jobsonar/jobsonar/internal/runner"
	"github.com/jobsonar/jobsonar/internal/scoring"
	memorystorage "github.com/jobsonar/jobsonar/internal/storage/memory"
	"github.com/jobsonar/jobsonar/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	sources, err := registry.New(registry.Default())
	if err != nil {
		logger.Fatal("build source registry", zap.Error(err))
	}

	var (
		runStore     discovery.RunStore
		postingStore discovery.PostingStore
	)
	if cfg.DB.DSN != "" {
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		pgRuns, err := postgres.NewRunStore(pool, clock)
		if err != nil {
			logger.Fatal("build run store", zap.Error(err))
		}
		pgPostings, err := postgres.NewPostingStore(pool)
		if err != nil {
			logger.Fatal("build posting store", zap.Error(err))
		}
		runStore = pgRuns
		postingStore = pgPostings
		logger.Info("using postgres stores")
	} else {
		runStore = memorystorage.NewRunStore(clock)
		postingStore = memorystorage.NewPostingStore()
		logger.Info("using in-memory stores")
	}
	profileStore := memorystorage.NewProfileStore()

	var publisher discovery.Publisher
	var closePublisher func()
	if cfg.PubSub.ProjectID != "" {
		client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("create pubsub client", zap.Error(err))
		}
		p := pubsubpublisher.New(client)
		publisher = p
		closePublisher = p.Close
	} else {
		publisher = memorypublisher.New()
	}

	var archiveStore discovery.ArchiveStore
	if cfg.Archive.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("create storage client", zap.Error(err))
		}
		archiveStore, err = gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			logger.Fatal("build archive store", zap.Error(err))
		}
	} else {
		archiveStore = memoryarchive.New()
	}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Fatal("build prometheus sink", zap.Error(err))
	}
	hubSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	}
	if cfg.PubSub.TopicName != "" {
		hubSinks = append(hubSinks,
			sinks.NewPublisherSink(publisher, cfg.PubSub.TopicName, logger.Named("publisher")))
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress"),
	}, hubSinks...)

	connectors := map[string]discovery.Connector{
		remotive.SourceID:  remotive.New(),
		arbeitnow.SourceID: arbeitnow.New(),
		board.SourceID: board.New(board.Config{
			UserAgent: cfg.Runner.UserAgent,
		}),
	}
	var closeHeadless func()
	if cfg.Headless.Enabled {
		browser, err := headless.New(headless.Config{
			UserAgent:  cfg.Runner.UserAgent,
			MaxTabs:    cfg.Headless.MaxTabs,
			NavTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			Robots: robots.New(cfg.Headless.RespectRobots, cfg.Runner.UserAgent,
				logger.Named("robots")),
		})
		if err != nil {
			logger.Warn("headless connector init failed", zap.Error(err))
		} else {
			connectors[headless.SourceID] = browser
			closeHeadless = browser.Close
		}
	}

	gate := compliance.New(compliance.Config{
		DeniedSources:   cfg.Compliance.DeniedSources,
		WindowStartHour: cfg.Compliance.WindowStartHour,
		WindowEndHour:   cfg.Compliance.WindowEndHour,
		DailyFetchCap:   cfg.Compliance.DailyFetchCap,
	}, clock)

	archivePrefix := cfg.Archive.Prefix
	if archivePrefix != "" {
		archivePrefix += "/"
	}
	pool := runner.NewPool(runner.PoolDeps{
		Connectors: connectors,
		Gate:       gate,
		Limiter:    ratelimit.New(ratelimit.Config{}),
		Dedup:      dedup.New(postingStore, clock, idGen),
		Scorer:     scoring.New(clock),
		Runs:       runStore,
		Profiles:   profileStore,
		Archive:    archiveStore,
		Retry: runner.NewExponentialRetryPolicy(
			cfg.Runner.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax()),
		Clock:   clock,
		Emitter: hub,
		Logger:  logger.Named("pool"),
	}, runner.PoolConfig{
		Workers:       cfg.Runner.Workers,
		SourceTimeout: cfg.SourceTimeout(),
		ArchivePrefix: archivePrefix,
	})

	controller := runner.NewController(
		pool, runStore, sources, clock, idGen, hub,
		logger.Named("runner"), runner.ControllerConfig{BaseContext: ctx},
	)

	apiServer := api.NewServer(controller, sources, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	if closePublisher != nil {
		closePublisher()
	}
	if closeHeadless != nil {
		closeHeadless()
	}
	logger.Info("shutdown complete")
}

// Package main is the entry point of the progress engine service.
//
// The service tracks study streaks, usage counters and badges per user,
// keeps group study sessions with their reminders, and serves all of it
// over a JSON HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studybuddy/progress-engine/config"
	"github.com/studybuddy/progress-engine/internal/application/command"
	"github.com/studybuddy/progress-engine/internal/application/query"
	"github.com/studybuddy/progress-engine/internal/application/saga"
	"github.com/studybuddy/progress-engine/internal/infrastructure/messaging"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/studybuddy/progress-engine/internal/infrastructure/queue"
	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler"
	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/studybuddy/progress-engine/internal/interface/http"
	"github.com/studybuddy/progress-engine/internal/interface/http/handlers"
	"github.com/studybuddy/progress-engine/pkg/circuitbreaker"
	"github.com/studybuddy/progress-engine/pkg/keylock"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.LoggerOptions()).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	defer func() { _ = log.Sync() }()

	log.Info("starting progress engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("store", string(cfg.Store.Backend)),
		logger.Any("features", cfg.Features.EnabledFeatures()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PROGRESS STORE
	// ─────────────────────────────────────────────────────────────────────────
	connectCtx, connectCancel := context.WithTimeout(ctx, time.Minute)
	store, err := persistence.Open(connectCtx, cfg.OpenOptions(), log)
	connectCancel()
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer func() {
		log.Info("closing progress store...")
		if err := store.Close(); err != nil {
			log.Warn("failed to close progress store", logger.Err(err))
		}
	}()

	repo := persistence.NewRepository(store, log, m, persistence.WithHistoryLimit(cfg.Store.HistoryLimit))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS & NOTIFICATION SINKS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.Metrics = m
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	var feed *messaging.Feed
	if cfg.Features.IsEnabled(config.FeatureNotifyFeed) {
		feed = messaging.NewFeed(messaging.DefaultFeedCapacity)
		if err := bus.SubscribeAll(feed.Handle); err != nil {
			return fmt.Errorf("subscribe feed: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureNotifyLog) {
		if err := bus.SubscribeAll(messaging.NewLogSink(log).Handle); err != nil {
			return fmt.Errorf("subscribe log sink: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureNotifyPubSub) {
		if rs, ok := store.(*redis.Store); ok {
			breaker := circuitbreaker.PubSubBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			publisher := messaging.NewGuardedPublisher(redis.NewPublisher(rs.Client()), breaker)
			sink := messaging.NewPubSubSink(publisher, redis.UserChannel, redis.GroupChannel)
			if err := bus.SubscribeAll(sink.Handle); err != nil {
				return fmt.Errorf("subscribe pubsub sink: %w", err)
			}
			log.Info("publishing notifications to redis channels")
		} else {
			log.Info("pubsub notifications need the redis backend, skipping")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER & SESSION REMINDERS
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}
	userLocks := keylock.New()
	groupLocks := keylock.New()

	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Metrics = m
	schedConfig.Clock = clock
	schedConfig.TickInterval = cfg.Reminders.TickInterval
	sched := scheduler.NewScheduler(schedConfig)

	remindersConfig := jobs.DefaultSessionRemindersConfig()
	remindersConfig.LeadTime = cfg.Reminders.LeadTime
	remindersConfig.Location = cfg.App.Location
	remindersConfig.Clock = clock
	reminders := jobs.NewSessionReminders(sched, repo, bus, groupLocks, log, m, remindersConfig)

	if cfg.Reminders.Transport == config.ReminderTransportQueue {
		reminderQueue := queue.NewReminderQueue(cfg.ReminderQueueOptions(), reminders, log)
		if err := reminderQueue.Start(); err != nil {
			return err
		}
		defer reminderQueue.Stop()
		reminders.UseTimers(reminderQueue)
		log.Info("reminder timers on queue", logger.String("queue", cfg.Reminders.QueueName))
	}

	rearm := jobs.NewRearmRemindersJob(reminders, repo, log)
	if cfg.Features.IsEnabled(config.FeatureRemindersRearm) {
		schedule, err := scheduler.ParseSchedule(cfg.Reminders.RearmSchedule)
		if err != nil {
			return fmt.Errorf("rearm schedule: %w", err)
		}
		if err := sched.Register(rearm, schedule); err != nil {
			return fmt.Errorf("register %s: %w", rearm.Name(), err)
		}
	}

	// Restore timers of sessions stored before this start.
	if err := rearm.Run(ctx); err != nil {
		log.Warn("initial reminder arming incomplete", logger.Err(err))
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler...")
		reminders.Stop()
		_ = sched.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	env := command.Env{
		Repo:       repo,
		UserLocks:  userLocks,
		GroupLocks: groupLocks,
		Publisher:  bus,
		Clock:      clock,
		Location:   cfg.App.Location,
		Logger:     log,
		Metrics:    m,
	}
	achievements := saga.NewAchievementFlowSaga(repo, log, m)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(repo))
	health.AddCheck("scheduler", func(context.Context) error {
		if !sched.IsRunning() {
			return errors.New("scheduler is not running")
		}
		return nil
	})

	server, err := httpserver.NewServer(cfg.ServerConfig(), httpserver.Dependencies{
		RecordAction:   command.NewRecordActionHandler(env, achievements),
		LogActivity:    command.NewLogActivityHandler(env, achievements),
		StartSession:   command.NewStartSessionHandler(env, reminders),
		Sessions:       command.NewSessionsHandler(env, reminders),
		GetProgress:    query.NewGetProgressHandler(repo, clock, log),
		GetAnalytics:   query.NewGetAnalyticsHandler(repo, log),
		ListSessions:   query.NewListSessionsHandler(repo, clock, cfg.App.Location),
		Feed:           feed,
		Jobs:           sched,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Metrics:        m,
		Logger:         log,
		HealthChecker:  health,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progress engine is running", logger.String("http_address", cfg.ServerConfig().Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server failed", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	// Scheduler, bus and store close in the deferred calls after this.
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	redisCache "github.com/vendalink/channel-service/internal/cache/redis"
	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/events"
	httpHandler "github.com/vendalink/channel-service/internal/handler/http"
	"github.com/vendalink/channel-service/internal/persistant/postgresql"
	"github.com/vendalink/channel-service/internal/provider/evolution"
	conversationRepo "github.com/vendalink/channel-service/internal/repository/conversation"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
	notificationRepo "github.com/vendalink/channel-service/internal/repository/notification"
	"github.com/vendalink/channel-service/internal/service"
	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path")
)

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM)
	defer stop()

	// parse flags
	flag.Parse()

	// parse config
	config, err := ReadConfigJson(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// initialize external dependencies
	db, rClient, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}

	// notification broker is optional: routing must survive a missing broker
	var publisher events.Publisher
	if config.AmqpURL != "" {
		publisher, err = events.NewPublisher(config.AmqpURL, config.AmqpExchange,
			logger.With(slog.String("component", "publisher")))
		if err != nil {
			logger.Warn("notification broker unavailable, notifications stay db-only", "error", err.Error())
		}
	}

	// init repositories
	instances := instanceRepo.NewInstanceRepository(db)
	conversations := conversationRepo.NewConversationRepository(db)
	notifications := notificationRepo.NewNotificationRepository(db)

	// init provider client
	provider := evolution.NewClient(config.ProviderBaseURL, config.ProviderTimeout,
		logger.With(slog.String("component", "evolution")))

	// init services
	lifecycle, err := service.NewLifecycle(instances, provider,
		logger.With(slog.String("component", "lifecycle")),
		config.ProviderApiKey, config.ProvisionMaxAttempts)
	if err != nil {
		log.Fatalf("failed to initiate lifecycle service: %v", err)
	}

	supervisor := service.NewSupervisor(instances, provider, lifecycle,
		logger.With(slog.String("component", "supervisor")),
		config.ProviderApiKey,
		service.SupervisorConfig{
			Interval:        config.SupervisorInterval,
			MaxRetries:      config.MaxReconnectAttempts,
			SettleDelay:     config.RecoverySettle,
			RecoveryTimeout: config.RecoveryTimeout,
		})

	notifier := service.NewNotifier(notifications, publisher,
		logger.With(slog.String("component", "notifier")))

	convRouter := service.NewRouter(instances, conversations, provider, notifier,
		logger.With(slog.String("component", "router")),
		config.ProviderApiKey)

	pipeline := service.NewWebhookPipeline(instances, convRouter, rClient,
		logger.With(slog.String("component", "webhook")))

	// resume supervision for instances that existed before this deployment
	if err := resumeSupervisors(instances, supervisor); err != nil {
		log.Fatalf("failed to resume supervisors: %v", err)
	}

	// init http handler
	httpHandler := httpHandler.NewHttpHandler(
		fmt.Sprintf(":%d", config.HttpPort),
		pipeline,
		lifecycle,
		supervisor,
		convRouter,
		conversations,
		notifications,
	)

	wg := sync.WaitGroup{}
	// run http handler
	wg.Go(func() {
		if err := httpHandler.Run(); err != nil {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		supervisor.StopAll()
		httpHandler.Shutdown(shutDownCtx)
		if publisher != nil {
			publisher.Close()
		}
		postgresql.Close(db)
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (db *gorm.DB, rCache *redisCache.RedisCache, err error) {
	// initialize database
	db, err = postgresql.Initialize(config.DbConnString, []any{
		&domain.ChannelInstance{},
		&domain.Lead{},
		&domain.Agent{},
		&domain.Message{},
		&domain.ConversationAssignment{},
		&domain.Notification{},
	})
	if err != nil {
		return
	}

	// initialize cache
	rCache, err = redisCache.NewRedisCache(ctx, config.RedisAddr)

	return
}

func resumeSupervisors(instances instanceRepo.Repository, supervisor *service.Supervisor) error {
	existing, err := instances.ListAll()
	if err != nil {
		return err
	}
	for _, inst := range existing {
		supervisor.Start(inst.TenantID, inst.InstanceName)
	}
	return nil
}

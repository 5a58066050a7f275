package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/cache"
	"github.com/vladislavdragonenkov/orderflow/internal/health"
	"github.com/vladislavdragonenkov/orderflow/internal/httpx"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/service/cart"
	"github.com/vladislavdragonenkov/orderflow/internal/service/chat"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
	"github.com/vladislavdragonenkov/orderflow/internal/service/relay"
	"github.com/vladislavdragonenkov/orderflow/internal/service/saga"
	"github.com/vladislavdragonenkov/orderflow/internal/version"
)

// Run собирает и запускает сервис: хранилище, Kafka-сагу, relay журнала
// событий и HTTP API. Блокируется до отмены ctx или ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	configureLogging(cfg.LogLevel)
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	producer := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	orderCache := initOrderCache(cfg, logger)
	defer func() { _ = orderCache.Close() }()

	orderSvc := order.NewService(deps.Orders, deps.Events, nil)
	inventorySvc := inventory.NewService(deps.Inventory, deps.Events, nil)
	chatSvc := chat.NewService(deps.Chat, nil)
	cartSvc := cart.NewService(deps.Carts, orderSvc, nil)

	serviceVersion, _, _ := version.Info()
	healthHandler := health.NewHandler(serviceVersion)
	deps.RegisterHealthChecks(healthHandler)
	if orderCache.Enabled() {
		healthHandler.RegisterOptional("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := orderCache.Get(pingCtx, 0)
			if errors.Is(err, cache.ErrCacheMiss) {
				return nil
			}
			return err
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var consumers []*kafka.Consumer
	if producer != nil {
		publisher := kafka.NewEventPublisher(producer)
		relayWorker := relay.NewWorker(
			deps.Events,
			publisher,
			relay.WithPollInterval(cfg.RelayPollInterval),
			relay.WithBatchSize(cfg.RelayBatchSize),
			relay.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		)
		go relayWorker.Run(runCtx)

		choreographer := saga.NewChoreographer(orderSvc, deps.Orders, inventorySvc, chatSvc, producer, nil)
		eventsConsumer, err := kafka.NewConsumerWithDLQ(
			cfg.KafkaBrokers,
			cfg.KafkaGroupID+"-saga",
			[]string{kafka.TopicOrderEvents, kafka.TopicStockEvents},
			choreographer.HandleMessage,
			producer,
			cfg.ConsumerRetry,
		)
		if err != nil {
			return err
		}
		if err := eventsConsumer.Start(runCtx); err != nil {
			return err
		}
		consumers = append(consumers, eventsConsumer)

		stockWorker := saga.NewStockWorker(inventorySvc, nil)
		commandsConsumer, err := kafka.NewConsumerWithDLQ(
			cfg.KafkaBrokers,
			cfg.KafkaGroupID+"-stock",
			[]string{kafka.TopicStockCommands},
			stockWorker.HandleMessage,
			producer,
			cfg.ConsumerRetry,
		)
		if err != nil {
			return err
		}
		if err := commandsConsumer.Start(runCtx); err != nil {
			return err
		}
		consumers = append(consumers, commandsConsumer)

		sweeper := saga.NewSweeper(deps.Orders, orderSvc, producer, saga.SweeperOptions{
			Interval:   cfg.SweepInterval,
			StuckAfter: cfg.StuckAfter,
		})
		go sweeper.Run(runCtx)
	}

	router := httpx.NewRouter(httpx.Handlers{
		Orders:    httpx.NewOrderHandler(orderSvc, orderCache, nil),
		Inventory: httpx.NewInventoryHandler(inventorySvc, nil),
		Chat:      httpx.NewChatHandler(chatSvc, nil),
		Cart:      httpx.NewCartHandler(cartSvc, nil),
		Health:    healthHandler,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping")
		cancel()
		stopConsumers(consumers, logger)
		shutdownHTTP(srv, logger)
		return ctx.Err()
	case err := <-errCh:
		cancel()
		stopConsumers(consumers, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func configureLogging(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// initOrderCache подключает Redis-кэш снапшотов; без Redis кэш выключен.
func initOrderCache(cfg Config, logger *log.Entry) *cache.OrderCache {
	if cfg.RedisAddr == "" {
		return cache.NewOrderCache(nil, nil)
	}
	client, err := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Warn("redis is unavailable, order cache disabled")
		return cache.NewOrderCache(nil, nil)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("redis order cache initialized")
	return cache.NewOrderCache(client, nil)
}

func stopConsumers(consumers []*kafka.Consumer, logger *log.Entry) {
	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

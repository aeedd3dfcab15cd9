package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joao-fontenele/storefront-orders/internal/config"
	"github.com/joao-fontenele/storefront-orders/internal/messaging"
	"github.com/joao-fontenele/storefront-orders/internal/notify"
	"github.com/joao-fontenele/storefront-orders/internal/orders"
	"github.com/joao-fontenele/storefront-orders/internal/telemetry"
	"github.com/joao-fontenele/storefront-orders/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notification-worker", "0.1.0", telemetry.TracerConfig{
		Endpoint:    cfg.OTel.Endpoint,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	sender, err := notify.NewSender(cfg.Notify.Provider,
		notify.EvolutionConfig{BaseURL: cfg.Evolution.BaseURL, APIKey: cfg.Evolution.APIKey, Instance: cfg.Evolution.Instance},
		notify.CallMeBotConfig{APIURL: cfg.CallMeBot.APIURL, APIKey: cfg.CallMeBot.APIKey, Phone: cfg.CallMeBot.Phone},
		notify.NewHTTPClient(cfg.Notify.Timeout),
	)
	if err != nil {
		logger.Error("failed to create notification sender", "error", err)
		os.Exit(1)
	}

	if evo, ok := sender.(*notify.EvolutionClient); ok {
		stateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		state, err := evo.ConnectionState(stateCtx)
		cancel()
		if err != nil {
			logger.Warn("could not read whatsapp connection state", "error", err)
		} else {
			logger.Info("whatsapp connection state", "state", state)
		}
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup

	reaper := worker.NewReaper(orders.NewOrderRepository(db), cfg.Reaper.Interval, cfg.Reaper.TTL, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting abandoned checkout reaper", "interval", cfg.Reaper.Interval, "ttl", cfg.Reaper.TTL)
		reaper.Run(ctx)
	}()

	brokers := cfg.Kafka.BrokerList()
	switch {
	case len(brokers) == 0:
		logger.Warn("KAFKA_BROKERS not set, only the reaper is running")
	case sender == nil:
		logger.Warn("notification provider is none, only the reaper is running")
	default:
		consumer := messaging.NewConsumer(brokers, cfg.Kafka.Topic, cfg.Kafka.Group, logger)
		defer func() { _ = consumer.Close() }()

		notificationHandler := worker.NewNotificationHandler(sender, cfg.Notify.AdminNumber, logger)

		logger.Info("starting notification worker", "brokers", brokers, "topic", cfg.Kafka.Topic)
		if err := consumer.Consume(ctx, notificationHandler.Handle); err != nil {
			logger.Error("consumer error", "error", err)
			cancel()
			wg.Wait()
			os.Exit(1)
		}
		logger.Info("consumer stopped")
	}

	<-ctx.Done()
	wg.Wait()
}

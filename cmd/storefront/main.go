package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-orders/internal/cart"
	"github.com/joao-fontenele/storefront-orders/internal/catalog"
	"github.com/joao-fontenele/storefront-orders/internal/checkout"
	"github.com/joao-fontenele/storefront-orders/internal/config"
	"github.com/joao-fontenele/storefront-orders/internal/messaging"
	"github.com/joao-fontenele/storefront-orders/internal/notify"
	"github.com/joao-fontenele/storefront-orders/internal/orders"
	"github.com/joao-fontenele/storefront-orders/internal/payment"
	"github.com/joao-fontenele/storefront-orders/internal/telemetry"
	"github.com/joao-fontenele/storefront-orders/internal/webhook"
	"github.com/joao-fontenele/storefront-orders/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireSession(); err != nil {
		logger.Error("invalid session config", "error", err)
		os.Exit(1)
	}
	loc, err := time.LoadLocation(cfg.MP.TimeZone)
	if err != nil {
		logger.Error("invalid time zone", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0", telemetry.TracerConfig{
		Endpoint:    cfg.OTel.Endpoint,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		logger.Error("failed to create instruments", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	gatewayClient := &http.Client{
		Timeout:   cfg.MP.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var (
		publisher notify.Publisher
		direct    notify.HandlerFunc
	)
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		producer := messaging.NewProducer(brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		publisher = producer
		logger.Info("notifications go through the event stream", "topic", cfg.Kafka.Topic)
	} else {
		sender, err := notify.NewSender(cfg.Notify.Provider,
			notify.EvolutionConfig{BaseURL: cfg.Evolution.BaseURL, APIKey: cfg.Evolution.APIKey, Instance: cfg.Evolution.Instance},
			notify.CallMeBotConfig{APIURL: cfg.CallMeBot.APIURL, APIKey: cfg.CallMeBot.APIKey, Phone: cfg.CallMeBot.Phone},
			notify.NewHTTPClient(cfg.Notify.Timeout),
		)
		if err != nil {
			logger.Error("failed to create notification sender", "error", err)
			os.Exit(1)
		}
		if sender != nil {
			direct = worker.NewNotificationHandler(sender, cfg.Notify.AdminNumber, logger).Handle
		}
		logger.Info("notifications are sent directly", "provider", cfg.Notify.Provider)
	}
	dispatcher := notify.NewDispatcher(publisher, direct, logger,
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithInstruments(instruments),
	)

	productRepo := catalog.NewProductRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	sessions := cart.NewSessions(cart.NewCookieStore([]byte(cfg.Session.Secret), cfg.Session.Secure))

	checkoutOpts := []checkout.Option{
		checkout.WithPayerEmail(cfg.MP.PayerEmail),
		checkout.WithInstruments(instruments),
	}

	var gateway *payment.Client
	if err := cfg.RequireGateway(); err != nil {
		logger.Warn("payment gateway disabled, only cash checkouts are accepted", "reason", err)
	} else {
		gateway, err = payment.NewClient(payment.Config{
			AccessToken:     cfg.MP.AccessToken,
			BaseURL:         cfg.MP.BaseAPIURL,
			NotificationURL: cfg.MP.NotificationURL,
			ApplicationURL:  cfg.MP.ApplicationURL,
			Location:        loc,
		}, gatewayClient)
		if err != nil {
			logger.Error("failed to create payment client", "error", err)
			os.Exit(1)
		}
		checkoutOpts = append(checkoutOpts, checkout.WithGateway(gateway))
	}

	catalogHandler := catalog.NewHandler(productRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, sessions, logger)
	checkoutService := checkout.NewService(cartRepo, orderRepo, dispatcher, logger, checkoutOpts...)
	checkoutHandler := checkout.NewHandler(checkoutService, sessions, logger)
	ordersHandler := orders.NewHandler(orderRepo, productRepo, dispatcher, logger)
	metricsDashboard := orders.NewMetricsHandler(orderRepo, loc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleListProducts))
	mux.HandleFunc("POST /dashboard/products/{id}/toggle-active", telemetry.WithHTTPRoute(catalogHandler.HandleToggleActive))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleCheckout))

	if gateway != nil {
		reconciler := webhook.NewReconciler(gateway, orderRepo, dispatcher, logger)
		webhookHandler := webhook.NewHandler(reconciler, instruments, logger)
		// no method in the pattern: the handler answers 405 itself
		mux.HandleFunc("/webhook", telemetry.WithHTTPRoute(webhookHandler.HandleWebhook))
	}

	mux.HandleFunc("GET /dashboard/orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("POST /dashboard/orders", telemetry.WithHTTPRoute(ordersHandler.HandleCreate))
	mux.HandleFunc("GET /dashboard/orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("PUT /dashboard/orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleUpdate))
	mux.HandleFunc("POST /dashboard/orders/{id}/toggle-status", telemetry.WithHTTPRoute(ordersHandler.HandleToggleStatus))
	mux.HandleFunc("POST /dashboard/orders/{id}/toggle-payment", telemetry.WithHTTPRoute(ordersHandler.HandleTogglePayment))
	mux.HandleFunc("POST /dashboard/orders/{id}/cancel", telemetry.WithHTTPRoute(ordersHandler.HandleCancel))
	mux.HandleFunc("POST /dashboard/orders/{id}/cancel-payment", telemetry.WithHTTPRoute(ordersHandler.HandleCancelPayment))
	mux.HandleFunc("GET /dashboard/metrics", telemetry.WithHTTPRoute(metricsDashboard.HandleMetrics))

	mux.HandleFunc("GET /healthz", healthHandler(db, logger))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout: 10 * time.Second,
		// checkout waits on the gateway
		WriteTimeout: cfg.MP.Timeout + 10*time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	dispatcher.Wait()
}

func healthHandler(db *sql.DB, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("health check failed", "error", err)
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

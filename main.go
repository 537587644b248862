package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"paygate-vip/domain/entitlement"
	"paygate-vip/domain/payment"
	"paygate-vip/infrastructure/config"
	"paygate-vip/infrastructure/database"
	"paygate-vip/infrastructure/queue"
	"paygate-vip/infrastructure/service"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(logLevel(cfg.LogLevel))

	api := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
		BodyLimit:             1 * 1024 * 1024,
	})
	api.Use(recover.New())
	api.Use(cors.New(cors.Config{AllowOrigins: cfg.CorsAllowOrigins}))

	tracker, store, closeStore, err := newBackends(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	engine := entitlement.NewEngine(tracker, store)
	gateway := service.NewPayGateClient(cfg.GatewayBaseURL, cfg.AuthToken, cfg.GatewayTimeout)

	dispatcher := payment.NewInlineDispatcher(engine)
	if cfg.CallbackDispatch == config.DispatchQueue {
		confirmationQueue, err := queue.NewConfirmationQueue(cfg.Nats.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer confirmationQueue.Close()

		consumer := payment.NewNatsConsumer(confirmationQueue, engine, cfg.Nats)
		defer consumer.Close()

		go func() {
			if err := consumer.StartProcess(); err != nil {
				log.Fatal(err)
			}
		}()
		dispatcher = payment.NewQueueDispatcher(confirmationQueue, engine)
	}

	payment.NewController(gateway, engine, store, dispatcher, cfg.PhoneRegion).InitRoutes(api)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		_ = api.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Infow("server listening", "port", cfg.Port, "store", cfg.StoreDriver, "dispatch", cfg.CallbackDispatch)
	if err = api.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

func newBackends(cfg *config.Config) (entitlement.ITransactionTracker, entitlement.IEntitlementStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err = entitlement.MigratePostgres(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return entitlement.NewPostgresTracker(db), entitlement.NewPostgresStore(db), func() { _ = db.Close() }, nil

	case config.StoreDriverFirestore:
		client, err := database.NewFirestore(cfg.Firestore)
		if err != nil {
			return nil, nil, nil, err
		}
		return entitlement.NewFirestoreTracker(client), entitlement.NewFirestoreStore(client), func() { _ = client.Close() }, nil

	default:
		client, locker, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return entitlement.NewRedisTracker(client, locker), entitlement.NewRedisStore(client), func() { _ = client.Close() }, nil
	}
}

func logLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

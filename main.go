package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"c2cmarket/internal/applog"
	"c2cmarket/internal/catalog"
	"c2cmarket/internal/config"
	"c2cmarket/internal/handlers"
	"c2cmarket/internal/identity"
	"c2cmarket/internal/middleware"
	"c2cmarket/internal/models"
	"c2cmarket/internal/repositories"
	"c2cmarket/internal/services"
	"c2cmarket/pkg/rabbitmq"
)

const (
	eventsQueue = "c2cmarket.events.log"

	authAttempts       = 20
	authAttemptsWindow = 10 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

func main() {
	if err := newCLI().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.Command {
	return &cli.Command{
		Name:  "c2cmarket",
		Usage: "Consumer-to-consumer marketplace API",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx)
				},
			},
			{
				Name:  "seed",
				Usage: "Load the sample catalog and product requests",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMarketplace(func(m *marketplace) error {
						products, err := m.products.LoadSampleProducts(ctx)
						if err != nil {
							return err
						}
						requests, err := m.requests.LoadSampleRequests(ctx)
						if err != nil {
							return err
						}
						log.Printf("Seeded %d products and %d requests", products, requests)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every product and product request",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMarketplace(func(m *marketplace) error {
						products, err := m.products.ClearProducts(ctx)
						if err != nil {
							return err
						}
						requests, err := m.requests.ClearRequests(ctx)
						if err != nil {
							return err
						}
						log.Printf("Cleared %d products and %d requests", products, requests)
						return nil
					})
				},
			},
		},
	}
}

// withMarketplace loads the configuration, builds the services and runs fn.
func withMarketplace(fn func(m *marketplace) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := newMarketplace(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// marketplace holds the wired services of one process.
type marketplace struct {
	cfg *config.Config

	db        *gorm.DB
	store     repositories.DocumentRepository
	gormStore *repositories.GORMDocumentRepository
	mq        *rabbitmq.Client

	gateway   identity.Gateway
	catalog   *services.CatalogService
	products  *services.ProductService
	customers *services.CustomerService
	requests  *services.RequestService
	auth      *services.AuthService

	stopAudit func()
}

// openDatabase returns the document and account stores for cfg.DBDriver.
// The "memory" driver keeps everything in process.
func openDatabase(cfg *config.Config) (*gorm.DB, repositories.DocumentRepository, repositories.IdentityRepository, error) {
	if cfg.DBDriver == "memory" {
		return nil, repositories.NewMockDocumentRepository(), repositories.NewMockIdentityRepository(), nil
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DBDriver, err)
	}
	if cfg.DBDriver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.StoredDocument{}, &models.Identity{}, &models.SpentCode{}); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return db, repositories.NewGORMDocumentRepository(db), repositories.NewGORMIdentityRepository(db), nil
}

func newMarketplace(cfg *config.Config) (*marketplace, error) {
	if cfg.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET is not set, using a random secret for this process")
		cfg.JWTSecret = uuid.New().String()
	}

	db, store, accounts, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	m := &marketplace{cfg: cfg, db: db, store: store}
	if gs, ok := store.(*repositories.GORMDocumentRepository); ok {
		m.gormStore = gs
	}

	// events stays a nil interface when the broker is disabled.
	var events services.EventPublisher
	var sender identity.LinkSender = identity.LogLinkSender{}
	if cfg.RabbitMQEnabled {
		m.mq, err = rabbitmq.NewClient(rabbitmq.Config{
			URL:       cfg.RabbitMQURL,
			Exchanges: []string{services.EventsExchange},
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
		events = m.mq
		sender = identity.QueueLinkSender{Publisher: m.mq, Exchange: services.EventsExchange}
	}

	normalizer := catalog.NewNormalizer(cfg.PlaceholderImages)
	gateway := identity.NewLocalGateway(accounts, sender, identity.Config{
		Secret:          []byte(cfg.JWTSecret),
		LinkBaseURL:     cfg.LinkBaseURL,
		LinkTTL:         cfg.LinkTTL,
		FederatedIssuer: cfg.FederatedIssuer,
		FederatedSecret: []byte(cfg.FederatedSecret),
	})
	m.gateway = gateway
	m.stopAudit = gateway.Subscribe(func(ch identity.Change) {
		switch {
		case ch.UID == "":
		case ch.Identity == nil:
			log.Printf("Identity %s signed out", ch.UID)
		default:
			log.Printf("Identity %s signed in via %s", ch.UID, ch.Identity.Provider)
		}
	})

	m.catalog = services.NewCatalogService(store, normalizer, cfg.MinPoints)
	m.products = services.NewProductService(store, normalizer, events)
	m.customers = services.NewCustomerService(store, normalizer, gateway, events)
	m.requests = services.NewRequestService(store, normalizer, events)
	m.auth = services.NewAuthService(gateway, store, m.customers, normalizer, events, services.AuthConfig{
		JWTSecret:   cfg.JWTSecret,
		SessionTTL:  cfg.SessionTTL,
		AdminPolicy: services.AdminAllowList(cfg.AdminEmails),
	})
	return m, nil
}

// Close releases the catalog subscriptions, the broker and the database.
func (m *marketplace) Close() {
	if m.stopAudit != nil {
		m.stopAudit()
	}
	if m.catalog != nil {
		m.catalog.Close()
	}
	if m.mq != nil {
		if err := m.mq.Close(); err != nil {
			log.Printf("Error closing RabbitMQ client: %v", err)
		}
	}
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// authThrottle limits credential-accepting endpoints per client IP.
func authThrottle() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        authAttempts,
		Expiration: authAttemptsWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|auth"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.auth.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message": "Too many attempts. Please try again later.",
			})
		},
	})
}

// newApp builds the fiber app with every route registered.
func (m *marketplace) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "c2cmarket",
		BodyLimit: 1 << 20,
	})

	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		broker := "disabled"
		if m.mq != nil {
			broker = "connected"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"rabbitMQ": broker,
			"products": len(m.catalog.Products().Get()),
		})
	})

	apiV1 := app.Group("/api/v1")
	authRequired := middleware.AuthRequired(m.auth)

	handlers.NewAuthHandler(m.auth).RegisterRoutes(apiV1, authRequired, authThrottle())
	handlers.NewProductHandler(m.catalog, m.products).RegisterRoutes(apiV1, authRequired)
	handlers.NewSellerHandler(m.catalog, m.products).RegisterRoutes(apiV1, authRequired)
	handlers.NewAccountHandler(m.customers, m.auth).RegisterRoutes(apiV1, authRequired)
	handlers.NewRequestHandler(m.requests).RegisterRoutes(apiV1, authRequired)
	handlers.NewAdminHandler(m.catalog, m.products, m.customers, m.requests).RegisterRoutes(apiV1, authRequired)

	return app
}

// serve runs the API until SIGINT or SIGTERM.
func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := newMarketplace(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.gormStore != nil && cfg.StorePollInterval > 0 {
		log.Printf("Polling the document store every %s", cfg.StorePollInterval)
		go m.gormStore.Watch(ctx, cfg.StorePollInterval)
	}

	if m.mq != nil {
		keys := []string{"product.#", "request.#", "customer.#", "user.#"}
		if err := m.mq.ConsumeEvents(services.EventsExchange, eventsQueue, keys, rabbitmq.LogEvent); err != nil {
			log.Printf("Failed to start RabbitMQ consumer: %v", err)
		}
	}

	app := m.newApp()

	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.AppPort)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
	return nil
}

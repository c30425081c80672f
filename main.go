package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"loyalty-draw-system/config"
	"loyalty-draw-system/handlers"
	"loyalty-draw-system/metrics"
	"loyalty-draw-system/middleware"
	"loyalty-draw-system/models"
	"loyalty-draw-system/services"
	"loyalty-draw-system/utils"
	"loyalty-draw-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.ConfigureLogging(); err != nil {
		logrus.WithError(err).Fatal("invalid LOG_LEVEL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	if err := models.AutoMigrate(db); err != nil {
		logrus.WithError(err).Fatal("failed to migrate database")
	}

	policy, err := services.ParseUniquenessPolicy(cfg.UniquenessPolicy)
	if err != nil {
		logrus.WithError(err).Fatal("invalid UNIQUENESS_POLICY")
	}

	users := services.NewUserService(db)
	bingoService := services.NewBingoService(db)
	issuance := services.NewIssuanceService(db, bingoService)
	engine := services.NewPrizeDrawEngine(db, services.EngineConfig{Uniqueness: policy, Workers: cfg.BatchWorkers})
	ranking := services.NewRankingSelector(db, engine.DrawTypes)

	if cfg.DrawTypeCatalog != "" {
		catalog, err := services.LoadCatalog(cfg.DrawTypeCatalog)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load draw type catalog")
		}
		if _, err := engine.DrawTypes.SeedCatalog(ctx, catalog); err != nil {
			logrus.WithError(err).Fatal("failed to seed draw type catalog")
		}
	}

	var store services.ObjectStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize R2 client")
		}
		store = r2
	} else {
		logrus.Warn("⚠️  R2_BUCKET_NAME not set, draw report publishing disabled")
	}
	reports := services.NewReportService(engine.DrawTypes, ranking, store)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed; the metrics scrape is exempt
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, "/metrics"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handlers.SetupRoutes(app, handlers.Services{
		Users:     users,
		Bingo:     bingoService,
		Issuance:  issuance,
		DrawTypes: engine.DrawTypes,
		Engine:    engine,
		Ranking:   ranking,
		Reports:   reports,
	})

	sched, err := workers.StartSettlementScheduler(ctx, engine, cfg.SettlementInterval)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start settlement scheduler")
	}
	defer func() { _ = sched.Shutdown() }()

	if cfg.SyncServiceURL != "" {
		client := workers.NewSyncClient(cfg.SyncServiceURL, cfg.SyncServiceToken)
		workers.NewUserSyncWorker(client, users, cfg.SyncInterval).Start(ctx)
		workers.NewWalletSyncWorker(client, users, cfg.SyncInterval).Start(ctx)
		workers.NewInstanceSyncWorker(client, issuance, cfg.SyncInterval).Start(ctx)
	} else {
		logrus.Warn("⚠️  SYNC_SERVICE_URL not set, chain reconciliation disabled")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Error("server error")
			stop()
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"uniqueness": policy,
		"workers":    cfg.BatchWorkers,
		"origins":    cfg.AllowedOrigins,
	}).Info("✅ Server running")

	<-ctx.Done()
	logrus.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		logrus.WithError(err).Error("shutdown failed")
	}
}

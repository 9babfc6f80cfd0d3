package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kudos/kudos-api/internal/config"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/catalog"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/domain/ledger/memstore"
	"github.com/kudos/kudos-api/internal/domain/notification"
	"github.com/kudos/kudos-api/internal/domain/points"
	"github.com/kudos/kudos-api/internal/domain/redemption"
	"github.com/kudos/kudos-api/internal/domain/statement"
	"github.com/kudos/kudos-api/internal/middleware"
	"github.com/kudos/kudos-api/internal/pkg/database"
	"github.com/kudos/kudos-api/internal/pkg/jwt"
	"github.com/kudos/kudos-api/internal/pkg/logger"
	pkgresponse "github.com/kudos/kudos-api/internal/pkg/response"
	"github.com/kudos/kudos-api/internal/pkg/storage"
	"github.com/kudos/kudos-api/migrations"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("ledger_store", cfg.LedgerStore).
		Msg("Starting Kudos API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------- Storage backends ----------
	var (
		db    *sqlx.DB
		rdb   *redis.Client
		store ledger.Store
		hist  ledger.Reader
		accts account.Repository
		items catalog.Repository
		sink  notification.Sink
		inbox *notification.Service
	)

	if cfg.UseMemoryLedger() {
		mem := memstore.New()
		if cfg.LedgerSeedFile != "" {
			if err := loadSeed(mem, cfg.LedgerSeedFile); err != nil {
				log.Fatal().Err(err).Str("file", cfg.LedgerSeedFile).Msg("Failed to load ledger seed")
			}
		}
		store, hist, accts, items = mem, mem, mem, mem
		sink = notification.LogSink{}
		log.Warn().Msg("Using in-memory ledger, data is lost on restart")
	} else {
		var err error
		db, err = database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)

		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}

		rdb, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer database.CloseRedis(rdb)

		pg := ledger.NewPostgresStore(db, cfg.LedgerLockTimeout)
		store, hist = pg, pg
		accts = account.NewRepository(db)
		items = catalog.NewRepository(db)

		var publisher notification.RealtimePublisher
		if rdb != nil {
			publisher = notification.NewRedisPublisher(rdb)
		}
		notificationRepo := notification.NewRepository(db)
		inbox = notification.NewService(notificationRepo, publisher)
		sink = inbox

		cleanup := notification.NewCleanupJob(notificationRepo, cfg.NotificationRetentionDays)
		go cleanup.Start(ctx, cfg.NotificationCleanupEvery)
	}

	files, err := storage.New(storage.Config{
		Backend:   cfg.StatementStorage,
		LocalPath: cfg.LocalStoragePath,
		LocalURL:  cfg.LocalStorageURL,
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create statement storage")
	}

	// ---------- Services ----------
	dispatcher := notification.NewDispatcher(sink, cfg.NotifyTimeout)
	engine := ledger.NewEngine(store,
		ledger.WithLockRetries(cfg.LedgerLockRetries),
		ledger.WithLockBackoff(cfg.LedgerLockBackoff),
	)
	history := ledger.NewHistory(hist)

	pointsService := points.NewService(engine, accts, dispatcher)
	redemptionService := redemption.NewService(engine, items, accts, dispatcher)
	exporter := statement.NewExporter(history, files)

	// ---------- Handlers ----------
	h := handlers{
		points:     points.NewHandler(pointsService, history),
		redemption: redemption.NewHandler(redemptionService),
		statement:  statement.NewHandler(exporter),
	}
	if inbox != nil {
		h.notification = notification.NewHandler(inbox)
	}
	if cfg.StatementStorage != "r2" {
		h.localFiles = cfg.LocalStoragePath
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	r := newRouter(cfg, h, middleware.Auth(jwtService))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending notifications dropped")
	}

	log.Info().Msg("Server exited properly")
}

type handlers struct {
	points       *points.Handler
	redemption   *redemption.Handler
	statement    *statement.Handler
	notification *notification.Handler // nil without a database
	localFiles   string                // set when statements are written to disk
}

func newRouter(cfg *config.Config, h handlers, authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status": "ok",
			"ledger": cfg.LedgerStore,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/points", h.points.Routes(authMiddleware))
		r.Mount("/compliments", h.points.ComplimentRoutes(authMiddleware))
		r.Mount("/redemptions", h.redemption.Routes(authMiddleware))
		r.Mount("/orders", h.redemption.OrderRoutes(authMiddleware))
		r.Mount("/company", h.points.CompanyRoutes(authMiddleware))
		r.Mount("/company/statements", h.statement.Routes(authMiddleware))
		if h.notification != nil {
			r.Mount("/notifications", h.notification.Routes(authMiddleware))
		}
	})

	if h.localFiles != "" {
		r.Mount("/files/statements", h.statement.FileRoutes(authMiddleware, h.localFiles))
	}

	return r
}

func loadSeed(mem *memstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return mem.LoadSeed(f)
}

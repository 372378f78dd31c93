package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"attendease/internal/alert"
	"attendease/internal/api"
	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/calendar"
	"attendease/internal/config"
	"attendease/internal/filestore"
	"attendease/internal/httpmiddleware"
	"attendease/internal/logging"
	"attendease/internal/metrics"
	"attendease/internal/store"
	"attendease/internal/store/memory"
	"attendease/internal/subject"
	"attendease/internal/ticket"
	"attendease/internal/user"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

// repositories groups the per-domain stores picked by STORE_BACKEND.
type repositories struct {
	users      user.Repository
	subjects   subject.Repository
	attendance attendance.Store
	tickets    ticket.Repository
	calendar   calendar.Repository
}

func openRepositories(ctx context.Context, cfg config.App, log zerolog.Logger) (repositories, func(), api.HealthCheck, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		db := memory.New()
		return repositories{
			users:      memory.NewUsers(db),
			subjects:   memory.NewSubjects(db),
			attendance: memory.NewAttendance(db),
			tickets:    memory.NewTickets(db),
			calendar:   memory.NewCalendar(db),
		}, func() {}, func(context.Context) bool { return true }, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return repositories{}, nil, nil, err
	}
	if err := store.Migrate(ctx, db.Client); err != nil {
		_ = db.Close()
		return repositories{}, nil, nil, err
	}
	return repositories{
		users:      user.NewPostgresRepository(db.Client),
		subjects:   subject.NewPostgresRepository(db.Client),
		attendance: attendance.NewRepository(db.Client),
		tickets:    ticket.NewPostgresRepository(db.Client),
		calendar:   calendar.NewPostgresRepository(db.Client),
	}, func() { _ = db.Close() }, db.Healthy, nil
}

func openAlertStore(cfg config.App, log zerolog.Logger) (alert.Store, func(), api.HealthCheck) {
	if cfg.AlertBackend == "memory" {
		return alert.NewMemoryStore(), func() {}, nil
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	log.Info().Str("addr", cfg.RedisAddr).Msg("alerts stored in redis")
	return alert.NewRedisStore(redisClient.Client), func() { _ = redisClient.Close() }, redisClient.Healthy
}

func openFileStore(cfg config.App, log zerolog.Logger) (filestore.Store, error) {
	if cfg.CloudinaryConfigured() {
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("ticket files stored in cloudinary")
		return filestore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder), nil
	}
	log.Info().Str("dir", cfg.UploadDir).Msg("ticket files stored on disk")
	return filestore.NewDisk(cfg.UploadDir)
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx := context.Background()

	repos, closeRepos, dbHealthy, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeRepos()

	alerts, closeAlerts, redisHealthy := openAlertStore(cfg, log)
	defer closeAlerts()

	files, err := openFileStore(cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	subjects := subject.NewService(repos.subjects)

	checks := map[string]api.HealthCheck{"db": dbHealthy}
	if redisHealthy != nil {
		checks["redis"] = redisHealthy
	}

	srv := &api.Server{
		Users:          user.NewService(repos.users, issuer, log),
		Subjects:       subjects,
		Attendance:     attendance.NewService(repos.attendance, subjects, m, log),
		Tickets:        ticket.NewService(repos.tickets, repos.users, files, cfg.MaxUploadBytes, m, log),
		Alerts:         alert.NewService(alerts, cfg.AlertTTL, m),
		Calendar:       calendar.NewService(repos.calendar),
		Issuer:         issuer,
		Metrics:        m,
		Gatherer:       reg,
		Limiter:        httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Checks:         checks,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}

	log.Info().Msg("server exited")
	return nil
}

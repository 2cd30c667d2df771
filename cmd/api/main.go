package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/attendhq/attendance-api/internal/handler"
	"github.com/attendhq/attendance-api/internal/middleware"
	"github.com/attendhq/attendance-api/internal/repository"
	"github.com/attendhq/attendance-api/internal/service"
	"github.com/attendhq/attendance-api/pkg/cache"
	"github.com/attendhq/attendance-api/pkg/config"
	"github.com/attendhq/attendance-api/pkg/database"
	"github.com/attendhq/attendance-api/pkg/events"
	"github.com/attendhq/attendance-api/pkg/export"
	"github.com/attendhq/attendance-api/pkg/logger"
	corsmiddleware "github.com/attendhq/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/attendhq/attendance-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	studentRepo := repository.NewStudentRepository(db, cfg.Database.QueryTimeout)
	attendanceRepo := repository.NewAttendanceRepository(db, cfg.Database.QueryTimeout)

	var dedup service.DedupStore
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer client.Close()
		dedup = repository.NewRedisDedupStore(client)
		logr.Info("dedup store: redis")
	} else {
		dedup = repository.NewMemoryDedupStore()
		logr.Info("dedup store: in-memory")
	}

	bus := events.NewBus(cfg.Attendance.EventBuffer, logr)
	defer bus.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	verifier := credentialVerifier(cfg)
	if cfg.Admin.PasswordHash == "" && cfg.Env == config.EnvProduction {
		logr.Warn("ADMIN_PASSWORD_HASH is not set; plaintext admin password in use")
	}
	authService := service.NewAuthService(verifier, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
	})
	studentService := service.NewStudentService(studentRepo, validate, logr)
	attendanceService := service.NewAttendanceService(
		attendanceRepo, studentRepo, dedup, bus, metrics, validate, logr, cfg.Attendance.DedupWindow,
	)
	reportService := service.NewReportService(attendanceRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authService)
	studentHandler := handler.NewStudentHandler(studentService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService, reportService)
	healthHandler := handler.NewHealthHandler(db, cfg.Database.QueryTimeout)
	eventsHandler := handler.NewEventsHandler(bus, cfg.Attendance.PollInterval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/auth/login", authHandler.Login)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))
	{
		students := api.Group("/students")
		{
			students.GET("", studentHandler.List)
			students.GET("/search", studentHandler.Search)
			students.GET("/:id", studentHandler.Get)
			students.POST("", studentHandler.Create)
			students.PUT("/:id", studentHandler.Update)
			students.DELETE("/:id", studentHandler.Delete)
		}

		attendance := api.Group("/attendance")
		{
			attendance.GET("", attendanceHandler.List)
			attendance.GET("/check", attendanceHandler.Check)
			attendance.POST("", attendanceHandler.CheckIn)
			attendance.PUT("/:id/checkout", attendanceHandler.CheckOut)
			attendance.POST("/checkout-all", attendanceHandler.CheckOutAll)
			attendance.DELETE("/all", attendanceHandler.DeleteAll)
			attendance.GET("/report", attendanceHandler.Report)
			attendance.GET("/report/export", attendanceHandler.Export)
		}

		api.GET("/events", eventsHandler.Stream)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// credentialVerifier picks the bcrypt-backed verifier when a hash is
// configured and falls back to the plaintext one for development setups.
func credentialVerifier(cfg *config.Config) service.CredentialVerifier {
	if cfg.Admin.PasswordHash != "" {
		return service.BcryptVerifier{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash}
	}
	return service.PlainVerifier{Username: cfg.Admin.Username, Password: cfg.Admin.Password}
}

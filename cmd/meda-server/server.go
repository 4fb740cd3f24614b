package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Markitchi/Meda/internal/config"
	"github.com/Markitchi/Meda/internal/domain/collaboration"
	"github.com/Markitchi/Meda/internal/domain/consultation"
	"github.com/Markitchi/Meda/internal/domain/diagnosis"
	"github.com/Markitchi/Meda/internal/domain/imaging"
	"github.com/Markitchi/Meda/internal/domain/patient"
	"github.com/Markitchi/Meda/internal/platform/auth"
	"github.com/Markitchi/Meda/internal/platform/blobstore"
	"github.com/Markitchi/Meda/internal/platform/db"
	"github.com/Markitchi/Meda/internal/platform/imageai"
	"github.com/Markitchi/Meda/internal/platform/middleware"
	"github.com/Markitchi/Meda/internal/platform/notification"
	"github.com/Markitchi/Meda/internal/platform/pdfreport"
	"github.com/Markitchi/Meda/internal/platform/phi"
	"github.com/Markitchi/Meda/internal/platform/websocket"
)

// Multipart framing around an upload is small; leave room for it on top of
// the configured file size.
const uploadSlack = 1 << 20

const defaultBodyLimit = 1 << 20

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	enc, err := phi.ParseKeys(cfg.PHIEncryptionKey, cfg.PHIKeyVersion, cfg.PHIPreviousKeys)
	if err != nil {
		return fmt.Errorf("phi keys: %w", err)
	}
	var fieldEnc phi.FieldEncryptor
	if enc != nil {
		fieldEnc = enc
	} else {
		logger.Warn().Msg("PHI_ENCRYPTION_KEY not set, patient contact fields are stored in clear")
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	logger.Info().Str("backend", cfg.StorageBackend).Msg("object storage ready")

	analyzer, err := imageai.NewAnalyzer(imageai.Config{
		MinDelay: cfg.MockMinDelay,
		MaxDelay: cfg.MockMaxDelay,
	})
	if err != nil {
		return fmt.Errorf("image analyzer: %w", err)
	}

	renderer := newRenderer(cfg, logger)

	hub := websocket.NewHub(logger)
	notifications := notification.NewManager(notification.NewStorePG(pool), notification.NewTemplateEngine(), hub, logger)

	patientSvc := patient.NewService(patient.NewPatientRepo(pool, fieldEnc), patient.NewHistoryRepo(pool))
	directory := patient.NewDirectory(patientSvc)

	consultationRepo := consultation.NewRepoPG(pool)
	consultationSvc := consultation.NewService(consultationRepo, directory)

	collaborationSvc := collaboration.NewService(
		collaboration.NewShareRepoPG(pool),
		collaboration.NewCommentRepoPG(pool),
		collaboration.NewAuditLogPG(pool),
		consultationRepo,
		directory,
		notifications,
		logger,
	)

	imagingSvc, err := imaging.NewService(
		imaging.NewImageRepoPG(pool),
		imaging.NewAnalysisRepoPG(pool),
		store,
		analyzer,
		directory,
		notifications,
		imaging.Config{
			MaxUploadBytes: cfg.MaxUploadBytes,
			CacheSize:      cfg.AnalysisCacheSize,
		},
		logger,
	)
	if err != nil {
		return err
	}

	diagnosisSvc := diagnosis.NewService(
		diagnosis.NewAggregator(diagnosis.Options{
			ConfidenceBaseline: cfg.ConfidenceBaseline,
			ConfidenceCap:      cfg.ConfidenceCap,
			MaxDifferential:    cfg.MaxDifferential,
		}),
		diagnosis.NewRepoPG(pool),
		directory,
		imaging.NewDiagnosisSource(imagingSvc),
		consultation.NewDiagnosisLink(consultationRepo),
		analyzer,
		diagnosis.NewTemplateNotifier(notifications),
		renderer,
		cfg.AnalysisConcurrency,
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Request-ID"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(defaultBodyLimit, cfg.MaxUploadBytes+uploadSlack))

	e.GET("/health", db.HealthHandler(map[string]db.Check{
		"database": db.PoolCheck(pool),
		"storage":  store.Ping,
	}))

	authMw, err := authMiddleware(cfg, logger)
	if err != nil {
		return err
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMw)
	apiV1.Use(middleware.Audit(logger, middleware.NewAuditRecorderPG(pool)))

	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	consultation.NewHandler(consultationSvc).RegisterRoutes(apiV1)
	collaboration.NewHandler(collaborationSvc).RegisterRoutes(apiV1)
	imaging.NewHandler(imagingSvc).RegisterRoutes(apiV1)
	diagnosis.NewHandler(diagnosisSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifications).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	imagingSvc.Wait()
	return nil
}

func newStore(cfg *config.Config) (blobstore.Store, error) {
	switch cfg.StorageBackend {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "minio":
		store, err := blobstore.NewMinIOStore(blobstore.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

// newRenderer returns nil when no font is available; PDF export then
// answers 503 instead of failing startup.
func newRenderer(cfg *config.Config, logger zerolog.Logger) diagnosis.Renderer {
	font, err := pdfreport.FindFont(cfg.PDFFontPath)
	if err != nil {
		logger.Warn().Err(err).Msg("PDF export disabled")
		return nil
	}
	r, err := pdfreport.NewRenderer(font)
	if err != nil {
		logger.Warn().Err(err).Str("font", font).Msg("PDF export disabled")
		return nil
	}
	return r
}

func authMiddleware(cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, error) {
	if cfg.IsDev() && cfg.AuthJWKSURL == "" && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("running with development auth, every request is an admin")
		return auth.DevAuthMiddleware(), nil
	}
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
	}), nil
}

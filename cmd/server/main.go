package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/pestscan/internal/alerts"
	"github.com/kdimtricp/pestscan/internal/api"
	"github.com/kdimtricp/pestscan/internal/capture"
	"github.com/kdimtricp/pestscan/internal/checkout"
	"github.com/kdimtricp/pestscan/internal/config"
	"github.com/kdimtricp/pestscan/internal/database"
	"github.com/kdimtricp/pestscan/internal/detection"
	"github.com/kdimtricp/pestscan/internal/inference"
	"github.com/kdimtricp/pestscan/internal/inference/onnx"
	"github.com/kdimtricp/pestscan/internal/media"
	"github.com/kdimtricp/pestscan/internal/prefs"
	"github.com/kdimtricp/pestscan/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.Database.DB())
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrations, err := database.Migrations(db.Type())
	if err != nil {
		logger.Fatal("Failed to load migrations", zap.Error(err))
	}
	if err := database.NewMigrator(db, logger).Run(ctx, migrations); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var (
		bucket  storage.Bucket
		uploads storage.Opener
	)
	if cfg.Storage.URL != "" {
		bucket = storage.NewHTTPStorage(cfg.Storage.URL, cfg.Storage.Bucket, cfg.Storage.Key)
		logger.Info("Using hosted object storage", zap.String("url", cfg.Storage.URL), zap.String("bucket", cfg.Storage.Bucket))
	} else {
		local, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Server.PublicURL)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		bucket, uploads = local, local
		logger.Info("Using local storage", zap.String("dir", cfg.Storage.UploadDir))
	}

	if cfg.Detection.FunctionsURL == "" {
		logger.Warn("FUNCTIONS_URL not set; scan submissions will fail")
	}
	detector := detection.NewClient(cfg.Detection.FunctionsURL, cfg.Detection.FunctionsKey)

	var notifier alerts.Notifier = alerts.NopNotifier{}
	if cfg.Alerts.SMSWebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(cfg.Alerts.SMSWebhookURL)
	}
	alerter := alerts.NewService(database.NewReportRepository(db), database.NewAlertRepository(db), notifier, logger)

	prefStore, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		logger.Fatal("Failed to open preferences", zap.Error(err))
	}

	backend := onnx.NewBackend(onnx.Config{
		CacheDir:          cfg.Inference.CacheDir,
		HubURL:            cfg.Inference.HubURL,
		SharedLibraryPath: cfg.Inference.SharedLibraryPath,
		IntraOpThreads:    cfg.Inference.IntraOpThreads,
	}, logger)
	classifier := inference.NewClassifier(backend, prefStore, logger)
	defer classifier.Close()

	var videos api.VideoClassifier
	frames, err := media.NewFrameExtractor(cfg.Camera.FFmpegPath, logger)
	if err != nil {
		logger.Warn("Video analysis disabled", zap.Error(err))
	} else {
		defer frames.Cleanup()
		videos = inference.NewVideoClassifier(classifier, frames, cfg.Inference.VideoFrames)
	}

	device := capture.NewFFmpegDevice(cfg.Camera.FFmpegPath, cfg.Camera.Device, logger)
	scanner := capture.NewOrchestrator(device, bucket, detector, alerter, logger)
	defer scanner.ReleaseCamera()

	cart := checkout.NewCart(prefStore, logger)

	app := &api.App{
		Scanner:       scanner,
		Classifier:    classifier,
		Videos:        videos,
		Cart:          cart,
		Checkout:      checkout.NewSession(cart, logger),
		Reports:       database.NewReportRepository(db),
		Alerts:        database.NewAlertRepository(db),
		Uploads:       uploads,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        logger,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: api.NewRouter(app),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("database", db.Type()),
		zap.Int64("max_upload_size", cfg.Server.MaxUploadSize),
		zap.String("model", string(classifier.SelectedVariant())))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

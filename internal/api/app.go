package api

import (
	"context"
	"image"

	"github.com/kdimtricp/pestscan/internal/capture"
	"github.com/kdimtricp/pestscan/internal/checkout"
	"github.com/kdimtricp/pestscan/internal/inference"
	"github.com/kdimtricp/pestscan/internal/models"
	"github.com/kdimtricp/pestscan/internal/storage"
	"go.uber.org/zap"
)

// Scanner drives the camera and the upload/detection pipeline.
type Scanner interface {
	Status() capture.Status
	AcquireCamera(ctx context.Context) error
	ReleaseCamera()
	CaptureStillFrame(ctx context.Context) (*capture.Result, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*capture.Result, error)
	SubmitBatch(ctx context.Context, files []*models.Artifact, scanType models.ScanType) (*capture.BatchResult, error)
}

type ImageClassifier interface {
	Status() inference.Status
	SelectModelVariant(size inference.ModelSize) error
	DownloadModel(ctx context.Context, onProgress func(int)) error
	DetectAccelerationSupport() bool
	Classify(ctx context.Context, img image.Image, onStatus func(string)) (*inference.Result, error)
}

type VideoClassifier interface {
	ClassifyVideoBytes(ctx context.Context, data []byte, ext string, onStatus func(string)) (*inference.Result, error)
}

type ReportLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.Report, error)
}

type AlertLister interface {
	ListRecent(ctx context.Context, farmID string, limit int) ([]models.Alert, error)
}

type App struct {
	Scanner    Scanner
	Classifier ImageClassifier
	Videos     VideoClassifier
	Cart       *checkout.Cart
	Checkout   *checkout.Session
	Reports    ReportLister
	Alerts     AlertLister
	// Uploads serves locally stored objects; nil when a hosted store is used.
	Uploads       storage.Opener
	MaxUploadSize int64
	Logger        *zap.Logger
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/kdimtricp/pestscan/internal/alerts"
	"github.com/kdimtricp/pestscan/internal/detection"
	"github.com/kdimtricp/pestscan/internal/models"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrFrameNotReady     = errors.New("video frame not ready")
	ErrNoCamera          = errors.New("camera is not active")
	ErrNotRecording      = errors.New("no recording in progress")
	ErrRecordingActive   = errors.New("recording in progress")
	ErrEmptyRecording    = errors.New("recording produced no data")
	ErrNoFiles           = errors.New("no files selected")
	ErrUnknownScanType   = errors.New("unknown scan type")
)

// Constraints describe the stream a caller would like. Devices treat them as
// preferences.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

var DefaultConstraints = Constraints{FacingMode: "environment", Width: 1280, Height: 720}

type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

type Stream interface {
	// Ready is closed once the stream knows its frame dimensions.
	Ready() <-chan struct{}
	Dimensions() (width, height int)
	Frame() (image.Image, error)
	StartRecording() (Recording, error)
	Stop() error
}

type Recording interface {
	// Chunks yields encoded clip data and is closed after Stop has flushed
	// the encoder.
	Chunks() <-chan []byte
	Stop() error
}

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	PublicURL(key string) string
}

type Detector interface {
	SubmitScan(ctx context.Context, imageURL string, scanType models.ScanType) (*detection.Result, error)
}

type Alerter interface {
	MaybeRaiseAlert(ctx context.Context, reportID string, scanType models.ScanType) (*alerts.Outcome, error)
}

// Result is the outcome of one uploaded and analysed artifact.
type Result struct {
	Filename        string `json:"filename"`
	ImageURL        string `json:"image_url"`
	ReportID        string `json:"report_id"`
	DetectionsCount int    `json:"detections_count"`
	SMSTriggered    bool   `json:"sms_triggered"`
}

type BatchResult struct {
	// ReportID is the first report, the one the caller navigates to.
	ReportID  string    `json:"report_id"`
	ReportIDs []string  `json:"report_ids"`
	Results   []*Result `json:"results"`
}

// ArtifactError names the file whose upload or detection failed.
type ArtifactError struct {
	Filename string
	Op       string
	Err      error
}

func (e *ArtifactError) Error() string {
	switch e.Op {
	case "upload":
		return fmt.Sprintf("Upload failed for %s: %v", e.Filename, e.Err)
	case "detection":
		return fmt.Sprintf("Detection failed for %s: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Filename, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// BatchError aborts a batch. Processed holds the report ids of files handled
// before the failure; they are not rolled back.
type BatchError struct {
	Index     int
	Filename  string
	Processed []string
	Err       error
}

func (e *BatchError) Error() string {
	var ae *ArtifactError
	if errors.As(e.Err, &ae) {
		return ae.Error()
	}
	return fmt.Sprintf("batch stopped at %s: %v", e.Filename, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kdimtricp/pestscan/internal/models"
	"github.com/kdimtricp/pestscan/internal/storage"
	"go.uber.org/zap"
)

const stillQuality = 95

type Option func(*Orchestrator)

// WithMetadataTimeout bounds how long AcquireCamera waits for the stream to
// report its dimensions.
func WithMetadataTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.metadataTimeout = d }
}

func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

func WithTickInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.tickInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the camera stream and drives captures and file batches
// through upload, detection and alerting.
type Orchestrator struct {
	device   Device
	uploader Uploader
	detector Detector
	alerter  Alerter
	logger   *zap.Logger

	metadataTimeout time.Duration
	settleDelay     time.Duration
	tickInterval    time.Duration
	now             func() time.Time

	mu        sync.Mutex
	stream    Stream
	acquiring bool
	// cancelAcquire aborts the acquisition in flight; released records that
	// ReleaseCamera asked for it.
	cancelAcquire context.CancelFunc
	released      bool
	rec           *recordingSession
}

type recordingSession struct {
	rec      Recording
	chunks   [][]byte
	seconds  atomic.Int64
	stopTick chan struct{}
	done     chan struct{}
}

func NewOrchestrator(device Device, uploader Uploader, detector Detector, alerter Alerter, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		device:          device,
		uploader:        uploader,
		detector:        detector,
		alerter:         alerter,
		logger:          logger,
		metadataTimeout: 10 * time.Second,
		settleDelay:     500 * time.Millisecond,
		tickInterval:    time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type Status struct {
	CameraActive     bool `json:"camera_active"`
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	Recording        bool `json:"recording"`
	RecordingSeconds int  `json:"recording_seconds"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	var s Status
	if o.stream != nil {
		s.CameraActive = true
		s.Width, s.Height = o.stream.Dimensions()
	}
	if o.rec != nil {
		s.Recording = true
		s.RecordingSeconds = int(o.rec.seconds.Load())
	}
	return s
}

// AcquireCamera opens the environment-facing camera. It fails with
// ErrCameraUnavailable when the device cannot be opened, when the stream does
// not report dimensions within the metadata timeout, when the dimensions are
// still zero after the settle delay, or when ReleaseCamera is called before
// the stream is up. Nothing is kept on failure.
func (o *Orchestrator) AcquireCamera(ctx context.Context) error {
	o.mu.Lock()
	if o.stream != nil {
		o.mu.Unlock()
		return nil
	}
	if o.acquiring {
		o.mu.Unlock()
		return fmt.Errorf("%w: camera is already starting", ErrCameraUnavailable)
	}
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.acquiring = true
	o.released = false
	o.cancelAcquire = cancel
	o.mu.Unlock()

	stream, err := o.openStream(acquireCtx)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquiring = false
	o.cancelAcquire = nil
	if o.released {
		o.released = false
		if stream != nil {
			if stopErr := stream.Stop(); stopErr != nil {
				o.logger.Warn("Failed to stop camera", zap.Error(stopErr))
			}
		}
		o.logger.Info("Camera released while starting")
		return fmt.Errorf("%w: camera released while starting", ErrCameraUnavailable)
	}
	if err != nil {
		o.logger.Warn("Camera acquisition failed", zap.Error(err))
		return err
	}
	o.stream = stream

	w, h := stream.Dimensions()
	o.logger.Info("Camera started", zap.Int("width", w), zap.Int("height", h))
	return nil
}

func (o *Orchestrator) openStream(ctx context.Context) (Stream, error) {
	if o.device == nil {
		return nil, fmt.Errorf("%w: no camera device configured", ErrCameraUnavailable)
	}

	stream, err := o.device.Open(ctx, DefaultConstraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	timer := time.NewTimer(o.metadataTimeout)
	defer timer.Stop()

	select {
	case <-stream.Ready():
	case <-timer.C:
		stream.Stop()
		return nil, fmt.Errorf("%w: video metadata did not load within %s", ErrCameraUnavailable, o.metadataTimeout)
	case <-ctx.Done():
		stream.Stop()
		return nil, ctx.Err()
	}

	settle := time.NewTimer(o.settleDelay)
	defer settle.Stop()

	select {
	case <-settle.C:
	case <-ctx.Done():
		stream.Stop()
		return nil, ctx.Err()
	}

	if w, h := stream.Dimensions(); w == 0 || h == 0 {
		stream.Stop()
		return nil, fmt.Errorf("%w: invalid video dimensions %dx%d", ErrCameraUnavailable, w, h)
	}

	return stream, nil
}

// ReleaseCamera stops any recording and the stream, and aborts an
// acquisition in flight. Safe to call at any time.
func (o *Orchestrator) ReleaseCamera() {
	o.mu.Lock()
	if o.acquiring {
		o.released = true
		o.cancelAcquire()
	}
	stream := o.stream
	session := o.rec
	o.stream = nil
	o.rec = nil
	o.mu.Unlock()

	if session != nil {
		close(session.stopTick)
		if err := session.rec.Stop(); err != nil {
			o.logger.Warn("Failed to stop recording", zap.Error(err))
		}
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			o.logger.Warn("Failed to stop camera", zap.Error(err))
		}
		o.logger.Info("Camera stopped")
	}
}

// CaptureStillFrame grabs the current frame as a JPEG and submits it as a
// live scan. The camera is released once the scan succeeds. It is refused
// with ErrRecordingActive while a clip is being recorded.
func (o *Orchestrator) CaptureStillFrame(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	stream := o.stream
	recording := o.rec != nil
	o.mu.Unlock()

	if stream == nil {
		return nil, ErrNoCamera
	}
	if recording {
		return nil, ErrRecordingActive
	}
	if w, h := stream.Dimensions(); w == 0 || h == 0 {
		return nil, ErrFrameNotReady
	}

	frame, err := stream.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameNotReady, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: stillQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	artifact := models.NewArtifact(buf.Bytes(), "image/jpeg", models.OriginCameraFrame,
		fmt.Sprintf("live-scan-%d.jpg", o.now().UnixMilli()))

	result, err := o.process(ctx, artifact, models.ScanLive)
	if err != nil {
		return nil, err
	}

	o.ReleaseCamera()
	return result, nil
}

// StartRecording begins a clip on the active stream. Starting while already
// recording does nothing.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return ErrNoCamera
	}
	if o.rec != nil {
		return nil
	}

	rec, err := o.stream.StartRecording()
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	session := &recordingSession{
		rec:      rec,
		stopTick: make(chan struct{}),
		done:     make(chan struct{}),
	}
	o.rec = session

	go func() {
		defer close(session.done)
		for chunk := range rec.Chunks() {
			if len(chunk) > 0 {
				session.chunks = append(session.chunks, chunk)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(o.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				session.seconds.Add(1)
			case <-session.stopTick:
				return
			}
		}
	}()

	o.logger.Info("Recording started")
	return nil
}

// StopRecording finalizes the clip into one WebM artifact and submits it as
// a live scan. The camera is released once the scan succeeds.
func (o *Orchestrator) StopRecording(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	session := o.rec
	o.rec = nil
	o.mu.Unlock()

	if session == nil {
		return nil, ErrNotRecording
	}

	close(session.stopTick)
	if err := session.rec.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}

	select {
	case <-session.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o.logger.Info("Recording stopped",
		zap.Int64("seconds", session.seconds.Load()),
		zap.Int("chunks", len(session.chunks)))

	clip := bytes.Join(session.chunks, nil)
	if len(clip) == 0 {
		return nil, ErrEmptyRecording
	}

	artifact := models.NewArtifact(clip, "video/webm", models.OriginCameraRecording,
		fmt.Sprintf("live-scan-%d.webm", o.now().UnixMilli()))

	result, err := o.process(ctx, artifact, models.ScanLive)
	if err != nil {
		return nil, err
	}

	o.ReleaseCamera()
	return result, nil
}

// SubmitBatch uploads and analyses files one at a time in order. The first
// failure stops the batch; files already processed stay processed.
func (o *Orchestrator) SubmitBatch(ctx context.Context, files []*models.Artifact, scanType models.ScanType) (*BatchResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if !scanType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScanType, scanType)
	}

	batch := &BatchResult{}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, &BatchError{Index: i, Filename: f.Filename, Processed: batch.ReportIDs, Err: err}
		}

		result, err := o.process(ctx, f, scanType)
		if err != nil {
			return nil, &BatchError{Index: i, Filename: f.Filename, Processed: batch.ReportIDs, Err: err}
		}

		batch.ReportIDs = append(batch.ReportIDs, result.ReportID)
		batch.Results = append(batch.Results, result)
	}

	batch.ReportID = batch.ReportIDs[0]
	o.logger.Info("Batch complete",
		zap.String("scan_type", string(scanType)),
		zap.Int("files", len(files)))
	return batch, nil
}

// process runs one artifact through upload, detection and the alert check.
// Network calls are not cancelled once issued.
func (o *Orchestrator) process(ctx context.Context, a *models.Artifact, scanType models.ScanType) (*Result, error) {
	netCtx := context.WithoutCancel(ctx)

	key := storage.RandomKey(a.Ext())
	if err := o.uploader.Upload(netCtx, key, a.ContentType, bytes.NewReader(a.Data)); err != nil {
		return nil, &ArtifactError{Filename: a.Filename, Op: "upload", Err: err}
	}
	url := o.uploader.PublicURL(key)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	det, err := o.detector.SubmitScan(netCtx, url, scanType)
	if err != nil {
		return nil, &ArtifactError{Filename: a.Filename, Op: "detection", Err: err}
	}

	o.logger.Info("Detection complete",
		zap.String("file", a.Filename),
		zap.String("report_id", det.ReportID),
		zap.Int("detections", det.DetectionsCount))

	result := &Result{
		Filename:        a.Filename,
		ImageURL:        url,
		ReportID:        det.ReportID,
		DetectionsCount: det.DetectionsCount,
	}

	if o.alerter != nil {
		outcome, err := o.alerter.MaybeRaiseAlert(netCtx, det.ReportID, scanType)
		if err != nil {
			o.logger.Error("Error in alert check", zap.String("report_id", det.ReportID), zap.Error(err))
		} else if outcome != nil {
			result.SMSTriggered = outcome.SMSTriggered
		}
	}

	return result, nil
}

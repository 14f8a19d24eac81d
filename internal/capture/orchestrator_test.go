package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kdimtricp/pestscan/internal/alerts"
	"github.com/kdimtricp/pestscan/internal/detection"
	"github.com/kdimtricp/pestscan/internal/models"
	"go.uber.org/zap"
)

type fakeRecording struct {
	chunks chan []byte
	once   sync.Once
}

func (r *fakeRecording) Chunks() <-chan []byte { return r.chunks }

func (r *fakeRecording) Stop() error {
	r.once.Do(func() { close(r.chunks) })
	return nil
}

type fakeStream struct {
	mu        sync.Mutex
	ready     chan struct{}
	width     int
	height    int
	stopped   bool
	recStarts int
	rec       *fakeRecording
}

func newFakeStream(w, h int, ready bool) *fakeStream {
	s := &fakeStream{ready: make(chan struct{}), width: w, height: h}
	if ready {
		close(s.ready)
	}
	return s
}

func (s *fakeStream) Ready() <-chan struct{} { return s.ready }

func (s *fakeStream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *fakeStream) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, s.width, s.height)), nil
}

func (s *fakeStream) StartRecording() (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recStarts++
	s.rec = &fakeRecording{chunks: make(chan []byte, 8)}
	return s.rec, nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type upload struct {
	key         string
	contentType string
	data        []byte
}

type fakeUploader struct {
	uploads []upload
	failOn  int // 1-based call number that fails, 0 never
	calls   int
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	u.calls++
	if u.calls == u.failOn {
		return errors.New("The resource already exists")
	}
	data, _ := io.ReadAll(r)
	u.uploads = append(u.uploads, upload{key, contentType, data})
	return nil
}

func (u *fakeUploader) PublicURL(key string) string {
	return "https://cdn.test/crop-scans/" + key
}

type scanCall struct {
	url      string
	scanType models.ScanType
}

type fakeDetector struct {
	calls []scanCall
	err   error
}

func (d *fakeDetector) SubmitScan(ctx context.Context, imageURL string, scanType models.ScanType) (*detection.Result, error) {
	d.calls = append(d.calls, scanCall{imageURL, scanType})
	if d.err != nil {
		return nil, d.err
	}
	return &detection.Result{ReportID: fmt.Sprintf("r%d", len(d.calls)), DetectionsCount: 2}, nil
}

type fakeAlerter struct {
	reports []string
	err     error
	sms     bool
}

func (a *fakeAlerter) MaybeRaiseAlert(ctx context.Context, reportID string, scanType models.ScanType) (*alerts.Outcome, error) {
	a.reports = append(a.reports, reportID)
	if a.err != nil {
		return nil, a.err
	}
	return &alerts.Outcome{SMSTriggered: a.sms}, nil
}

type fixture struct {
	device   *fakeDevice
	uploader *fakeUploader
	detector *fakeDetector
	alerter  *fakeAlerter
	orch     *Orchestrator
}

func newFixture(stream *fakeStream) *fixture {
	f := &fixture{
		device:   &fakeDevice{stream: stream},
		uploader: &fakeUploader{},
		detector: &fakeDetector{},
		alerter:  &fakeAlerter{},
	}
	f.orch = NewOrchestrator(f.device, f.uploader, f.detector, f.alerter, zap.NewNop(),
		WithMetadataTimeout(50*time.Millisecond),
		WithSettleDelay(time.Millisecond),
		WithTickInterval(5*time.Millisecond),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	)
	return f
}

func TestAcquireCamera(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(newFakeStream(1280, 720, true))
		if err := f.orch.AcquireCamera(context.Background()); err != nil {
			t.Fatalf("AcquireCamera failed: %v", err)
		}
		s := f.orch.Status()
		if !s.CameraActive || s.Width != 1280 || s.Height != 720 {
			t.Errorf("Unexpected status %+v", s)
		}
	})

	tests := []struct {
		name   string
		stream *fakeStream
		err    error
	}{
		{"device error", nil, errors.New("permission denied")},
		{"metadata timeout", newFakeStream(1280, 720, false), nil},
		{"zero dimensions", newFakeStream(0, 0, true), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.stream)
			f.device.err = tt.err

			err := f.orch.AcquireCamera(context.Background())
			if !errors.Is(err, ErrCameraUnavailable) {
				t.Fatalf("Expected ErrCameraUnavailable, got %v", err)
			}
			if f.orch.Status().CameraActive {
				t.Error("Expected no active camera after failure")
			}
			if tt.stream != nil && !tt.stream.isStopped() {
				t.Error("Expected stream to be torn down")
			}
		})
	}

	t.Run("no device", func(t *testing.T) {
		o := NewOrchestrator(nil, &fakeUploader{}, &fakeDetector{}, nil, zap.NewNop())
		if err := o.AcquireCamera(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
			t.Errorf("Expected ErrCameraUnavailable, got %v", err)
		}
	})
}

func TestReleaseCamera_Idempotent(t *testing.T) {
	stream := newFakeStream(640, 480, true)
	f := newFixture(stream)

	f.orch.ReleaseCamera()
	if err := f.orch.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("AcquireCamera failed: %v", err)
	}
	f.orch.ReleaseCamera()
	f.orch.ReleaseCamera()

	if !stream.isStopped() {
		t.Error("Expected stream to be stopped")
	}
	if f.orch.Status().CameraActive {
		t.Error("Expected camera to be inactive")
	}
}

func TestCaptureStillFrame(t *testing.T) {
	t.Run("no camera", func(t *testing.T) {
		f := newFixture(nil)
		if _, err := f.orch.CaptureStillFrame(context.Background()); !errors.Is(err, ErrNoCamera) {
			t.Errorf("Expected ErrNoCamera, got %v", err)
		}
	})

	t.Run("frame not ready", func(t *testing.T) {
		stream := newFakeStream(0, 0, true)
		f := newFixture(stream)
		f.orch.stream = stream

		if _, err := f.orch.CaptureStillFrame(context.Background()); !errors.Is(err, ErrFrameNotReady) {
			t.Errorf("Expected ErrFrameNotReady, got %v", err)
		}
		if len(f.uploader.uploads) != 0 {
			t.Error("Expected no upload")
		}
	})

	t.Run("success", func(t *testing.T) {
		stream := newFakeStream(64, 48, true)
		f := newFixture(stream)
		f.alerter.sms = true
		if err := f.orch.AcquireCamera(context.Background()); err != nil {
			t.Fatalf("AcquireCamera failed: %v", err)
		}

		result, err := f.orch.CaptureStillFrame(context.Background())
		if err != nil {
			t.Fatalf("CaptureStillFrame failed: %v", err)
		}

		if len(f.uploader.uploads) != 1 {
			t.Fatalf("Expected 1 upload, got %d", len(f.uploader.uploads))
		}
		up := f.uploader.uploads[0]
		if up.contentType != "image/jpeg" || filepath.Ext(up.key) != ".jpg" {
			t.Errorf("Unexpected upload %s (%s)", up.key, up.contentType)
		}
		if len(up.data) < 2 || up.data[0] != 0xFF || up.data[1] != 0xD8 {
			t.Error("Expected JPEG payload")
		}

		if len(f.detector.calls) != 1 || f.detector.calls[0].scanType != models.ScanLive {
			t.Fatalf("Expected one live_scan detection, got %+v", f.detector.calls)
		}
		if f.detector.calls[0].url != "https://cdn.test/crop-scans/"+up.key {
			t.Errorf("Unexpected detection URL %s", f.detector.calls[0].url)
		}
		if result.ReportID != "r1" || result.Filename != "live-scan-1700000000000.jpg" || !result.SMSTriggered {
			t.Errorf("Unexpected result %+v", result)
		}
		if len(f.alerter.reports) != 1 || f.alerter.reports[0] != "r1" {
			t.Errorf("Expected alert check for r1, got %v", f.alerter.reports)
		}
		if !stream.isStopped() || f.orch.Status().CameraActive {
			t.Error("Expected camera to be released after capture")
		}
	})

	t.Run("upload failure keeps camera", func(t *testing.T) {
		stream := newFakeStream(64, 48, true)
		f := newFixture(stream)
		f.uploader.failOn = 1
		if err := f.orch.AcquireCamera(context.Background()); err != nil {
			t.Fatalf("AcquireCamera failed: %v", err)
		}

		_, err := f.orch.CaptureStillFrame(context.Background())
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if !strings.Contains(err.Error(), "The resource already exists") || !strings.Contains(err.Error(), "live-scan-") {
			t.Errorf("Expected storage message and filename, got %q", err)
		}
		if len(f.detector.calls) != 0 {
			t.Error("Expected no detection after failed upload")
		}
		if stream.isStopped() {
			t.Error("Expected camera to stay active after failure")
		}
	})
}

func TestRecording(t *testing.T) {
	stream := newFakeStream(64, 48, true)
	f := newFixture(stream)
	ctx := context.Background()

	if err := f.orch.StartRecording(ctx); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("Expected ErrNoCamera, got %v", err)
	}
	if _, err := f.orch.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Expected ErrNotRecording, got %v", err)
	}

	if err := f.orch.AcquireCamera(ctx); err != nil {
		t.Fatalf("AcquireCamera failed: %v", err)
	}
	if err := f.orch.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if err := f.orch.StartRecording(ctx); err != nil {
		t.Fatalf("Second StartRecording failed: %v", err)
	}
	if stream.recStarts != 1 {
		t.Errorf("Expected a single recording session, got %d", stream.recStarts)
	}

	stream.rec.chunks <- []byte("webm-")
	stream.rec.chunks <- []byte("data")

	deadline := time.Now().Add(2 * time.Second)
	for f.orch.Status().RecordingSeconds < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Duration counter never advanced")
		}
		time.Sleep(time.Millisecond)
	}

	result, err := f.orch.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}

	if len(f.uploader.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(f.uploader.uploads))
	}
	up := f.uploader.uploads[0]
	if up.contentType != "video/webm" || string(up.data) != "webm-data" {
		t.Errorf("Unexpected clip upload %s %q", up.contentType, up.data)
	}
	if result.Filename != "live-scan-1700000000000.webm" {
		t.Errorf("Unexpected filename %s", result.Filename)
	}
	if f.orch.Status().Recording || !stream.isStopped() {
		t.Error("Expected recording and camera to be stopped")
	}
}

func TestStopRecording_Empty(t *testing.T) {
	stream := newFakeStream(64, 48, true)
	f := newFixture(stream)
	ctx := context.Background()

	f.orch.AcquireCamera(ctx)
	f.orch.StartRecording(ctx)

	if _, err := f.orch.StopRecording(ctx); !errors.Is(err, ErrEmptyRecording) {
		t.Errorf("Expected ErrEmptyRecording, got %v", err)
	}
}

func batchFiles(names ...string) []*models.Artifact {
	files := make([]*models.Artifact, len(names))
	for i, n := range names {
		files[i] = models.NewArtifact([]byte(n), "image/jpeg", models.OriginFileUpload, n)
	}
	return files
}

func TestSubmitBatch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(nil)
		f.alerter.err = errors.New("alerts table missing")

		result, err := f.orch.SubmitBatch(context.Background(), batchFiles("a.jpg", "b.png", "c.mp4"), models.ScanSpotCheck)
		if err != nil {
			t.Fatalf("SubmitBatch failed: %v", err)
		}

		if result.ReportID != "r1" {
			t.Errorf("Expected first report r1, got %s", result.ReportID)
		}
		if len(result.ReportIDs) != 3 || result.ReportIDs[2] != "r3" {
			t.Errorf("Unexpected report ids %v", result.ReportIDs)
		}
		for i, want := range []string{".jpg", ".png", ".mp4"} {
			if filepath.Ext(f.uploader.uploads[i].key) != want {
				t.Errorf("Expected key with %s, got %s", want, f.uploader.uploads[i].key)
			}
		}
		if f.detector.calls[0].scanType != models.ScanSpotCheck {
			t.Errorf("Expected spot_check, got %s", f.detector.calls[0].scanType)
		}
		if len(f.alerter.reports) != 3 {
			t.Errorf("Expected alert check per file, got %d", len(f.alerter.reports))
		}
	})

	t.Run("second upload fails", func(t *testing.T) {
		f := newFixture(nil)
		f.uploader.failOn = 2

		result, err := f.orch.SubmitBatch(context.Background(), batchFiles("one.jpg", "two.jpg", "three.jpg"), models.ScanDroneFlight)
		if result != nil {
			t.Errorf("Expected no batch result, got %+v", result)
		}

		var be *BatchError
		if !errors.As(err, &be) {
			t.Fatalf("Expected BatchError, got %v", err)
		}
		if be.Index != 1 || be.Filename != "two.jpg" {
			t.Errorf("Expected failure at two.jpg, got %d %s", be.Index, be.Filename)
		}
		if len(be.Processed) != 1 || be.Processed[0] != "r1" {
			t.Errorf("Expected exactly r1 processed, got %v", be.Processed)
		}
		if err.Error() != "Upload failed for two.jpg: The resource already exists" {
			t.Errorf("Unexpected error message %q", err)
		}
		if f.uploader.calls != 2 || len(f.detector.calls) != 1 {
			t.Errorf("Expected third file never attempted, got %d uploads %d detections", f.uploader.calls, len(f.detector.calls))
		}
	})

	t.Run("detection fails", func(t *testing.T) {
		f := newFixture(nil)
		f.detector.err = errors.New("Model inference failed")

		_, err := f.orch.SubmitBatch(context.Background(), batchFiles("x.jpg"), models.ScanSpotCheck)
		if err == nil || err.Error() != "Detection failed for x.jpg: Model inference failed" {
			t.Errorf("Unexpected error %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(nil)
		if _, err := f.orch.SubmitBatch(context.Background(), nil, models.ScanSpotCheck); !errors.Is(err, ErrNoFiles) {
			t.Errorf("Expected ErrNoFiles, got %v", err)
		}
		if _, err := f.orch.SubmitBatch(context.Background(), batchFiles("a.jpg"), "bogus"); !errors.Is(err, ErrUnknownScanType) {
			t.Errorf("Expected ErrUnknownScanType, got %v", err)
		}
		if f.uploader.calls != 0 {
			t.Error("Expected no uploads for invalid batches")
		}
	})

	t.Run("cancelled between files", func(t *testing.T) {
		f := newFixture(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.orch.SubmitBatch(ctx, batchFiles("a.jpg", "b.jpg"), models.ScanSpotCheck)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if f.uploader.calls != 0 {
			t.Error("Expected no uploads after cancellation")
		}
	})
}

func TestReleaseCamera_DuringAcquire(t *testing.T) {
	stream := newFakeStream(1280, 720, true)
	f := newFixture(stream)
	f.orch.settleDelay = 200 * time.Millisecond

	errc := make(chan error, 1)
	go func() { errc <- f.orch.AcquireCamera(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for {
		f.orch.mu.Lock()
		acquiring := f.orch.acquiring
		f.orch.mu.Unlock()
		if acquiring || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	f.orch.ReleaseCamera()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrCameraUnavailable) {
			t.Errorf("Expected ErrCameraUnavailable, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AcquireCamera did not return after release")
	}

	if f.orch.Status().CameraActive {
		t.Error("Expected no active camera after release")
	}
	if !stream.isStopped() {
		t.Error("Expected stream to be torn down")
	}

	// a later acquisition is not affected by the earlier release
	f.orch.settleDelay = time.Millisecond
	if err := f.orch.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("AcquireCamera failed: %v", err)
	}
	if !f.orch.Status().CameraActive {
		t.Error("Expected camera to be active")
	}
}

func TestCaptureStillFrame_RefusedWhileRecording(t *testing.T) {
	stream := newFakeStream(64, 48, true)
	f := newFixture(stream)
	if err := f.orch.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("AcquireCamera failed: %v", err)
	}
	if err := f.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	stream.rec.chunks <- []byte("webm-data")

	if _, err := f.orch.CaptureStillFrame(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("Expected ErrRecordingActive, got %v", err)
	}
	if len(f.uploader.uploads) != 0 {
		t.Error("Expected no upload")
	}
	if !f.orch.Status().Recording {
		t.Error("Expected recording to continue")
	}

	result, err := f.orch.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if filepath.Ext(result.Filename) != ".webm" {
		t.Errorf("Expected webm clip, got %s", result.Filename)
	}
}

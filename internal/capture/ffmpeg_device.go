package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	maxFrameSize = 8 << 20
	maxStderrLen = 512
)

// FFmpegDevice captures from a V4L2 camera through an ffmpeg child process
// that emits MJPEG on stdout.
type FFmpegDevice struct {
	ffmpegPath string
	devicePath string
	logger     *zap.Logger
}

func NewFFmpegDevice(ffmpegPath, devicePath string, logger *zap.Logger) *FFmpegDevice {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if devicePath == "" {
		devicePath = "/dev/video0"
	}
	return &FFmpegDevice{ffmpegPath: ffmpegPath, devicePath: devicePath, logger: logger}
}

// Open starts the capture process. The facing mode is fixed by the device
// path.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	procCtx, cancel := context.WithCancel(context.Background())

	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	args = append(args,
		"-i", d.devicePath,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	)

	cmd := exec.CommandContext(procCtx, d.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		device: d,
		cmd:    cmd,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		stderr: &stderr,
	}
	go s.readFrames(stdout)

	d.logger.Debug("Camera process started", zap.String("device", d.devicePath))
	return s, nil
}

type ffmpegStream struct {
	device *FFmpegDevice
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex
	latest []byte
	width  int
	height int
	rec    *ffmpegRecording
}

func (s *ffmpegStream) readFrames(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		s.latest = frame
		if s.width == 0 {
			if cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err == nil {
				s.width, s.height = cfg.Width, cfg.Height
			}
		}
		rec := s.rec
		hasDims := s.width > 0
		s.mu.Unlock()

		if hasDims {
			s.readyOnce.Do(func() { close(s.ready) })
		}
		if rec != nil {
			rec.feed(frame)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.device.logger.Debug("Camera stream ended", zap.Error(err))
	}
}

func (s *ffmpegStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *ffmpegStream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *ffmpegStream) Frame() (image.Image, error) {
	s.mu.Lock()
	frame := s.latest
	s.mu.Unlock()

	if frame == nil {
		return nil, errors.New("no frame received yet")
	}
	return jpeg.Decode(bytes.NewReader(frame))
}

func (s *ffmpegStream) StartRecording() (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil {
		return nil, errors.New("already recording")
	}

	rec, err := startFFmpegRecording(s.device.ffmpegPath, s.device.logger)
	if err != nil {
		return nil, err
	}
	s.rec = rec
	go func() {
		<-rec.stopped
		s.mu.Lock()
		if s.rec == rec {
			s.rec = nil
		}
		s.mu.Unlock()
	}()
	return rec, nil
}

func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}

	s.cancel()
	<-s.done
	err := s.cmd.Wait()

	// stderr is complete once Wait returns
	if msg := stderrTail(s.stderr.Bytes()); msg != "" {
		s.device.logger.Warn("Camera process reported errors",
			zap.String("device", s.device.devicePath),
			zap.String("stderr", msg))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed by cancel
		return nil
	}
	return err
}

// stderrTail returns the trimmed end of ffmpeg's diagnostic output.
func stderrTail(b []byte) string {
	msg := strings.TrimSpace(string(b))
	if len(msg) > maxStderrLen {
		msg = "..." + strings.TrimSpace(msg[len(msg)-maxStderrLen:])
	}
	return msg
}

// ffmpegRecording encodes the live MJPEG frames to WebM with a second ffmpeg.
type ffmpegRecording struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	frames  chan []byte
	chunks  chan []byte
	stopped chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

func startFFmpegRecording(ffmpegPath string, logger *zap.Logger) (*ffmpegRecording, error) {
	cmd := exec.Command(ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "mjpeg", "-i", "pipe:0",
		"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
		"-f", "webm", "pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	r := &ffmpegRecording{
		cmd:     cmd,
		stdin:   stdin,
		frames:  make(chan []byte, 30),
		chunks:  make(chan []byte, 16),
		stopped: make(chan struct{}),
		logger:  logger,
	}

	go r.writeFrames()
	go r.readChunks(stdout)
	return r, nil
}

// feed drops frames when the encoder falls behind.
func (r *ffmpegRecording) feed(frame []byte) {
	select {
	case <-r.stopped:
	case r.frames <- frame:
	default:
	}
}

func (r *ffmpegRecording) writeFrames() {
	defer r.stdin.Close()
	for {
		select {
		case frame := <-r.frames:
			if _, err := r.stdin.Write(frame); err != nil {
				r.logger.Warn("Encoder write failed", zap.Error(err))
				return
			}
		case <-r.stopped:
			return
		}
	}
}

func (r *ffmpegRecording) readChunks(stdout io.Reader) {
	defer close(r.chunks)
	buf := make([]byte, 64<<10)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.chunks <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				r.logger.Warn("Encoder read failed", zap.Error(err))
			}
			break
		}
	}
	if err := r.cmd.Wait(); err != nil {
		r.logger.Warn("Encoder exited with error", zap.Error(err))
	}
}

func (r *ffmpegRecording) Chunks() <-chan []byte {
	return r.chunks
}

// Stop closes the encoder input; Chunks drains once ffmpeg has flushed.
func (r *ffmpegRecording) Stop() error {
	r.once.Do(func() { close(r.stopped) })
	return nil
}

package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FrameExtractor pulls still frames out of video files with ffmpeg.
type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	maxSize     int
	logger      *zap.Logger
}

// NewFrameExtractor resolves ffmpeg from ffmpegPath, or from PATH when empty.
func NewFrameExtractor(ffmpegPath string, logger *zap.Logger) (*FrameExtractor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	logger.Debug("Found ffmpeg", zap.String("path", resolved))

	// ffprobe is optional; duration falls back to parsing ffmpeg output
	ffprobePath, _ := exec.LookPath(filepath.Join(filepath.Dir(resolved), "ffprobe"))
	if ffprobePath == "" {
		ffprobePath, _ = exec.LookPath("ffprobe")
	}

	tempDir, err := os.MkdirTemp("", "pestscan-frames-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &FrameExtractor{
		ffmpegPath:  resolved,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		maxSize:     512,
		logger:      logger,
	}, nil
}

// ExtractFrames returns up to count JPEG frames spaced evenly through the
// video, skipping the very start and end. Frames that fail to decode are
// skipped; an error is returned only when none could be extracted.
func (fe *FrameExtractor) ExtractFrames(ctx context.Context, videoPath string, count int) ([][]byte, error) {
	if count < 1 {
		count = 1
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	duration, err := fe.videoDuration(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get video duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid video duration: %f", duration)
	}

	fe.logger.Debug("Extracting frames",
		zap.String("path", videoPath),
		zap.Float64("duration", duration),
		zap.Int("count", count))

	frames := make([][]byte, 0, count)
	interval := duration / float64(count+1)

	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timestamp := interval * float64(i)
		frameData, err := fe.extractSingleFrame(ctx, videoPath, i, timestamp)
		if err != nil {
			fe.logger.Warn("Failed to extract frame", zap.Int("frame", i), zap.Error(err))
			continue
		}
		frames = append(frames, frameData)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("failed to extract any frames from video (attempted %d frames)", count)
	}

	return frames, nil
}

func (fe *FrameExtractor) videoDuration(ctx context.Context, videoPath string) (float64, error) {
	if fe.ffprobePath != "" {
		cmd := exec.CommandContext(ctx, fe.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Run(); err == nil {
			if duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64); err == nil && duration > 0 {
				return duration, nil
			}
		}
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	return ParseDuration(stderr.String())
}

// ParseDuration reads the "Duration: HH:MM:SS.xx," line of ffmpeg's banner.
func ParseDuration(output string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(output, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	start += len(prefix)

	end := strings.Index(output[start:], ",")
	if end == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	durationStr := output[start : start+end]
	parts := strings.Split(durationStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", durationStr)
	}

	var total float64
	for i, unit := range []float64{3600, 60, 1} {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format: %s", durationStr)
		}
		total += v * unit
	}
	return total, nil
}

func (fe *FrameExtractor) extractSingleFrame(ctx context.Context, videoPath string, index int, timestamp float64) ([]byte, error) {
	tmp, err := os.CreateTemp(fe.tempDir, fmt.Sprintf("frame-%d-*.jpg", index))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempFile := tmp.Name()
	tmp.Close()
	defer os.Remove(tempFile)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", fe.maxSize, fe.maxSize),
		"-q:v", "2",
		"-f", "mjpeg",
		tempFile,
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		fe.logger.Debug("ffmpeg failed", zap.String("stderr", stderr.String()))
		return nil, fmt.Errorf("failed to extract frame at %f: %w", timestamp, err)
	}

	file, err := os.Open(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open extracted frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return buf.Bytes(), nil
}

func (fe *FrameExtractor) Cleanup() error {
	return os.RemoveAll(fe.tempDir)
}

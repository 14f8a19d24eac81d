package inference

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const DefaultVideoFrames = 5

// FrameSource extracts evenly spaced JPEG frames from a video file.
type FrameSource interface {
	ExtractFrames(ctx context.Context, videoPath string, count int) ([][]byte, error)
}

// VideoClassifier classifies videos by sampling frames and keeping the most
// severe verdict.
type VideoClassifier struct {
	classifier *Classifier
	frames     FrameSource
	count      int
}

func NewVideoClassifier(classifier *Classifier, frames FrameSource, count int) *VideoClassifier {
	if count < 1 {
		count = DefaultVideoFrames
	}
	return &VideoClassifier{classifier: classifier, frames: frames, count: count}
}

func (v *VideoClassifier) ClassifyVideo(ctx context.Context, videoPath string, onStatus func(string)) (*Result, error) {
	start := v.classifier.now()

	frames, err := v.frames.ExtractFrames(ctx, videoPath, v.count)
	if err != nil {
		return nil, fmt.Errorf("failed to extract frames: %w", err)
	}

	var images [][]byte
	for _, f := range frames {
		if len(f) > 0 {
			images = append(images, f)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoFrames
	}

	var best *Result
	for i, data := range images {
		if onStatus != nil {
			onStatus(fmt.Sprintf("Analyzing frame %d of %d...", i+1, len(images)))
		}
		result, err := v.classifier.ClassifyImageBytes(ctx, data, nil)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		if best == nil || moreSevere(result, best) {
			best = result
		}
	}

	best.ProcessingTime = v.classifier.now().Sub(start)
	best.ProcessingMs = best.ProcessingTime.Milliseconds()
	return best, nil
}

// ClassifyVideoBytes spools data to a temp file with the given extension and
// classifies it.
func (v *VideoClassifier) ClassifyVideoBytes(ctx context.Context, data []byte, ext string, onStatus func(string)) (*Result, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "webm"
	}

	f, err := os.CreateTemp("", "pestscan-video-*."+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	return v.ClassifyVideo(ctx, f.Name(), onStatus)
}

func moreSevere(a, b *Result) bool {
	if a.InfestationLevel.Rank() != b.InfestationLevel.Rank() {
		return a.InfestationLevel.Rank() > b.InfestationLevel.Rank()
	}
	return a.Confidence > b.Confidence
}

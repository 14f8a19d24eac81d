package inference

import "errors"

var (
	// ErrModelLoading is returned to callers that arrive while another load
	// is in flight. They are not queued behind it.
	ErrModelLoading    = errors.New("model is still loading")
	ErrModelLoadFailed = errors.New("failed to load model")
	ErrUnknownVariant  = errors.New("unknown model variant")
	ErrNoFrames        = errors.New("no frames to classify")
)

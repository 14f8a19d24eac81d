package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	ModelSizeKey   = "farmcare-pest-model-size"
	ModelCachedKey = "farmcare-pest-model-cached"

	TopK = 10
)

type Execution int

const (
	ExecAccelerated Execution = iota
	ExecPortable
)

func (e Execution) String() string {
	if e == ExecAccelerated {
		return "accelerated"
	}
	return "portable"
}

// Backend loads pretrained image classifiers.
type Backend interface {
	// Load fetches (or reuses) the model and prepares it for exec. onProgress
	// receives whole percentages while downloading and may be nil.
	Load(ctx context.Context, modelID string, exec Execution, onProgress func(int)) (Model, error)
	AccelerationAvailable() bool
}

type Model interface {
	Classify(ctx context.Context, img image.Image, topK int) ([]Label, error)
	Close() error
}

type Preferences interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

type Result struct {
	IsPest           bool     `json:"is_pest"`
	Confidence       float64  `json:"confidence"`
	Labels           []Label  `json:"labels"`
	InfestationLevel Level    `json:"infestation_level"`
	PestTypes        []string `json:"pest_types"`
	// ProcessingTime is wall-clock time from call to verdict, including
	// any model load it triggered.
	ProcessingTime time.Duration `json:"-"`
	ProcessingMs   int64         `json:"processing_time_ms"`
}

// Status is a point-in-time view of the classifier for reporting.
type Status struct {
	Selected  ModelSize `json:"selected"`
	Loaded    ModelSize `json:"loaded,omitempty"`
	Execution string    `json:"execution,omitempty"`
	Loading   bool      `json:"loading"`
	Cached    bool      `json:"cached"`
}

// Classifier owns the loaded model. The zero value is not usable; construct
// with NewClassifier.
type Classifier struct {
	backend Backend
	prefs   Preferences
	logger  *zap.Logger
	now     func() time.Time

	// runMu is held for reading while a model runs so that discarding the
	// model waits for in-flight inference.
	runMu sync.RWMutex

	mu            sync.Mutex
	model         Model
	loadedVariant ModelSize
	loadedExec    Execution
	loading       bool
}

func NewClassifier(backend Backend, prefs Preferences, logger *zap.Logger) *Classifier {
	return &Classifier{
		backend: backend,
		prefs:   prefs,
		logger:  logger,
		now:     time.Now,
	}
}

// SelectedVariant returns the persisted choice, falling back to tiny.
func (c *Classifier) SelectedVariant() ModelSize {
	if v, ok := c.prefs.Get(ModelSizeKey); ok {
		if size, err := ParseModelSize(v); err == nil {
			return size
		}
	}
	return DefaultModelSize
}

// SelectModelVariant persists size, clears the cached flag and drops any
// loaded model so the next classification loads the new variant.
func (c *Classifier) SelectModelVariant(size ModelSize) error {
	if _, ok := modelOptions[size]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, size)
	}

	if err := c.prefs.Set(ModelSizeKey, string(size)); err != nil {
		return fmt.Errorf("failed to save model selection: %w", err)
	}
	if err := c.prefs.Remove(ModelCachedKey); err != nil {
		c.logger.Warn("Could not clear model cache flag", zap.Error(err))
	}

	c.discard()
	c.logger.Info("Model variant selected", zap.String("variant", string(size)))
	return nil
}

// IsModelCached reports whether the selected variant has been loaded before.
func (c *Classifier) IsModelCached() bool {
	v, ok := c.prefs.Get(ModelCachedKey)
	return ok && v == string(c.SelectedVariant())
}

func (c *Classifier) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Selected: c.SelectedVariant(),
		Loading:  c.loading,
		Cached:   c.IsModelCached(),
	}
	if c.model != nil {
		s.Loaded = c.loadedVariant
		s.Execution = c.loadedExec.String()
	}
	return s
}

// Ready reports whether the selected variant is loaded.
func (c *Classifier) Ready() bool {
	selected := c.SelectedVariant()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil && c.loadedVariant == selected
}

// EnsureModelLoaded loads the selected variant unless it is already loaded.
// The accelerated backend is tried first, then the portable one. Callers
// arriving while a load is running get ErrModelLoading immediately.
func (c *Classifier) EnsureModelLoaded(ctx context.Context, onProgress func(int)) error {
	selected := c.SelectedVariant()

	c.mu.Lock()
	if c.model != nil && c.loadedVariant == selected {
		c.mu.Unlock()
		return nil
	}
	if c.loading {
		c.mu.Unlock()
		return ErrModelLoading
	}
	c.loading = true
	stale := c.model != nil
	c.mu.Unlock()

	if stale {
		c.discard()
	}

	model, exec, err := c.load(ctx, selected, onProgress)

	c.mu.Lock()
	c.loading = false
	if err == nil {
		c.model = model
		c.loadedVariant = selected
		c.loadedExec = exec
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if err := c.prefs.Set(ModelCachedKey, string(selected)); err != nil {
		c.logger.Warn("Could not save model cache flag", zap.Error(err))
	}
	return nil
}

func (c *Classifier) load(ctx context.Context, size ModelSize, onProgress func(int)) (Model, Execution, error) {
	modelID := size.Option().ID
	c.logger.Info("Initializing pest detection model", zap.String("model", modelID))

	model, err := c.backend.Load(ctx, modelID, ExecAccelerated, onProgress)
	if err == nil {
		c.logger.Info("Pest detection model loaded", zap.String("model", modelID), zap.String("execution", ExecAccelerated.String()))
		return model, ExecAccelerated, nil
	}
	c.logger.Warn("Failed to load accelerated model, trying portable fallback", zap.String("model", modelID), zap.Error(err))

	model, fallbackErr := c.backend.Load(ctx, modelID, ExecPortable, onProgress)
	if fallbackErr != nil {
		c.logger.Error("Failed to load model", zap.String("model", modelID), zap.Error(fallbackErr))
		return nil, 0, fmt.Errorf("%w %s: %w", ErrModelLoadFailed, modelID, errors.Join(err, fallbackErr))
	}

	c.logger.Info("Pest detection model loaded", zap.String("model", modelID), zap.String("execution", ExecPortable.String()))
	return model, ExecPortable, nil
}

func (c *Classifier) discard() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	model := c.model
	c.model = nil
	c.loadedVariant = ""
	c.mu.Unlock()

	if model != nil {
		if err := model.Close(); err != nil {
			c.logger.Warn("Failed to release model", zap.Error(err))
		}
	}
}

// Close releases the loaded model, if any.
func (c *Classifier) Close() error {
	c.discard()
	return nil
}

// Classify runs the selected model on img and applies the pest heuristic.
// onStatus, when set, receives short progress messages.
func (c *Classifier) Classify(ctx context.Context, img image.Image, onStatus func(string)) (*Result, error) {
	start := c.now()
	status := func(s string) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	if !c.Ready() {
		status("Loading AI model...")
		if err := c.EnsureModelLoaded(ctx, nil); err != nil {
			return nil, fmt.Errorf("failed to initialize pest detection model: %w", err)
		}
	}

	status("Processing image...")
	prepared, err := PrepareImage(img)
	if err != nil {
		return nil, err
	}

	status("Analyzing for pests...")
	labels, err := c.run(ctx, prepared)
	if err != nil {
		return nil, err
	}

	analysis := AnalyzeLabels(labels)
	elapsed := c.now().Sub(start)

	return &Result{
		IsPest:           analysis.IsPest,
		Confidence:       analysis.Confidence,
		Labels:           labels,
		InfestationLevel: InfestationLevel(analysis.IsPest, analysis.Confidence),
		PestTypes:        analysis.PestTypes,
		ProcessingTime:   elapsed,
		ProcessingMs:     elapsed.Milliseconds(),
	}, nil
}

// ClassifyImageBytes decodes data and classifies it.
func (c *Classifier) ClassifyImageBytes(ctx context.Context, data []byte, onStatus func(string)) (*Result, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return c.Classify(ctx, img, onStatus)
}

func (c *Classifier) run(ctx context.Context, img image.Image) ([]Label, error) {
	c.runMu.RLock()
	defer c.runMu.RUnlock()

	c.mu.Lock()
	model := c.model
	c.mu.Unlock()

	if model == nil {
		// the variant changed between load and run
		return nil, fmt.Errorf("failed to initialize pest detection model: %w", ErrModelLoading)
	}

	labels, err := model.Classify(ctx, img, TopK)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(labels) > TopK {
		labels = labels[:TopK]
	}
	return labels, nil
}

// DetectAccelerationSupport reports whether the accelerated backend can run
// on this host. It never panics.
func (c *Classifier) DetectAccelerationSupport() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Acceleration check panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	return c.backend.AccelerationAvailable()
}

// DownloadModel fetches and loads the selected variant ahead of first use.
func (c *Classifier) DownloadModel(ctx context.Context, onProgress func(int)) error {
	if c.Ready() {
		return c.prefs.Set(ModelCachedKey, string(c.SelectedVariant()))
	}
	return c.EnsureModelLoaded(ctx, onProgress)
}

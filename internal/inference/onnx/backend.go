package onnx

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kdimtricp/pestscan/internal/inference"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

type Config struct {
	CacheDir          string
	HubURL            string
	SharedLibraryPath string
	IntraOpThreads    int
}

// Backend runs Hugging Face image classifiers exported to ONNX. The
// accelerated execution uses the CUDA provider; portable execution is plain
// CPU.
type Backend struct {
	cfg        Config
	downloader *Downloader
	logger     *zap.Logger

	initOnce sync.Once
	initErr  error
}

func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	return &Backend{
		cfg:        cfg,
		downloader: NewDownloader(cfg.HubURL, cfg.CacheDir, logger),
		logger:     logger,
	}
}

func (b *Backend) initRuntime() error {
	b.initOnce.Do(func() {
		libPath := resolveSharedLibraryPath(b.cfg.SharedLibraryPath)
		if libPath == "" {
			b.initErr = fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				b.initErr = fmt.Errorf("initialize onnxruntime: %w", err)
				return
			}
		}
		b.logger.Info("onnxruntime initialized", zap.String("library", libPath))
	})
	return b.initErr
}

func (b *Backend) Load(ctx context.Context, modelID string, exec inference.Execution, onProgress func(int)) (inference.Model, error) {
	if err := b.initRuntime(); err != nil {
		return nil, err
	}

	dir, err := b.downloader.Fetch(ctx, modelID, onProgress)
	if err != nil {
		return nil, err
	}

	labels, err := loadLabels(filepath.Join(dir, configFile))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	pre, err := loadPreprocessor(filepath.Join(dir, preprocessorFile))
	if err != nil {
		return nil, fmt.Errorf("load preprocessor config: %w", err)
	}

	opts, err := b.sessionOptions(exec)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	modelPath := filepath.Join(dir, filepath.FromSlash(modelFile))
	inputs, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("expected one image input, got %d inputs and %d outputs", len(inputs), len(outputs))
	}

	w, h, err := pre.inputSize()
	if err != nil {
		return nil, err
	}
	// fixed spatial dims in the graph win over the preprocessor config
	if d := inputs[0].Dimensions; len(d) == 4 && d[2] > 0 && d[3] > 0 {
		h, w = int(d[2]), int(d[3])
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(h), int64(w)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{logitsOutput(outputs)},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &model{
		session: session,
		input:   input,
		output:  output,
		labels:  labels,
		pre:     pre,
		width:   w,
		height:  h,
	}, nil
}

func (b *Backend) sessionOptions(exec inference.Execution) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if b.cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(b.cfg.IntraOpThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set intra threads: %w", err)
		}
	}

	if exec == inference.ExecAccelerated {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("enable CUDA provider: %w", err)
		}
	}

	return opts, nil
}

// AccelerationAvailable reports whether a CUDA session could be configured.
func (b *Backend) AccelerationAvailable() bool {
	if err := b.initRuntime(); err != nil {
		return false
	}
	opts, err := b.sessionOptions(inference.ExecAccelerated)
	if err != nil {
		b.logger.Debug("CUDA provider unavailable", zap.Error(err))
		return false
	}
	opts.Destroy()
	return true
}

type model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	pre     *preprocessor
	width   int
	height  int
}

func (m *model) Classify(ctx context.Context, img image.Image, k int) ([]inference.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pre.fill(img, m.width, m.height, m.input.GetData()); err != nil {
		return nil, err
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return topK(softmax(m.output.GetData()), m.labels, k), nil
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.session != nil {
		err = m.session.Destroy()
		m.session = nil
	}
	m.input.Destroy()
	m.output.Destroy()
	return err
}

func logitsOutput(outputs []ort.InputOutputInfo) string {
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name
		}
	}
	return outputs[0].Name
}

// resolveSharedLibraryPath prefers the configured path, then the environment,
// then common install locations.
func resolveSharedLibraryPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{".", "lib", "/opt/homebrew/lib", "/usr/local/lib", "/usr/lib"}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

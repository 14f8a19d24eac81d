package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdimtricp/pestscan/internal/config"
	"github.com/kdimtricp/pestscan/internal/inference"
	"github.com/kdimtricp/pestscan/internal/inference/onnx"
	"github.com/kdimtricp/pestscan/internal/media"
	"github.com/kdimtricp/pestscan/internal/prefs"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		variant    = flag.String("model", "", "Model variant to use (tiny, small, medium, full)")
		asJSON     = flag.Bool("json", false, "Print the result as JSON")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("Usage: classify [flags] <image-or-video>")
	}
	path := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	prefStore, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		logger.Fatal("Failed to open preferences", zap.Error(err))
	}

	backend := onnx.NewBackend(onnx.Config{
		CacheDir:          cfg.Inference.CacheDir,
		HubURL:            cfg.Inference.HubURL,
		SharedLibraryPath: cfg.Inference.SharedLibraryPath,
		IntraOpThreads:    cfg.Inference.IntraOpThreads,
	}, logger)
	classifier := inference.NewClassifier(backend, prefStore, logger)
	defer classifier.Close()

	if *variant != "" {
		size, err := inference.ParseModelSize(*variant)
		if err != nil {
			logger.Fatal("Invalid model variant", zap.Error(err))
		}
		if err := classifier.SelectModelVariant(size); err != nil {
			logger.Fatal("Failed to select model", zap.Error(err))
		}
	}

	ctx := context.Background()
	fmt.Printf("Loading %s model...\n", classifier.SelectedVariant().Option().Name)
	err = classifier.DownloadModel(ctx, func(p int) {
		fmt.Printf("\rDownloading model: %3d%%", p)
	})
	fmt.Println()
	if err != nil {
		logger.Fatal("Failed to load model", zap.Error(err))
	}

	status := func(s string) { fmt.Println(s) }

	var result *inference.Result
	if strings.HasPrefix(mime.TypeByExtension(filepath.Ext(path)), "video/") {
		frames, err := media.NewFrameExtractor(cfg.Camera.FFmpegPath, logger)
		if err != nil {
			logger.Fatal("Failed to initialize frame extractor", zap.Error(err))
		}
		defer frames.Cleanup()

		result, err = inference.NewVideoClassifier(classifier, frames, cfg.Inference.VideoFrames).
			ClassifyVideo(ctx, path, status)
		if err != nil {
			logger.Fatal("Failed to classify video", zap.Error(err))
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("Failed to read image", zap.Error(err))
		}
		result, err = classifier.ClassifyImageBytes(ctx, data, status)
		if err != nil {
			logger.Fatal("Failed to classify image", zap.Error(err))
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	fmt.Println()
	if result.IsPest {
		fmt.Printf("Pest detected: %s\n", strings.Join(result.PestTypes, ", "))
	} else {
		fmt.Println("No pest detected")
	}
	fmt.Printf("Confidence: %.1f%%\n", result.Confidence)
	fmt.Printf("Infestation level: %s\n", result.InfestationLevel)
	fmt.Printf("Processing time: %dms\n", result.ProcessingMs)
	fmt.Println("Top labels:")
	for _, l := range result.Labels {
		fmt.Printf("  %-40s %.3f\n", l.Label, l.Score)
	}
}

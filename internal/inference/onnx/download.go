package onnx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const DefaultHubURL = "https://huggingface.co"

const (
	modelFile        = "onnx/model.onnx"
	configFile       = "config.json"
	preprocessorFile = "preprocessor_config.json"
)

// Downloader mirrors model repository files into a local cache directory.
type Downloader struct {
	hubURL     string
	cacheDir   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDownloader(hubURL, cacheDir string, logger *zap.Logger) *Downloader {
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	return &Downloader{
		hubURL:     strings.TrimRight(hubURL, "/"),
		cacheDir:   cacheDir,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// ModelDir is where files for modelID are cached.
func (d *Downloader) ModelDir(modelID string) string {
	return filepath.Join(d.cacheDir, strings.ReplaceAll(modelID, "/", "--"))
}

// Fetch makes sure the model, its config and its preprocessor config are
// present locally and returns the model directory. Progress is reported in
// whole percent of the model file; cached files report 100 straight away.
func (d *Downloader) Fetch(ctx context.Context, modelID string, onProgress func(int)) (string, error) {
	dir := d.ModelDir(modelID)

	for _, name := range []string{configFile, preprocessorFile} {
		if err := d.fetchFile(ctx, modelID, name, nil); err != nil {
			return "", err
		}
	}
	if err := d.fetchFile(ctx, modelID, modelFile, onProgress); err != nil {
		return "", err
	}

	return dir, nil
}

func (d *Downloader) fetchFile(ctx context.Context, modelID, name string, onProgress func(int)) error {
	dst := filepath.Join(d.ModelDir(modelID), filepath.FromSlash(name))
	if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
		if onProgress != nil {
			onProgress(100)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	src := fmt.Sprintf("%s/%s/resolve/main/%s", d.hubURL, modelID, (&url.URL{Path: name}).EscapedPath())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	d.logger.Info("Downloading model file", zap.String("model", modelID), zap.String("file", name))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = resp.Body
	if onProgress != nil && resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, report: onProgress, last: -1}
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

type progressReader struct {
	r      io.Reader
	read   int64
	total  int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	pct := int(p.read * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	// 100 is reported once the file is in place
	if pct != p.last && pct < 100 {
		p.last = pct
		p.report(pct)
	}
	return n, err
}

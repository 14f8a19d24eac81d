package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kdimtricp/pestscan/internal/inference"
	"go.uber.org/zap"
)

type modelResponse struct {
	Status  inference.Status        `json:"status"`
	Options []inference.ModelOption `json:"options"`
}

func (app *App) ModelStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelResponse{
		Status:  app.Classifier.Status(),
		Options: inference.ModelOptions(),
	})
}

func (app *App) SelectModelHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size string `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if err := app.Classifier.SelectModelVariant(inference.ModelSize(req.Size)); err != nil {
		app.writeError(w, err)
		return
	}
	app.ModelStatusHandler(w, r)
}

func (app *App) AccelerationHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"available": app.Classifier.DetectAccelerationSupport(),
	})
}

// LoadModelHandler downloads and loads the selected variant. Clients that
// accept text/event-stream receive progress events while it runs.
func (app *App) LoadModelHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		if err := app.Classifier.DownloadModel(r.Context(), nil); err != nil {
			app.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, app.Classifier.Status())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	progress := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- app.Classifier.DownloadModel(r.Context(), func(p int) {
			select {
			case progress <- p:
			default:
			}
		})
	}()

	clientGone := r.Context().Done()
	for {
		select {
		case p := <-progress:
			writeEvent(w, "progress", map[string]int{"progress": p})
			flusher.Flush()

		case err := <-done:
			if err != nil {
				app.Logger.Warn("Model load failed", zap.Error(err))
				writeEvent(w, "error", errorResponse{Error: err.Error()})
			} else {
				writeEvent(w, "ready", app.Classifier.Status())
			}
			flusher.Flush()
			return

		case <-clientGone:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// ClassifyHandler runs the local model on an uploaded "image" file, which may
// also be a video.
func (app *App) ClassifyHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		badRequest(w, "File too large")
		return
	}

	_, header, err := r.FormFile("image")
	if err != nil {
		badRequest(w, "Failed to get file")
		return
	}

	artifact, err := readArtifact(header)
	if err != nil {
		badRequest(w, "Failed to read "+header.Filename)
		return
	}

	var result *inference.Result
	if artifact.IsVideo() {
		if app.Videos == nil {
			badRequest(w, "Video analysis is not available")
			return
		}
		result, err = app.Videos.ClassifyVideoBytes(r.Context(), artifact.Data, filepath.Ext(artifact.Filename), nil)
	} else {
		img, decodeErr := inference.DecodeImage(artifact.Data)
		if decodeErr != nil {
			badRequest(w, "Unsupported image format")
			return
		}
		result, err = app.Classifier.Classify(r.Context(), img, nil)
	}
	if err != nil {
		app.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

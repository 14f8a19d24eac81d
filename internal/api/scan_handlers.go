package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/kdimtricp/pestscan/internal/capture"
	"github.com/kdimtricp/pestscan/internal/models"
)

// SubmitScansHandler accepts multipart "files" and a "scan_type" and runs the
// batch through upload and detection.
func (app *App) SubmitScansHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		badRequest(w, "File too large")
		return
	}

	scanType := models.ScanSpotCheck
	if v := r.FormValue("scan_type"); v != "" {
		parsed, err := models.ParseScanType(v)
		if err != nil {
			app.writeError(w, fmt.Errorf("%w: %q", capture.ErrUnknownScanType, v))
			return
		}
		scanType = parsed
	}

	var artifacts []*models.Artifact
	for _, header := range r.MultipartForm.File["files"] {
		a, err := readArtifact(header)
		if err != nil {
			badRequest(w, "Failed to read "+header.Filename)
			return
		}
		artifacts = append(artifacts, a)
	}

	batch, err := app.Scanner.SubmitBatch(r.Context(), artifacts, scanType)
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func readArtifact(header *multipart.FileHeader) (*models.Artifact, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return models.NewArtifact(data, contentType, models.OriginFileUpload, header.Filename), nil
}

func (app *App) LiveStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Scanner.Status())
}

func (app *App) AcquireCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Scanner.AcquireCamera(r.Context()); err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Scanner.Status())
}

func (app *App) ReleaseCameraHandler(w http.ResponseWriter, r *http.Request) {
	app.Scanner.ReleaseCamera()
	writeJSON(w, http.StatusOK, app.Scanner.Status())
}

func (app *App) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	result, err := app.Scanner.CaptureStillFrame(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (app *App) StartRecordingHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Scanner.StartRecording(r.Context()); err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Scanner.Status())
}

func (app *App) StopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	result, err := app.Scanner.StopRecording(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

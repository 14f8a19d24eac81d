package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kdimtricp/pestscan/internal/capture"
	"github.com/kdimtricp/pestscan/internal/checkout"
	"github.com/kdimtricp/pestscan/internal/database"
	"github.com/kdimtricp/pestscan/internal/inference"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string   `json:"error"`
	Field     string   `json:"field,omitempty"`
	ReportIDs []string `json:"report_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (app *App) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var berr *capture.BatchError
	if errors.As(err, &berr) {
		resp.ReportIDs = berr.Processed
	}

	if status >= http.StatusInternalServerError {
		app.Logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func statusFor(err error) int {
	var verr *checkout.ValidationError
	var aerr *capture.ArtifactError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, capture.ErrNoFiles),
		errors.Is(err, capture.ErrUnknownScanType),
		errors.Is(err, inference.ErrUnknownVariant):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrItemNotFound),
		errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrNotConfirmable),
		errors.Is(err, checkout.ErrProcessing),
		errors.Is(err, capture.ErrNoCamera),
		errors.Is(err, capture.ErrNotRecording),
		errors.Is(err, capture.ErrRecordingActive),
		errors.Is(err, capture.ErrFrameNotReady),
		errors.Is(err, capture.ErrEmptyRecording):
		return http.StatusConflict
	case errors.Is(err, inference.ErrNoFrames):
		return http.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrCameraUnavailable),
		errors.Is(err, inference.ErrModelLoading),
		errors.Is(err, inference.ErrModelLoadFailed):
		return http.StatusServiceUnavailable
	case errors.As(err, &aerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

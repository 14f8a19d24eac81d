package api

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// ServeUploadHandler streams a locally stored scan artifact. Range requests
// are handled by http.ServeContent.
func (app *App) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	file, err := app.Uploads.Open(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			app.Logger.Warn("Failed to open upload", zap.String("key", key), zap.Error(err))
		}
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	modTime := time.Time{}
	if f, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		if stat, err := f.Stat(); err == nil {
			modTime = stat.ModTime()
		}
	}

	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "max-age=3600")

	http.ServeContent(w, r, key, modTime, file)
}

func (app *App) RecentReportsHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := app.Reports.ListRecent(r.Context(), listLimit(r))
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (app *App) RecentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	alerts, err := app.Alerts.ListRecent(r.Context(), r.URL.Query().Get("farm_id"), listLimit(r))
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

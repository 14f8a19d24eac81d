package models

import (
	"mime"
	"path/filepath"
	"strings"
)

type Origin string

const (
	OriginCameraFrame     Origin = "camera-frame"
	OriginCameraRecording Origin = "camera-recording"
	OriginFileUpload      Origin = "file-upload"
)

// Artifact is a captured still, clip or user-selected file held in memory
// until it has been uploaded.
type Artifact struct {
	Data        []byte
	ContentType string
	Origin      Origin
	Filename    string
}

func NewArtifact(data []byte, contentType string, origin Origin, filename string) *Artifact {
	return &Artifact{
		Data:        data,
		ContentType: contentType,
		Origin:      origin,
		Filename:    filename,
	}
}

func (a *Artifact) Size() int64 {
	return int64(len(a.Data))
}

func (a *Artifact) IsVideo() bool {
	return strings.HasPrefix(a.ContentType, "video/")
}

// Ext returns the extension without the leading dot, taken from the filename
// or, failing that, from the content type.
func (a *Artifact) Ext() string {
	if ext := strings.TrimPrefix(filepath.Ext(a.Filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	switch a.ContentType {
	case "image/jpeg":
		return "jpg"
	case "video/webm":
		return "webm"
	case "video/mp4":
		return "mp4"
	}
	if exts, err := mime.ExtensionsByType(a.ContentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

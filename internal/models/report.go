package models

import (
	"time"

	"github.com/google/uuid"
)

// Infestation levels as written by the detection function.
const (
	LevelHigh   = "HIGH"
	LevelMedium = "MEDIUM"
	LevelLow    = "LOW"
	LevelNone   = "NONE"
)

type Report struct {
	ID               string    `db:"id" json:"id"`
	FarmID           string    `db:"farm_id" json:"farm_id"`
	InfestationLevel string    `db:"infestation_level" json:"infestation_level"`
	ScanType         string    `db:"scan_type" json:"scan_type"`
	ImageURL         string    `db:"image_url" json:"image_url"`
	DetectionsCount  int       `db:"detections_count" json:"detections_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Alert struct {
	ID        string    `db:"id" json:"id"`
	FarmID    string    `db:"farm_id" json:"farm_id"`
	AlertType string    `db:"alert_type" json:"alert_type"`
	Severity  string    `db:"severity" json:"severity"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	Priority  int       `db:"priority" json:"priority"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func NewAlert(farmID, alertType, severity, message string) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		FarmID:    farmID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		Type:      "pest",
		Priority:  1,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}
}

func NewReport(farmID, level string, scanType ScanType) *Report {
	return &Report{
		ID:               uuid.New().String(),
		FarmID:           farmID,
		InfestationLevel: level,
		ScanType:         string(scanType),
		CreatedAt:        time.Now().UTC(),
	}
}

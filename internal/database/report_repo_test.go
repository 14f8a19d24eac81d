package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdimtricp/pestscan/internal/models"
)

func newTestReport(id, level string, createdAt time.Time) *models.Report {
	return &models.Report{
		ID:               id,
		FarmID:           "farm-1",
		InfestationLevel: level,
		ScanType:         string(models.ScanSpotCheck),
		ImageURL:         "http://localhost/uploads/" + id + ".jpg",
		DetectionsCount:  3,
		CreatedAt:        createdAt,
	}
}

func TestReportRepository_GetReport(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReportRepository(db)

	report := newTestReport("report-1", models.LevelHigh, time.Now().UTC())
	if err := repo.Create(ctx, report); err != nil {
		t.Fatalf("Failed to insert report: %v", err)
	}

	retrieved, err := repo.GetReport(ctx, "report-1")
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}

	if retrieved.FarmID != report.FarmID {
		t.Errorf("Expected farm id %s, got %s", report.FarmID, retrieved.FarmID)
	}
	if retrieved.InfestationLevel != models.LevelHigh {
		t.Errorf("Expected level %s, got %s", models.LevelHigh, retrieved.InfestationLevel)
	}
	if retrieved.DetectionsCount != 3 {
		t.Errorf("Expected 3 detections, got %d", retrieved.DetectionsCount)
	}
}

func TestReportRepository_GetReport_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewReportRepository(db).GetReport(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReportRepository_ListRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewReportRepository(db)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "middle", "new"} {
		if err := repo.Create(ctx, newTestReport(id, models.LevelLow, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Failed to insert report %s: %v", id, err)
		}
	}

	reports, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list reports: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}
	if reports[0].ID != "new" || reports[1].ID != "middle" {
		t.Errorf("Expected [new middle], got [%s %s]", reports[0].ID, reports[1].ID)
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kdimtricp/pestscan/internal/models"
)

const reportColumns = `id, farm_id, infestation_level, scan_type, image_url, detections_count, created_at`

type ReportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a report. Reports are normally written by the detection
// function; check-alerts -simulate writes them directly.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	query := r.db.conn.Rebind(`INSERT INTO analysis_reports (` + reportColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.conn.ExecContext(ctx, query,
		report.ID, report.FarmID, report.InfestationLevel, report.ScanType,
		report.ImageURL, report.DetectionsCount, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	query := r.db.conn.Rebind(`SELECT ` + reportColumns + ` FROM analysis_reports WHERE id = ?`)
	if err := r.db.conn.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

func (r *ReportRepository) ListRecent(ctx context.Context, limit int) ([]models.Report, error) {
	reports := []models.Report{}
	query := r.db.conn.Rebind(`SELECT ` + reportColumns + ` FROM analysis_reports ORDER BY created_at DESC LIMIT ?`)
	if err := r.db.conn.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

package database

import (
	"context"
	"fmt"

	"github.com/kdimtricp/pestscan/internal/models"
)

const alertColumns = `id, farm_id, alert_type, severity, message, type, priority, is_read, created_at`

type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := r.db.conn.Rebind(`INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.conn.ExecContext(ctx, query,
		alert.ID, alert.FarmID, alert.AlertType, alert.Severity, alert.Message,
		alert.Type, alert.Priority, alert.IsRead, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListRecent returns the newest alerts first. An empty farmID lists all farms.
func (r *AlertRepository) ListRecent(ctx context.Context, farmID string, limit int) ([]models.Alert, error) {
	alerts := []models.Alert{}

	var query string
	var args []interface{}
	if farmID == "" {
		query = `SELECT ` + alertColumns + ` FROM alerts ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	} else {
		query = `SELECT ` + alertColumns + ` FROM alerts WHERE farm_id = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{farmID, limit}
	}

	if err := r.db.conn.SelectContext(ctx, &alerts, r.db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

package alerts

import (
	"context"
	"fmt"

	"github.com/kdimtricp/pestscan/internal/models"
	"go.uber.org/zap"
)

const AlertType = "Pest Detection Alert"

type ReportReader interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
}

type ReportWriter interface {
	Create(ctx context.Context, report *models.Report) error
}

type AlertWriter interface {
	Create(ctx context.Context, alert *models.Alert) error
}

// Outcome describes what MaybeRaiseAlert did for one report.
type Outcome struct {
	Alert        *models.Alert
	SMSTriggered bool
}

type Service struct {
	reports  ReportReader
	alerts   AlertWriter
	notifier Notifier
	logger   *zap.Logger
}

func NewService(reports ReportReader, alerts AlertWriter, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		reports:  reports,
		alerts:   alerts,
		notifier: notifier,
		logger:   logger,
	}
}

// SeverityFor maps a report's infestation level to an alert severity.
// Levels that do not warrant an alert return false.
func SeverityFor(level string) (string, bool) {
	switch level {
	case models.LevelHigh:
		return "critical", true
	case models.LevelMedium:
		return "high", true
	}
	return "", false
}

func Message(level string, scanType models.ScanType) string {
	return fmt.Sprintf("A %s infestation level was found in your recent %s. Check report for details.", level, scanType.Label())
}

// MaybeRaiseAlert records an alert for HIGH and MEDIUM reports and triggers
// the SMS workflow for HIGH ones. A nil Outcome with a nil error means no
// alert was warranted.
func (s *Service) MaybeRaiseAlert(ctx context.Context, reportID string, scanType models.ScanType) (*Outcome, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch report %s: %w", reportID, err)
	}

	severity, ok := SeverityFor(report.InfestationLevel)
	if !ok {
		s.logger.Debug("No alert needed",
			zap.String("report_id", reportID),
			zap.String("level", report.InfestationLevel))
		return nil, nil
	}

	alert := models.NewAlert(report.FarmID, AlertType, severity, Message(report.InfestationLevel, scanType))
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("report_id", reportID),
		zap.String("severity", severity))

	outcome := &Outcome{Alert: alert}
	if report.InfestationLevel != models.LevelHigh {
		return outcome, nil
	}

	err = s.notifier.Notify(ctx, Notification{
		FarmID:   report.FarmID,
		ReportID: reportID,
		Level:    report.InfestationLevel,
		Message:  alert.Message,
	})
	if err != nil {
		s.logger.Error("Failed to trigger SMS notification", zap.String("report_id", reportID), zap.Error(err))
		return outcome, nil
	}

	outcome.SMSTriggered = true
	s.logger.Info("SMS notification triggered", zap.String("report_id", reportID))
	return outcome, nil
}

// Simulate stores report as if the detection function had written it and
// runs it through MaybeRaiseAlert.
func (s *Service) Simulate(ctx context.Context, w ReportWriter, report *models.Report) (*Outcome, error) {
	scanType, err := models.ParseScanType(report.ScanType)
	if err != nil {
		return nil, err
	}
	if err := w.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	return s.MaybeRaiseAlert(ctx, report.ID, scanType)
}

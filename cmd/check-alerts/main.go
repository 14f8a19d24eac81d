package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/kdimtricp/pestscan/internal/alerts"
	"github.com/kdimtricp/pestscan/internal/config"
	"github.com/kdimtricp/pestscan/internal/database"
	"github.com/kdimtricp/pestscan/internal/models"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		farmID     = flag.String("farm", "", "Only show alerts for this farm")
		limit      = flag.Int("limit", 5, "Number of rows to show")
		simulate   = flag.String("simulate", "", "Store a report with this infestation level (HIGH, MEDIUM, LOW, NONE) for -farm and raise its alert")
		scanType   = flag.String("scan-type", string(models.ScanSpotCheck), "Scan type of the simulated report")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	ctx := context.Background()

	db, err := database.NewDB(ctx, cfg.Database.DB())
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer db.Close()

	fmt.Println("🔍 Checking Pest Reports and Alerts")
	fmt.Println("===================================")

	if cfg.Alerts.SMSWebhookURL == "" {
		fmt.Println("⚠️  SMS workflow not configured (SMS_WEBHOOK_URL); HIGH alerts are stored only")
	} else {
		fmt.Println("✅ SMS workflow configured")
	}
	fmt.Println()

	if *simulate != "" {
		if *farmID == "" {
			log.Fatal("-simulate requires -farm")
		}
		simulateReport(ctx, cfg, db, *farmID, strings.ToUpper(*simulate), *scanType)
		fmt.Println()
	}

	reports, err := database.NewReportRepository(db).ListRecent(ctx, *limit)
	if err != nil {
		log.Fatal("Failed to list reports: ", err)
	}
	fmt.Printf("📋 Recent reports: %d\n", len(reports))
	for _, r := range reports {
		fmt.Printf("  %s  %-7s %-13s detections=%d  %s\n",
			r.CreatedAt.Format("Jan 2 15:04"), r.InfestationLevel, r.ScanType, r.DetectionsCount, r.ID)
	}
	fmt.Println()

	alerts, err := database.NewAlertRepository(db).ListRecent(ctx, *farmID, *limit)
	if err != nil {
		log.Fatal("Failed to list alerts: ", err)
	}
	fmt.Printf("🚨 Recent alerts: %d\n", len(alerts))
	for _, a := range alerts {
		read := "unread"
		if a.IsRead {
			read = "read"
		}
		fmt.Printf("  %s  [%s] %s (%s)\n", a.CreatedAt.Format("Jan 2 15:04"), a.Severity, a.Message, read)
	}
}

func simulateReport(ctx context.Context, cfg *config.Config, db *database.DB, farmID, level, scanType string) {
	switch level {
	case models.LevelHigh, models.LevelMedium, models.LevelLow, models.LevelNone:
	default:
		log.Fatalf("Unknown infestation level %q", level)
	}
	st, err := models.ParseScanType(scanType)
	if err != nil {
		log.Fatal("Invalid scan type: ", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	var notifier alerts.Notifier = alerts.NopNotifier{}
	if cfg.Alerts.SMSWebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(cfg.Alerts.SMSWebhookURL)
	}
	reports := database.NewReportRepository(db)
	service := alerts.NewService(reports, database.NewAlertRepository(db), notifier, logger)

	report := models.NewReport(farmID, level, st)
	outcome, err := service.Simulate(ctx, reports, report)
	if err != nil {
		logger.Fatal("Failed to simulate report", zap.Error(err))
	}

	fmt.Printf("🧪 Simulated %s report %s\n", level, report.ID)
	switch {
	case outcome == nil:
		fmt.Println("  no alert warranted")
	case outcome.SMSTriggered:
		fmt.Printf("  alert %s raised, SMS triggered\n", outcome.Alert.ID)
	default:
		fmt.Printf("  alert %s raised\n", outcome.Alert.ID)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/kdimtricp/pestscan/internal/config"
	"github.com/kdimtricp/pestscan/internal/database"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath     = flag.String("config", "config.yaml", "Path to the YAML config file")
		migrationsPath = flag.String("migrations", "", "Migrations directory (defaults to the embedded set)")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := database.NewDB(ctx, cfg.Database.DB())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var migrations fs.FS
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	} else if migrations, err = database.Migrations(db.Type()); err != nil {
		logger.Fatal("Failed to load embedded migrations", zap.Error(err))
	}

	migrator := database.NewMigrator(db, logger)

	if !*status {
		if err := migrator.Run(ctx, migrations); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	if err := migrator.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize migrator", zap.Error(err))
	}

	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		logger.Fatal("Failed to get applied migrations", zap.Error(err))
	}

	all, err := migrator.LoadMigrations(migrations)
	if err != nil {
		logger.Fatal("Failed to load migrations", zap.Error(err))
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range all {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
}

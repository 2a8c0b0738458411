// Command janitor runs the housekeeping jobs once and exits. It is meant to
// be scheduled from cron; a non-zero exit means at least one job failed.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/codec-agences/admin-backend/internal/config"
	"github.com/codec-agences/admin-backend/internal/logger"
	"github.com/codec-agences/admin-backend/internal/maintenance"
	"github.com/codec-agences/admin-backend/internal/repository"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout for all jobs")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	janitor := maintenance.NewJanitor(repository.NewMaintenanceRepo(db), maintenance.Config{
		StaleSessionAge:  cfg.Maintenance.StaleSessionAge,
		UnblockAfter:     cfg.Maintenance.UnblockAfter,
		ArticleRetention: cfg.Maintenance.ArticleRetention,
		PurgeSessions:    cfg.Maintenance.PurgeSessions,
	}, log)

	results, err := janitor.RunAll(ctx)
	var affected int64
	for _, r := range results {
		affected += r.Affected
	}
	if err != nil {
		log.Error("janitor finished with errors", "jobs", len(results), "affected", affected, "error", err)
		db.Close()
		os.Exit(1)
	}
	log.Info("janitor finished", "jobs", len(results), "affected", affected)
}

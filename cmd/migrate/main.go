// Command migrate applies the schema migrations under migrations/ using
// golang-migrate. Connection settings come from the same environment as the
// server (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE).
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codec-agences/admin-backend/internal/config"
	"github.com/codec-agences/admin-backend/internal/logger"
)

// Version is set at build time
var Version = "dev"

const (
	defaultTimeout        = 5 * time.Minute
	defaultMigrationsPath = "migrations"
	migrationsTable       = "schema_migrations"
)

type options struct {
	path    string
	timeout time.Duration
	dryRun  bool
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

	opts := options{}
	flag.StringVar(&opts.path, "path", envOr("MIGRATIONS_PATH", defaultMigrationsPath), "Path to migrations directory")
	flag.DurationVar(&opts.timeout, "timeout", defaultTimeout, "Connection and lock timeout")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Show what would be done without executing")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("migrate version %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(log, cfg.Database.URL(), opts, args[0], args[1:]); err != nil {
		log.Error("migration command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
	fmt.Fprintf(os.Stderr, "  down N       Roll back N migrations\n")
	fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
	fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
	fmt.Fprintf(os.Stderr, "  version      Print the applied version\n")
	fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func run(log *slog.Logger, dbURL string, opts options, cmd string, args []string) error {
	if cmd == "create" {
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		return create(log, opts, args[0])
	}

	n, err := intArg(cmd, args)
	if err != nil {
		return err
	}
	if opts.dryRun {
		log.Info("dry run", "command", cmd, "arg", n)
		return nil
	}

	m, err := open(dbURL, opts)
	if err != nil {
		return err
	}
	defer m.Close()

	from, dirty, verr := m.Version()
	if dirty && cmd != "force" && cmd != "version" {
		return fmt.Errorf("database is dirty at version %d, run force first", from)
	}

	switch cmd {
	case "version":
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info("no migrations applied")
			return nil
		}
		log.Info("current version", "version", from, "dirty", dirty)
		return nil
	case "up":
		if n > 0 {
			err = m.Steps(n)
		} else {
			err = m.Up()
		}
	case "down":
		if n <= 0 {
			return errors.New("down requires a positive step count")
		}
		err = m.Steps(-n)
	case "goto":
		err = m.Migrate(uint(n))
	case "force":
		err = m.Force(n)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no change", "version", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd, err)
	}

	to, _, _ := m.Version()
	log.Info("migration completed", "command", cmd, "from", from, "to", to)
	return nil
}

// intArg parses the optional numeric argument of up, down, goto and force
func intArg(cmd string, args []string) (int, error) {
	switch cmd {
	case "goto", "force":
		if len(args) < 1 {
			return 0, fmt.Errorf("%s requires a version number", cmd)
		}
	case "up", "down":
		if len(args) < 1 {
			return 0, nil
		}
	default:
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid argument for %s: %q", cmd, args[0])
	}
	return n, nil
}

func open(dbURL string, opts options) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	path, err := filepath.Abs(opts.path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = opts.timeout
	return m, nil
}

// create writes NNN_name.up.sql and NNN_name.down.sql with the next number
func create(log *slog.Logger, opts options, name string) error {
	next, err := nextNumber(opts.path)
	if err != nil {
		return fmt.Errorf("failed to determine next migration number: %w", err)
	}

	files := map[string]string{
		filepath.Join(opts.path, fmt.Sprintf("%03d_%s.up.sql", next, name)):   fmt.Sprintf("-- Migration: %s\n\n", name),
		filepath.Join(opts.path, fmt.Sprintf("%03d_%s.down.sql", next, name)): fmt.Sprintf("-- Migration: %s (rollback)\n\n", name),
	}
	if opts.dryRun {
		for f := range files {
			log.Info("dry run: would create", "file", f)
		}
		return nil
	}

	if err := os.MkdirAll(opts.path, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}
	for f, body := range files {
		if err := os.WriteFile(f, []byte(body), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f, err)
		}
		log.Info("created migration file", "file", f)
	}
	return nil
}

func nextNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

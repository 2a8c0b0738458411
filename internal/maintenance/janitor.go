// Package maintenance runs the periodic housekeeping jobs: closing stale
// sessions, lifting automatic blocks and purging old articles.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codec-agences/admin-backend/internal/repository"
)

// Config holds the janitor thresholds
type Config struct {
	StaleSessionAge  time.Duration // Default: 2 hours
	UnblockAfter     time.Duration // Default: 20 minutes
	ArticleRetention time.Duration // Default: 30 days
	PurgeSessions    bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		StaleSessionAge:  2 * time.Hour,
		UnblockAfter:     20 * time.Minute,
		ArticleRetention: 30 * 24 * time.Hour,
	}
}

// Result holds the outcome of one job
type Result struct {
	Job      string
	Affected int64
	Duration time.Duration
	Err      error
}

// Janitor runs the housekeeping statements
type Janitor struct {
	repo   repository.MaintenanceRepository
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewJanitor creates a janitor. Zero thresholds fall back to DefaultConfig.
func NewJanitor(repo repository.MaintenanceRepository, config Config, logger *slog.Logger) *Janitor {
	def := DefaultConfig()
	if config.StaleSessionAge <= 0 {
		config.StaleSessionAge = def.StaleSessionAge
	}
	if config.UnblockAfter <= 0 {
		config.UnblockAfter = def.UnblockAfter
	}
	if config.ArticleRetention <= 0 {
		config.ArticleRetention = def.ArticleRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{repo: repo, config: config, logger: logger, now: time.Now}
}

// WithClock replaces the time source, for tests
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// CloseStaleSessions closes sessions still open StaleSessionAge after login
func (j *Janitor) CloseStaleSessions(ctx context.Context) (int64, error) {
	now := j.now()
	return j.repo.CloseSessionsOlderThan(ctx, now.Add(-j.config.StaleSessionAge), now)
}

// UnblockExpired reactivates accounts blocked for failed attempts once
// UnblockAfter has passed. Administrative blocks are left alone.
func (j *Janitor) UnblockExpired(ctx context.Context) (int64, error) {
	return j.repo.UnblockUsers(ctx, repository.BlockCodeAttemptsExceeded, j.now().Add(-j.config.UnblockAfter))
}

// PurgeOldArticles deletes articles and processed-file records older than
// ArticleRetention
func (j *Janitor) PurgeOldArticles(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.config.ArticleRetention)
	articles, err := j.repo.DeleteArticlesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	files, err := j.repo.DeleteProcessedFilesBefore(ctx, cutoff)
	if err != nil {
		return articles, err
	}
	return articles + files, nil
}

// PurgeSessions deletes closed sessions older than ArticleRetention
func (j *Janitor) PurgeSessions(ctx context.Context) (int64, error) {
	return j.repo.DeleteClosedSessionsBefore(ctx, j.now().Add(-j.config.ArticleRetention))
}

type job struct {
	name string
	run  func(context.Context) (int64, error)
}

func (j *Janitor) jobs() []job {
	jobs := []job{
		{"close_stale_sessions", j.CloseStaleSessions},
		{"unblock_expired", j.UnblockExpired},
		{"purge_old_articles", j.PurgeOldArticles},
	}
	if j.config.PurgeSessions {
		jobs = append(jobs, job{"purge_sessions", j.PurgeSessions})
	}
	return jobs
}

// RunAll runs every enabled job concurrently. One failing job does not stop
// the others; the first failure is returned after all have finished.
func (j *Janitor) RunAll(ctx context.Context) ([]Result, error) {
	jobs := j.jobs()
	results := make([]Result, len(jobs))

	var g errgroup.Group
	for i, jb := range jobs {
		g.Go(func() error {
			start := time.Now()
			n, err := jb.run(ctx)
			results[i] = Result{Job: jb.name, Affected: n, Duration: time.Since(start), Err: err}
			if err != nil {
				j.logger.Error("maintenance job failed", "job", jb.name, "error", err)
				return fmt.Errorf("%s: %w", jb.name, err)
			}
			j.logger.Info("maintenance job finished", "job", jb.name, "affected", n, "duration", results[i].Duration)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

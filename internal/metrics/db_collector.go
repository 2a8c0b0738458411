package metrics

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBConnections tracks pool connections by pool and state
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections",
			Help:      "Database connections by pool (pgx, sqlx) and state (open, in_use, idle, max)",
		},
		[]string{"pool", "state"},
	)
)

// DBStatsCollector samples both database pools on an interval
type DBStatsCollector struct {
	pgxPool *pgxpool.Pool
	sqlDB   *sql.DB
	stopCh  chan struct{}
	logger  *slog.Logger
}

// NewDBStatsCollector creates a new database stats collector. Either pool may be nil.
func NewDBStatsCollector(pgxPool *pgxpool.Pool, sqlDB *sql.DB, logger *slog.Logger) *DBStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBStatsCollector{
		pgxPool: pgxPool,
		sqlDB:   sqlDB,
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// Start begins collecting database statistics at regular intervals
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Info("database stats collector started", "interval", interval)
}

// Stop stops the database stats collector
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
}

func (c *DBStatsCollector) collect() {
	if c.pgxPool != nil {
		stat := c.pgxPool.Stat()
		DBConnections.WithLabelValues("pgx", "open").Set(float64(stat.TotalConns()))
		DBConnections.WithLabelValues("pgx", "in_use").Set(float64(stat.AcquiredConns()))
		DBConnections.WithLabelValues("pgx", "idle").Set(float64(stat.IdleConns()))
		DBConnections.WithLabelValues("pgx", "max").Set(float64(stat.MaxConns()))
	}
	if c.sqlDB != nil {
		stats := c.sqlDB.Stats()
		DBConnections.WithLabelValues("sqlx", "open").Set(float64(stats.OpenConnections))
		DBConnections.WithLabelValues("sqlx", "in_use").Set(float64(stats.InUse))
		DBConnections.WithLabelValues("sqlx", "idle").Set(float64(stats.Idle))
		DBConnections.WithLabelValues("sqlx", "max").Set(float64(stats.MaxOpenConnections))
	}
}

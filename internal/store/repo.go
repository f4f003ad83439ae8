package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/weather-etl/internal/common"
	"github.com/i474232898/weather-etl/internal/weather"
)

// DefaultTable is the metrics table name used when none is configured.
const DefaultTable = "weather_metrics"

const sqlitePrefix = "sqlite://"

var (
	// ErrNotFound is returned when the metrics table holds no rows.
	ErrNotFound = errors.New("no weather metrics stored")
	// ErrInvalidTable is returned for table names that are not plain identifiers.
	ErrInvalidTable = errors.New("invalid table name")
)

const metricColumns = "date, temp_max, temp_min, precipitation, latitude, longitude, processed_at"

// Options tune the merge behaviour.
type Options struct {
	// Monotonic refuses to overwrite a row whose processed_at is newer than
	// the incoming one. The default is last-writer-wins.
	Monotonic bool
}

// Repo reads and merges rows of one metrics table.
type Repo struct {
	db     *gorm.DB
	table  string
	opts   Options
	logger *logrus.Entry
}

// Open connects to the database named by dsn. "sqlite://<path>" selects
// SQLite; anything else is handed to the Postgres driver.
func Open(dsn string, logger *logrus.Entry) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return gorm.Open(sqlite.Open(path), cfg)
	}
	return gorm.Open(postgres.Open(dsn), cfg)
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// New wraps db for table. The table itself is created lazily by EnsureSchema
// or the first Upsert.
func New(db *gorm.DB, table string, opts Options, logger *logrus.Entry) (*Repo, error) {
	if table == "" {
		table = DefaultTable
	}
	if !common.IsIdentifier(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Repo{db: db, table: table, opts: opts, logger: logger}, nil
}

// Table returns the target table name.
func (r *Repo) Table() string {
	return r.table
}

// EnsureSchema creates the metrics table if it does not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	return ensureSchema(r.db.WithContext(ctx), r.table)
}

func ensureSchema(db *gorm.DB, table string) error {
	return db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  date TIMESTAMP NOT NULL,
  temp_max DOUBLE PRECISION NOT NULL,
  temp_min DOUBLE PRECISION NOT NULL,
  precipitation DOUBLE PRECISION NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  processed_at TIMESTAMP NOT NULL,
  PRIMARY KEY (date, latitude, longitude)
);`, table)).Error
}

// Upsert merges records into the table inside one transaction and returns
// the number of records presented. An empty set returns 0 without touching
// the database. Failures wrap weather.ErrLoad and leave the table unchanged.
func (r *Repo) Upsert(ctx context.Context, records weather.RecordSet) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := toRows(records)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSchema(tx, r.table); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		stage, err := createStaging(tx, r.table)
		if err != nil {
			return err
		}
		defer stage.release()

		if err := stage.load(rows); err != nil {
			return err
		}
		if err := tx.Exec(r.mergeSQL(stage.name)).Error; err != nil {
			return fmt.Errorf("merge into %s: %w", r.table, err)
		}
		return stage.release()
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", weather.ErrLoad, r.table, err)
	}

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"table": r.table,
			"rows":  len(records),
		}).Info("upsert committed")
	}
	return len(records), nil
}

// mergeSQL builds the INSERT ... SELECT ... ON CONFLICT statement. The
// WHERE true keeps SQLite from reading ON CONFLICT as a join constraint.
func (r *Repo) mergeSQL(staging string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\nSELECT %s FROM %s WHERE true\n", r.table, metricColumns, metricColumns, staging)
	b.WriteString("ON CONFLICT (date, latitude, longitude) DO UPDATE SET\n")
	b.WriteString("  temp_max = excluded.temp_max,\n")
	b.WriteString("  temp_min = excluded.temp_min,\n")
	b.WriteString("  precipitation = excluded.precipitation,\n")
	b.WriteString("  processed_at = excluded.processed_at")
	if r.opts.Monotonic {
		fmt.Fprintf(&b, "\nWHERE %s.processed_at <= excluded.processed_at", r.table)
	}
	return b.String()
}

// List returns rows ordered by date descending. limit <= 0 returns all rows.
// An empty table yields an empty slice, not an error.
func (r *Repo) List(ctx context.Context, limit int) ([]MetricRow, error) {
	rows := []MetricRow{}
	q := r.db.WithContext(ctx).Table(r.table).Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Latest returns the row with the most recent date.
func (r *Repo) Latest(ctx context.Context) (MetricRow, error) {
	rows, err := r.List(ctx, 1)
	if err != nil {
		return MetricRow{}, err
	}
	if len(rows) == 0 {
		return MetricRow{}, ErrNotFound
	}
	return rows[0], nil
}

// Ping checks that the database is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

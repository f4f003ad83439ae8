package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/i474232898/weather-etl/internal/common"
	"github.com/i474232898/weather-etl/internal/weather"
)

// Loader is the pipeline's Merger. It opens a connection pool for each
// Upsert and closes it before returning, so no pool outlives a run.
type Loader struct {
	dsn    string
	table  string
	opts   Options
	open   func(dsn string, logger *logrus.Entry) (*gorm.DB, error)
	logger *logrus.Entry
}

// NewLoader validates table and returns a Loader for dsn.
func NewLoader(dsn, table string, opts Options, logger *logrus.Entry) (*Loader, error) {
	if table == "" {
		table = DefaultTable
	}
	if !common.IsIdentifier(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Loader{
		dsn:    dsn,
		table:  table,
		opts:   opts,
		open:   Open,
		logger: logger,
	}, nil
}

// Upsert implements weather.Merger.
func (l *Loader) Upsert(ctx context.Context, records weather.RecordSet) (int, error) {
	if len(records) == 0 {
		l.logger.Warn("no records to load")
		return 0, nil
	}

	db, err := l.open(l.dsn, l.logger)
	if err != nil {
		return 0, fmt.Errorf("%w: connect: %w", weather.ErrLoad, err)
	}
	defer func() {
		if err := Close(db); err != nil {
			l.logger.WithError(err).Warn("closing database pool")
		}
	}()

	repo, err := New(db, l.table, l.opts, l.logger)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", weather.ErrLoad, err)
	}
	l.logger.WithFields(logrus.Fields{
		"table": repo.Table(),
		"rows":  len(records),
	}).Debug("loading records")
	return repo.Upsert(ctx, records)
}

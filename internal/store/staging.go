package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const stagingBatchSize = 500

// stagingTable is a temporary table owned by a single merge transaction.
// release is safe to call more than once; if the transaction rolls back the
// CREATE is undone with it.
type stagingTable struct {
	tx       *gorm.DB
	name     string
	released bool
}

func stagingName(table string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := "stg_" + table
	if limit := 63 - len(suffix) - 1; len(name) > limit {
		name = name[:limit]
	}
	return name + "_" + suffix
}

func createStaging(tx *gorm.DB, table string) (*stagingTable, error) {
	name := stagingName(table)
	err := tx.Exec(fmt.Sprintf(`
CREATE TEMPORARY TABLE %s (
  date TIMESTAMP NOT NULL,
  temp_max DOUBLE PRECISION NOT NULL,
  temp_min DOUBLE PRECISION NOT NULL,
  precipitation DOUBLE PRECISION NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  processed_at TIMESTAMP NOT NULL
);`, name)).Error
	if err != nil {
		return nil, fmt.Errorf("create staging table: %w", err)
	}
	return &stagingTable{tx: tx, name: name}, nil
}

func (s *stagingTable) load(rows []MetricRow) error {
	if err := s.tx.Table(s.name).CreateInBatches(rows, stagingBatchSize).Error; err != nil {
		return fmt.Errorf("stage rows: %w", err)
	}
	return nil
}

func (s *stagingTable) release() error {
	if s.released {
		return nil
	}
	s.released = true
	if err := s.tx.Exec("DROP TABLE " + s.name).Error; err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	return nil
}

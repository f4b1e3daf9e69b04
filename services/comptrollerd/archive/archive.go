// Package archive persists the committed event feed in a SQL database so it
// outlives the in-memory ring.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendcore/services/comptrollerd/feed"
)

var ErrDSNRequired = errors.New("archive: dsn must be configured")

// EventRow is the stored form of one feed record.
type EventRow struct {
	Sequence   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Type       string `gorm:"index;not null"`
	Attributes string `gorm:"type:text;not null"`
	RecordedAt time.Time
}

func (EventRow) TableName() string { return "comptroller_events" }

// Archive stores feed records through gorm.
type Archive struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to driver ("sqlite" or "postgres") at dsn and migrates the
// schema.
func Open(driver, dsn string) (*Archive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.AutoMigrate(&EventRow{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores r. Re-recording a sequence is a no-op.
func (a *Archive) Record(ctx context.Context, r feed.Record) error {
	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("archive: encode attributes: %w", err)
	}
	row := EventRow{Sequence: r.Sequence, Type: r.Type, Attributes: string(attrs), RecordedAt: a.now().UTC()}
	if err := a.db.WithContext(ctx).Where("sequence = ?", r.Sequence).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("archive: insert %d: %w", r.Sequence, err)
	}
	return nil
}

// List returns up to limit records after the given sequence in order. A
// limit of zero returns them all.
func (a *Archive) List(ctx context.Context, after uint64, limit int) ([]feed.Record, error) {
	query := a.db.WithContext(ctx).Where("sequence > ?", after).Order("sequence asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []EventRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	out := make([]feed.Record, 0, len(rows))
	for _, row := range rows {
		record, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// LastSequence returns the newest stored sequence, or zero when empty.
func (a *Archive) LastSequence(ctx context.Context) (uint64, error) {
	var last uint64
	err := a.db.WithContext(ctx).Model(&EventRow{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("archive: last sequence: %w", err)
	}
	return last, nil
}

func (row EventRow) record() (feed.Record, error) {
	attrs := map[string]string{}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
			return feed.Record{}, fmt.Errorf("archive: decode %d: %w", row.Sequence, err)
		}
	}
	return feed.Record{Sequence: row.Sequence, Type: row.Type, Attributes: attrs}, nil
}

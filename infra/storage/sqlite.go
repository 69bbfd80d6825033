package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"scalex/infra/outbox"
)

// SQLite is an archive sink on a pure-Go sqlite file.
type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&EventRow{}, &TradeRow{}, &OrderRow{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

// Deliver archives one entry. Redelivered entries are ignored, and an
// order row only moves forward in log order.
func (s *SQLite) Deliver(ctx context.Context, e outbox.Entry) error {
	rows, err := Decode(e)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows.Event)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if rows.Trade != nil {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rows.Trade).Error; err != nil {
				return err
			}
		}
		if rows.Order != nil {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "pool"}, {Name: "order_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"filled", "status", "updated_seq"}),
				Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "orders.updated_seq <= excluded.updated_seq"}}},
			}).Create(rows.Order).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Trades returns the latest trades of a pool, newest first.
func (s *SQLite) Trades(ctx context.Context, pool string, limit int) ([]TradeRow, error) {
	var out []TradeRow
	err := s.db.WithContext(ctx).
		Where("pool = ?", pool).
		Order("seq DESC, idx DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Order returns the archived state of an order, or nil when unknown.
func (s *SQLite) Order(ctx context.Context, pool string, id uint64) (*OrderRow, error) {
	var o OrderRow
	err := s.db.WithContext(ctx).First(&o, "pool = ? AND order_id = ?", pool, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLite) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EventRow{}).Count(&n).Error
	return n, err
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "pairlab/internal/store/model"
	"pairlab/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type (
	PositionModel = storemodel.PositionModel
	AlertModel    = storemodel.AlertModel
)

// GormStore 保存头寸与告警，和结果库分开一个文件。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&PositionModel{}, &AlertModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

func wrapNotFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, types.ErrNotFound)
	}
	return err
}

// --------------------- Positions -------------------------

func (s *GormStore) CreatePosition(ctx context.Context, pos *PositionModel) error {
	now := time.Now().UTC()
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = now
	}
	pos.UpdatedAt = now
	if pos.Status == "" {
		pos.Status = storemodel.PositionOpen
	}
	return s.db.WithContext(ctx).Create(pos).Error
}

func (s *GormStore) GetPosition(ctx context.Context, id int64) (PositionModel, error) {
	var pos PositionModel
	if err := s.db.WithContext(ctx).First(&pos, id).Error; err != nil {
		return PositionModel{}, wrapNotFound(err, "position", id)
	}
	return pos, nil
}

// ListPositions 按状态过滤，status 为空时返回全部。
func (s *GormStore) ListPositions(ctx context.Context, status storemodel.PositionStatus) ([]PositionModel, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []PositionModel
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UpdatePosition 只更新给定列；updates 的 key 为列名。
func (s *GormStore) UpdatePosition(ctx context.Context, id int64, updates map[string]interface{}) (PositionModel, error) {
	return updateRow[PositionModel](ctx, s.db, id, "position", updates)
}

func (s *GormStore) DeletePosition(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&PositionModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("position %d: %w", id, types.ErrNotFound)
	}
	return nil
}

// --------------------- Alerts -------------------------

func (s *GormStore) CreateAlert(ctx context.Context, alert *AlertModel) error {
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	return s.db.WithContext(ctx).Create(alert).Error
}

func (s *GormStore) GetAlert(ctx context.Context, id int64) (AlertModel, error) {
	var alert AlertModel
	if err := s.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return AlertModel{}, wrapNotFound(err, "alert", id)
	}
	return alert, nil
}

// ListAlerts pairID 为空返回全部；enabledOnly 只取启用的告警。
func (s *GormStore) ListAlerts(ctx context.Context, pairID string, enabledOnly bool) ([]AlertModel, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if pairID != "" {
		q = q.Where("pair_id = ?", pairID)
	}
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var list []AlertModel
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *GormStore) UpdateAlert(ctx context.Context, id int64, updates map[string]interface{}) (AlertModel, error) {
	return updateRow[AlertModel](ctx, s.db, id, "alert", updates)
}

// RecordTrigger 原子地累加触发次数。
func (s *GormStore) RecordTrigger(ctx context.Context, id int64, zscore float64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&AlertModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"trigger_count":  gorm.Expr("trigger_count + 1"),
		"last_triggered": at.UTC(),
		"last_zscore":    zscore,
		"updated_at":     time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *GormStore) DeleteAlert(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&AlertModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func updateRow[T any](ctx context.Context, db *gorm.DB, id int64, what string, updates map[string]interface{}) (T, error) {
	var row T
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now().UTC()
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&row, id).Error
	})
	if err != nil {
		var zero T
		return zero, wrapNotFound(err, what, id)
	}
	return row, nil
}

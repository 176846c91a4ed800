package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"demixer/core/session"
)

// KVRecord is the durable per-identity session row: one JSON blob per key.
type KVRecord struct {
	Key       string    `gorm:"primaryKey;size:191;column:record_key"`
	Value     string    `gorm:"type:longtext"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name explicit.
func (KVRecord) TableName() string {
	return "kv_records"
}

// GormKVStore implements session.KeyValuePersistence on a GORM connection.
type GormKVStore struct {
	db *gorm.DB
}

// NewGormKVStore creates the store. Callers migrate KVRecord at boot via
// db.AutoMigrateModels.
func NewGormKVStore(db *gorm.DB) *GormKVStore {
	return &GormKVStore{db: db}
}

// Load reads one record, mapping a missing row to session.ErrNotFound.
func (s *GormKVStore) Load(ctx context.Context, key string) ([]byte, error) {
	var record KVRecord
	err := s.db.WithContext(ctx).First(&record, "record_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load record %s: %w", key, err)
	}
	return []byte(record.Value), nil
}

// Save upserts the record.
func (s *GormKVStore) Save(ctx context.Context, key string, value []byte) error {
	record := KVRecord{Key: key, Value: string(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceStore is a key/value view over preference_record. It satisfies
// kv.Store so it can replace the local badger store.
type PreferenceStore struct {
	client  *PostgresClient
	timeout time.Duration
}

func (p *PostgresClient) Preferences(timeout time.Duration) *PreferenceStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PreferenceStore{client: p, timeout: timeout}
}

func (s *PreferenceStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var rec PreferenceRecord
	err := s.client.DB.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *PreferenceStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.client.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&PreferenceRecord{Key: key, Value: value}).Error
}

func (s *PreferenceStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.client.DB.WithContext(ctx).Where("key = ?", key).Delete(&PreferenceRecord{}).Error
}

// Package boltdb реализует хранилище состояния клиента поверх BoltDB.
package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketSyncState = []byte("sync_state")

// Ключи внутри bucket sync_state.
const (
	keyLastPushedVersion = "last_pushed_version"
	keyLastPulledVersion = "last_pulled_version"
	keyDeviceID          = "device_id"
)

// Storage представляет BoltDB хранилище состояния синхронизации.
type Storage struct {
	db *bbolt.DB
}

// New создает BoltDB хранилище по пути dbPath.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close закрывает соединение с базой данных.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют.
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSyncState); err != nil {
			return fmt.Errorf("failed to create sync_state bucket: %w", err)
		}
		return nil
	})
}

// saveVersion сохраняет uint64 значение по ключу.
func (s *Storage) saveVersion(key string, version uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("sync_state bucket not found")
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)

		if err := bucket.Put([]byte(key), buf); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}

		return nil
	})
}

// loadVersion читает uint64 значение по ключу (0, если ключа нет).
func (s *Storage) loadVersion(key string) (uint64, error) {
	var version uint64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("sync_state bucket not found")
		}

		raw := bucket.Get([]byte(key))
		if raw == nil {
			version = 0
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupted value for %s", key)
		}

		version = binary.BigEndian.Uint64(raw)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", key, err)
	}

	return version, nil
}

// LastPushedVersion реализует state.Storage.
func (s *Storage) LastPushedVersion(ctx context.Context) (uint64, error) {
	return s.loadVersion(keyLastPushedVersion)
}

// SaveLastPushedVersion реализует state.Storage.
func (s *Storage) SaveLastPushedVersion(ctx context.Context, version uint64) error {
	return s.saveVersion(keyLastPushedVersion, version)
}

// LastPulledVersion реализует state.Storage.
func (s *Storage) LastPulledVersion(ctx context.Context) (uint64, error) {
	return s.loadVersion(keyLastPulledVersion)
}

// SaveLastPulledVersion реализует state.Storage.
func (s *Storage) SaveLastPulledVersion(ctx context.Context, version uint64) error {
	return s.saveVersion(keyLastPulledVersion, version)
}

// DeviceID реализует state.Storage. Возвращает "" если идентификатор
// устройства еще не сохранялся.
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	var deviceID string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("sync_state bucket not found")
		}

		deviceID = string(bucket.Get([]byte(keyDeviceID)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to load device id: %w", err)
	}

	return deviceID, nil
}

// SaveDeviceID реализует state.Storage.
func (s *Storage) SaveDeviceID(ctx context.Context, deviceID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSyncState)
		if bucket == nil {
			return fmt.Errorf("sync_state bucket not found")
		}

		if err := bucket.Put([]byte(keyDeviceID), []byte(deviceID)); err != nil {
			return fmt.Errorf("failed to save device id: %w", err)
		}

		return nil
	})
}

package store

import (
	"context"
	"sync"

	"github.com/cobrain-app/cobrain-sync/internal/models"
)

// MemoryStore хранит журнал изменений в памяти.
// Предназначен для разработки и тестов: после перезапуска процесса
// история теряется.
type MemoryStore struct {
	changes map[string][]*StoredChange // userID → лог по возрастанию версии
	mu      sync.RWMutex
}

// NewMemoryStore создает пустой in-memory журнал.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		changes: make(map[string][]*StoredChange),
	}
}

// Append реализует ChangeStore.Append.
func (s *MemoryStore) Append(
	ctx context.Context,
	userID, deviceID string,
	changes []*models.Change,
) ([]*StoredChange, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.changes[userID]
	version := uint64(0)
	if len(log) > 0 {
		version = log[len(log)-1].ServerVersion
	}

	stored := make([]*StoredChange, 0, len(changes))
	for _, c := range changes {
		version++
		sc := &StoredChange{
			Change:        c.Clone(),
			UserID:        userID,
			DeviceID:      deviceID,
			ServerVersion: version,
		}
		log = append(log, sc)
		stored = append(stored, sc)
	}

	s.changes[userID] = log
	return stored, nil
}

// GetSince реализует ChangeStore.GetSince.
func (s *MemoryStore) GetSince(ctx context.Context, userID string, since uint64) ([]*StoredChange, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.changes[userID]
	result := make([]*StoredChange, 0)
	for _, sc := range log {
		if sc.ServerVersion > since {
			result = append(result, sc)
		}
	}

	return result, nil
}

// LatestVersion реализует ChangeStore.LatestVersion.
func (s *MemoryStore) LatestVersion(ctx context.Context, userID string) (uint64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.changes[userID]
	if len(log) == 0 {
		return 0, nil
	}

	return log[len(log)-1].ServerVersion, nil
}

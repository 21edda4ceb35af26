package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/smartpigdefi/smartpig/model"
)

var (
	ErrSessionNotFound = errors.New("no stored session")
	ErrSessionCorrupt  = errors.New("stored session is corrupt")
)

// ISessionStore persists the single session snapshot. The record is not
// versioned.
type ISessionStore interface {
	Save(ctx context.Context, snap *model.SessionSnapshot) error
	Load(ctx context.Context) (*model.SessionSnapshot, error)
	Clear(ctx context.Context) error
}

func encodeSnapshot(snap *model.SessionSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*model.SessionSnapshot, error) {
	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return &snap, nil
}

// MemorySessionStore keeps the encoded snapshot in memory.
type MemorySessionStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Save(_ context.Context, snap *model.SessionSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Load(_ context.Context) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()

	if data == nil {
		return nil, ErrSessionNotFound
	}
	return decodeSnapshot(data)
}

func (s *MemorySessionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

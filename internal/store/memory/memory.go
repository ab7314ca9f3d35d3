// Package memory is an in-process ContentStore.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/store"
)

// Store keeps records as encoded JSON so callers never share memory with it.
type Store struct {
	mu          sync.RWMutex
	definitions map[string][]byte
	aliases     map[string]string
	instances   map[string][]byte
	notifier    store.Notifier
}

func New() *Store {
	return &Store{
		definitions: make(map[string][]byte),
		aliases:     make(map[string]string),
		instances:   make(map[string][]byte),
	}
}

// SetNotifier registers a callback for successful writes.
func (s *Store) SetNotifier(n store.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Store) PutDefinitions(ctx context.Context, defs *models.DefinitionSet) (bool, error) {
	if defs.Hash == "" {
		return false, fmt.Errorf("definitions: missing content hash")
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return false, fmt.Errorf("encode definitions: %w", err)
	}
	return s.put(s.definitions, defs.Hash, data), nil
}

func (s *Store) GetDefinitions(ctx context.Context, hash string) (*models.DefinitionSet, error) {
	var defs models.DefinitionSet
	if err := s.get(s.definitions, hash, &defs); err != nil {
		return nil, err
	}
	return &defs, nil
}

func (s *Store) PutAlias(ctx context.Context, aliasKey, hash string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.aliases[aliasKey]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.aliases[aliasKey] = hash
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n.Notify()
	}
	return true, nil
}

func (s *Store) GetAlias(ctx context.Context, aliasKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.aliases[aliasKey]
	if !ok {
		return "", store.ErrNotFound
	}
	return hash, nil
}

func (s *Store) PutInstance(ctx context.Context, inst *models.Instance) (bool, error) {
	if inst.Hash == "" {
		return false, fmt.Errorf("instance: missing content hash")
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return false, fmt.Errorf("encode instance: %w", err)
	}
	return s.put(s.instances, inst.Hash, data), nil
}

func (s *Store) GetInstance(ctx context.Context, hash string) (*models.Instance, error) {
	var inst models.Instance
	if err := s.get(s.instances, hash, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) put(table map[string][]byte, key string, data []byte) bool {
	s.mu.Lock()
	if _, ok := table[key]; ok {
		s.mu.Unlock()
		return false
	}
	table[key] = data
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n.Notify()
	}
	return true
}

func (s *Store) get(table map[string][]byte, key string, dst any) error {
	s.mu.RLock()
	data, ok := table[key]
	s.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(data, dst)
}

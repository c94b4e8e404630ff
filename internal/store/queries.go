package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/plotly/falcon/internal/domain"
)

// QueryStore persists query definitions as a single JSON collection keyed by
// fid. Optional fields with zero values are dropped at serialization time,
// so the stored records never carry null-placeholder keys.
type QueryStore struct {
	path string
	mu   sync.Mutex
}

// NewQueryStore creates a store backed by the given file path.
func NewQueryStore(path string) *QueryStore {
	return &QueryStore{path: path}
}

// Get returns the definition for fid, or (nil, nil) when absent.
func (s *QueryStore) Get(fid string) (*domain.QueryDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range queries {
		if queries[i].Fid == fid {
			return &queries[i], nil
		}
	}
	return nil, nil
}

// GetAll returns every persisted definition; an empty slice when no storage
// file exists yet.
func (s *QueryStore) GetAll() ([]domain.QueryDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save appends the definition or replaces the existing record with the same
// fid, then writes the whole collection atomically.
func (s *QueryStore) Save(def *domain.QueryDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range queries {
		if queries[i].Fid == def.Fid {
			queries[i] = *def
			replaced = true
			break
		}
	}
	if !replaced {
		queries = append(queries, *def)
	}
	return s.write(queries)
}

// Delete removes the record with the given fid. Deleting an unknown fid is a
// no-op, not an error.
func (s *QueryStore) Delete(fid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries, err := s.load()
	if err != nil {
		return err
	}
	for i := range queries {
		if queries[i].Fid == fid {
			queries = append(queries[:i], queries[i+1:]...)
			return s.write(queries)
		}
	}
	return nil
}

func (s *QueryStore) load() ([]domain.QueryDefinition, error) {
	data, err := readFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []domain.QueryDefinition{}, nil
	}
	var queries []domain.QueryDefinition
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return queries, nil
}

func (s *QueryStore) write(queries []domain.QueryDefinition) error {
	data, err := json.Marshal(queries)
	if err != nil {
		return fmt.Errorf("serialize queries: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

var _ domain.QueryRepository = (*QueryStore)(nil)

package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/plotly/falcon/internal/domain"
)

// TagStore persists tags as a single JSON collection.
type TagStore struct {
	path string
	mu   sync.Mutex
}

// NewTagStore creates a store backed by the given file path.
func NewTagStore(path string) *TagStore {
	return &TagStore{path: path}
}

// Get returns the tag with the given id, or (nil, nil) when absent.
func (s *TagStore) Get(id string) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if tags[i].ID == id {
			return &tags[i], nil
		}
	}
	return nil, nil
}

// GetAll returns every stored tag.
func (s *TagStore) GetAll() ([]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save assigns an id and appends the tag, returning the stored record.
func (s *TagStore) Save(tag *domain.Tag) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.load()
	if err != nil {
		return nil, err
	}
	tag.ID = uuid.NewString()
	tags = append(tags, *tag)
	if err := s.write(tags); err != nil {
		return nil, err
	}
	return tag, nil
}

// Delete removes the tag with the given id; no-op when absent.
func (s *TagStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.load()
	if err != nil {
		return err
	}
	for i := range tags {
		if tags[i].ID == id {
			tags = append(tags[:i], tags[i+1:]...)
			return s.write(tags)
		}
	}
	return nil
}

func (s *TagStore) load() ([]domain.Tag, error) {
	data, err := readFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []domain.Tag{}, nil
	}
	var tags []domain.Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return tags, nil
}

func (s *TagStore) write(tags []domain.Tag) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("serialize tags: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

var _ domain.TagRepository = (*TagStore)(nil)

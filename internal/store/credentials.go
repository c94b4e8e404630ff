package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/plotly/falcon/internal/domain"
)

// CredentialStore persists grid-store credentials keyed by username.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewCredentialStore creates a store backed by the given file path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Resolve returns the credentials for username, or (nil, nil) when no record
// exists.
func (s *CredentialStore) Resolve(username string) (*domain.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range creds {
		if creds[i].Username == username {
			return &creds[i], nil
		}
	}
	return nil, nil
}

// Save appends or replaces the record for the given username.
func (s *CredentialStore) Save(cred *domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range creds {
		if creds[i].Username == cred.Username {
			creds[i] = *cred
			replaced = true
			break
		}
	}
	if !replaced {
		creds = append(creds, *cred)
	}
	return s.write(creds)
}

// Delete removes the record for username; no-op when absent.
func (s *CredentialStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	for i := range creds {
		if creds[i].Username == username {
			creds = append(creds[:i], creds[i+1:]...)
			return s.write(creds)
		}
	}
	return nil
}

func (s *CredentialStore) load() ([]domain.Credentials, error) {
	data, err := readFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []domain.Credentials{}, nil
	}
	var creds []domain.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return creds, nil
}

func (s *CredentialStore) write(creds []domain.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("serialize credentials: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

var _ domain.CredentialResolver = (*CredentialStore)(nil)

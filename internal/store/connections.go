package store

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/plotly/falcon/internal/domain"
)

// ConnectionStore persists data-source connections as one YAML collection.
// Records are flat maps on disk: id and dialect alongside the
// dialect-specific parameters, exactly as clients submit them.
type ConnectionStore struct {
	path string
	mu   sync.Mutex
}

// NewConnectionStore creates a store backed by the given file path.
func NewConnectionStore(path string) *ConnectionStore {
	return &ConnectionStore{path: path}
}

// Get returns the connection with the given id, or (nil, nil) when absent.
func (s *ConnectionStore) Get(id string) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].ID == id {
			return &conns[i], nil
		}
	}
	return nil, nil
}

// GetAll returns every stored connection.
func (s *ConnectionStore) GetAll() ([]domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save assigns a generated "<dialect>-<uuid>" id, appends the connection,
// and returns the id.
func (s *ConnectionStore) Save(conn *domain.Connection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.load()
	if err != nil {
		return "", err
	}
	conn.ID = domain.NewConnectionID(conn.Dialect)
	conns = append(conns, *conn)
	if err := s.write(conns); err != nil {
		return "", err
	}
	return conn.ID, nil
}

// Edit replaces the stored connection with the same id.
func (s *ConnectionStore) Edit(conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.load()
	if err != nil {
		return err
	}
	for i := range conns {
		if conns[i].ID == conn.ID {
			conns[i] = *conn
			return s.write(conns)
		}
	}
	return domain.ErrNotFound("connection %s not found", conn.ID)
}

// Delete removes the connection with the given id; no-op when absent.
func (s *ConnectionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.load()
	if err != nil {
		return err
	}
	for i := range conns {
		if conns[i].ID == id {
			conns = append(conns[:i], conns[i+1:]...)
			return s.write(conns)
		}
	}
	return nil
}

func (s *ConnectionStore) load() ([]domain.Connection, error) {
	data, err := readFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []domain.Connection{}, nil
	}

	var flat []map[string]any
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	conns := make([]domain.Connection, 0, len(flat))
	for _, record := range flat {
		conns = append(conns, fromFlat(record))
	}
	return conns, nil
}

func (s *ConnectionStore) write(conns []domain.Connection) error {
	flat := make([]map[string]any, 0, len(conns))
	for i := range conns {
		flat = append(flat, toFlat(&conns[i]))
	}
	data, err := yaml.Marshal(flat)
	if err != nil {
		return fmt.Errorf("serialize connections: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func toFlat(conn *domain.Connection) map[string]any {
	flat := make(map[string]any, len(conn.Params)+2)
	for k, v := range conn.Params {
		flat[k] = v
	}
	flat["id"] = conn.ID
	flat["dialect"] = conn.Dialect
	return flat
}

func fromFlat(flat map[string]any) domain.Connection {
	conn := domain.Connection{Params: make(map[string]any, len(flat))}
	for k, v := range flat {
		switch k {
		case "id":
			conn.ID, _ = v.(string)
		case "dialect":
			conn.Dialect, _ = v.(string)
		default:
			conn.Params[k] = v
		}
	}
	return conn
}

var _ domain.ConnectionRepository = (*ConnectionStore)(nil)

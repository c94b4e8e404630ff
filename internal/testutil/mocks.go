// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"github.com/plotly/falcon/internal/domain"
)

// === Query Repository Mock ===

// MockQueryRepo implements domain.QueryRepository in memory, with optional
// overrides per method. The zero value is a usable empty store.
type MockQueryRepo struct {
	GetFn    func(fid string) (*domain.QueryDefinition, error)
	GetAllFn func() ([]domain.QueryDefinition, error)
	SaveFn   func(def *domain.QueryDefinition) error
	DeleteFn func(fid string) error

	mu   sync.Mutex
	defs map[string]domain.QueryDefinition
}

func (m *MockQueryRepo) Get(fid string) (*domain.QueryDefinition, error) {
	if m.GetFn != nil {
		return m.GetFn(fid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[fid]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (m *MockQueryRepo) GetAll() ([]domain.QueryDefinition, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defs := make([]domain.QueryDefinition, 0, len(m.defs))
	for _, def := range m.defs {
		defs = append(defs, def)
	}
	return defs, nil
}

func (m *MockQueryRepo) Save(def *domain.QueryDefinition) error {
	if m.SaveFn != nil {
		return m.SaveFn(def)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defs == nil {
		m.defs = map[string]domain.QueryDefinition{}
	}
	m.defs[def.Fid] = *def
	return nil
}

func (m *MockQueryRepo) Delete(fid string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(fid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defs, fid)
	return nil
}

// === Connection Repository Mock ===

// MockConnectionRepo implements domain.ConnectionRepository for testing.
type MockConnectionRepo struct {
	GetFn    func(id string) (*domain.Connection, error)
	GetAllFn func() ([]domain.Connection, error)
	SaveFn   func(conn *domain.Connection) (string, error)
	EditFn   func(conn *domain.Connection) error
	DeleteFn func(id string) error
}

func (m *MockConnectionRepo) Get(id string) (*domain.Connection, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}
	panic("unexpected call to MockConnectionRepo.Get")
}

func (m *MockConnectionRepo) GetAll() ([]domain.Connection, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn()
	}
	panic("unexpected call to MockConnectionRepo.GetAll")
}

func (m *MockConnectionRepo) Save(conn *domain.Connection) (string, error) {
	if m.SaveFn != nil {
		return m.SaveFn(conn)
	}
	panic("unexpected call to MockConnectionRepo.Save")
}

func (m *MockConnectionRepo) Edit(conn *domain.Connection) error {
	if m.EditFn != nil {
		return m.EditFn(conn)
	}
	panic("unexpected call to MockConnectionRepo.Edit")
}

func (m *MockConnectionRepo) Delete(id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(id)
	}
	panic("unexpected call to MockConnectionRepo.Delete")
}

// === Tag Repository Mock ===

// MockTagRepo implements domain.TagRepository for testing.
type MockTagRepo struct {
	GetFn    func(id string) (*domain.Tag, error)
	GetAllFn func() ([]domain.Tag, error)
	SaveFn   func(tag *domain.Tag) (*domain.Tag, error)
	DeleteFn func(id string) error
}

func (m *MockTagRepo) Get(id string) (*domain.Tag, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}
	panic("unexpected call to MockTagRepo.Get")
}

func (m *MockTagRepo) GetAll() ([]domain.Tag, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn()
	}
	panic("unexpected call to MockTagRepo.GetAll")
}

func (m *MockTagRepo) Save(tag *domain.Tag) (*domain.Tag, error) {
	if m.SaveFn != nil {
		return m.SaveFn(tag)
	}
	panic("unexpected call to MockTagRepo.Save")
}

func (m *MockTagRepo) Delete(id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(id)
	}
	panic("unexpected call to MockTagRepo.Delete")
}

// === Credential Resolver Mock ===

// MockCredentialResolver implements domain.CredentialResolver for testing.
// Without an override it returns Creds for every username.
type MockCredentialResolver struct {
	ResolveFn func(username string) (*domain.Credentials, error)
	Creds     *domain.Credentials
}

func (m *MockCredentialResolver) Resolve(username string) (*domain.Credentials, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(username)
	}
	return m.Creds, nil
}

// === Data Source Gateway Mock ===

// MockGateway implements domain.DataSourceGateway for testing.
type MockGateway struct {
	ConnectFn    func(ctx context.Context, conn *domain.Connection) error
	QueryFn      func(ctx context.Context, query string, conn *domain.Connection) (*domain.QueryResult, error)
	ListTablesFn func(ctx context.Context, conn *domain.Connection) ([]string, error)
}

func (m *MockGateway) Connect(ctx context.Context, conn *domain.Connection) error {
	if m.ConnectFn != nil {
		return m.ConnectFn(ctx, conn)
	}
	return nil
}

func (m *MockGateway) Query(ctx context.Context, query string, conn *domain.Connection) (*domain.QueryResult, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, query, conn)
	}
	panic("unexpected call to MockGateway.Query")
}

func (m *MockGateway) ListTables(ctx context.Context, conn *domain.Connection) ([]string, error) {
	if m.ListTablesFn != nil {
		return m.ListTablesFn(ctx, conn)
	}
	panic("unexpected call to MockGateway.ListTables")
}

// === Grid Client Mock ===

// MockGridClient implements domain.GridClient for testing.
type MockGridClient struct {
	NewGridFn               func(ctx context.Context, filename string, result *domain.QueryResult, requestor string) (string, []string, error)
	UpdateGridFn            func(ctx context.Context, result *domain.QueryResult, fid, requestor string) ([]string, error)
	GetGridMetaFn           func(ctx context.Context, fid, requestor string) (*domain.GridMeta, error)
	PatchGridMetaFn         func(ctx context.Context, fid, requestor string, meta map[string]any) error
	CheckWritePermissionsFn func(ctx context.Context, fid, requestor string) error
}

func (m *MockGridClient) NewGrid(ctx context.Context, filename string, result *domain.QueryResult, requestor string) (string, []string, error) {
	if m.NewGridFn != nil {
		return m.NewGridFn(ctx, filename, result, requestor)
	}
	panic("unexpected call to MockGridClient.NewGrid")
}

func (m *MockGridClient) UpdateGrid(ctx context.Context, result *domain.QueryResult, fid, requestor string) ([]string, error) {
	if m.UpdateGridFn != nil {
		return m.UpdateGridFn(ctx, result, fid, requestor)
	}
	panic("unexpected call to MockGridClient.UpdateGrid")
}

func (m *MockGridClient) GetGridMeta(ctx context.Context, fid, requestor string) (*domain.GridMeta, error) {
	if m.GetGridMetaFn != nil {
		return m.GetGridMetaFn(ctx, fid, requestor)
	}
	panic("unexpected call to MockGridClient.GetGridMeta")
}

func (m *MockGridClient) PatchGridMeta(ctx context.Context, fid, requestor string, meta map[string]any) error {
	if m.PatchGridMetaFn != nil {
		return m.PatchGridMetaFn(ctx, fid, requestor, meta)
	}
	panic("unexpected call to MockGridClient.PatchGridMeta")
}

func (m *MockGridClient) CheckWritePermissions(ctx context.Context, fid, requestor string) error {
	if m.CheckWritePermissionsFn != nil {
		return m.CheckWritePermissionsFn(ctx, fid, requestor)
	}
	return nil
}

var (
	_ domain.QueryRepository      = (*MockQueryRepo)(nil)
	_ domain.ConnectionRepository = (*MockConnectionRepo)(nil)
	_ domain.TagRepository        = (*MockTagRepo)(nil)
	_ domain.CredentialResolver   = (*MockCredentialResolver)(nil)
	_ domain.DataSourceGateway    = (*MockGateway)(nil)
	_ domain.GridClient           = (*MockGridClient)(nil)
)

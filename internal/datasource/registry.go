// Package datasource dispatches connect/query/listTables calls to the
// gateway registered for a connection's dialect. New dialects register
// themselves; there is no central switch statement.
package datasource

import (
	"context"
	"sync"

	"github.com/plotly/falcon/internal/domain"
)

// Registry maps dialect tags to gateway implementations. It implements
// domain.DataSourceGateway itself, so callers can hold one gateway value and
// ignore dispatch entirely.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]domain.DataSourceGateway
	fallback domain.DataSourceGateway
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]domain.DataSourceGateway)}
}

// Register binds a dialect tag to a gateway, replacing any previous binding.
func (r *Registry) Register(dialect string, gw domain.DataSourceGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[dialect] = gw
}

// SetFallback sets the gateway used for dialects with no explicit binding.
// The SQL gateway plays this role in the default wiring, matching the long
// tail of SQL-speaking dialects.
func (r *Registry) SetFallback(gw domain.DataSourceGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = gw
}

// Dialects returns the explicitly registered dialect tags.
func (r *Registry) Dialects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dialects := make([]string, 0, len(r.gateways))
	for d := range r.gateways {
		dialects = append(dialects, d)
	}
	return dialects
}

func (r *Registry) lookup(conn *domain.Connection) (domain.DataSourceGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if gw, ok := r.gateways[conn.Dialect]; ok {
		return gw, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, domain.ErrValidation("no data source gateway registered for dialect %q", conn.Dialect)
}

// Connect pings the data source behind the connection.
func (r *Registry) Connect(ctx context.Context, conn *domain.Connection) error {
	gw, err := r.lookup(conn)
	if err != nil {
		return err
	}
	return gw.Connect(ctx, conn)
}

// Query runs a query against the connection's data source.
func (r *Registry) Query(ctx context.Context, query string, conn *domain.Connection) (*domain.QueryResult, error) {
	gw, err := r.lookup(conn)
	if err != nil {
		return nil, err
	}
	return gw.Query(ctx, query, conn)
}

// ListTables enumerates the queryable tables (or table-like objects) behind
// the connection.
func (r *Registry) ListTables(ctx context.Context, conn *domain.Connection) ([]string, error) {
	gw, err := r.lookup(conn)
	if err != nil {
		return nil, err
	}
	return gw.ListTables(ctx, conn)
}

var _ domain.DataSourceGateway = (*Registry)(nil)

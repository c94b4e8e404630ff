package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/plotly/falcon/internal/domain"
)

// tablesQueries lists, per SQL dialect, how to enumerate user tables.
var tablesQueries = map[string]string{
	"sqlite":   "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	"postgres": "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name",
	"mysql":    "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name",
}

const defaultTablesQuery = "SELECT table_name FROM information_schema.tables ORDER BY table_name"

// SQLGateway serves every database/sql-compatible dialect. Open handles are
// pooled per connection id, mirroring how drivers keep one pool per stored
// connection.
type SQLGateway struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewSQLGateway creates a gateway with an empty handle pool. The drivers it
// can use are whatever has been registered with database/sql (the server
// binary registers sqlite3).
func NewSQLGateway() *SQLGateway {
	return &SQLGateway{pools: make(map[string]*sql.DB)}
}

// driverAndDSN maps a connection onto a database/sql driver name and DSN.
// Connections may carry an explicit driver/dsn pair; otherwise the dialect
// decides.
func driverAndDSN(conn *domain.Connection) (string, string, error) {
	if driver := conn.Str("driver"); driver != "" {
		return driver, conn.Str("dsn"), nil
	}
	switch conn.Dialect {
	case "sqlite":
		storage := conn.Str("storage")
		if storage == "" {
			return "", "", domain.ErrValidation("sqlite connection requires a storage path")
		}
		return "sqlite3", storage, nil
	case "postgres":
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s",
			conn.Str("host"), conn.Int("port"), conn.Str("username"), conn.Str("password"), conn.Str("database"),
		), nil
	case "mysql":
		return "mysql", fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s",
			conn.Str("username"), conn.Str("password"), conn.Str("host"), conn.Int("port"), conn.Str("database"),
		), nil
	default:
		return "", "", domain.ErrValidation("dialect %q has no SQL driver mapping; set driver and dsn explicitly", conn.Dialect)
	}
}

// open returns the pooled handle for the connection, opening it on first
// use.
func (g *SQLGateway) open(conn *domain.Connection) (*sql.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if db, ok := g.pools[conn.ID]; ok {
		return db, nil
	}
	driver, dsn, err := driverAndDSN(conn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", conn.Dialect, err)
	}
	g.pools[conn.ID] = db
	return db, nil
}

// Connect verifies the data source is reachable.
func (g *SQLGateway) Connect(ctx context.Context, conn *domain.Connection) error {
	db, err := g.open(conn)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Query runs the statement and returns its result row-major. Byte-slice
// cells are converted to strings so results serialize as text rather than
// base64.
func (g *SQLGateway) Query(ctx context.Context, query string, conn *domain.Connection) (*domain.QueryResult, error) {
	db, err := g.open(conn)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &domain.QueryResult{Columnnames: columns, Rows: [][]any{}}
	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// ListTables enumerates the user tables of the connection's database.
func (g *SQLGateway) ListTables(ctx context.Context, conn *domain.Connection) ([]string, error) {
	tablesQuery, ok := tablesQueries[conn.Dialect]
	if !ok {
		tablesQuery = defaultTablesQuery
	}
	result, err := g.Query(ctx, tablesQuery, conn)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) > 0 {
			if name, ok := row[0].(string); ok {
				tables = append(tables, name)
			}
		}
	}
	return tables, nil
}

// Close releases every pooled handle. Used at shutdown and in tests.
func (g *SQLGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for id, db := range g.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.pools, id)
	}
	return firstErr
}

var _ domain.DataSourceGateway = (*SQLGateway)(nil)

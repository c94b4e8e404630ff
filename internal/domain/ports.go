package domain

import "context"

// QueryRepository is durable CRUD over query definitions keyed by fid.
// Get returns (nil, nil) when the fid is unknown; Delete of an unknown fid is
// a no-op.
type QueryRepository interface {
	Get(fid string) (*QueryDefinition, error)
	GetAll() ([]QueryDefinition, error)
	Save(def *QueryDefinition) error
	Delete(fid string) error
}

// ConnectionRepository is durable CRUD over data-source connections.
// Save assigns and returns the generated "<dialect>-<uuid>" id.
type ConnectionRepository interface {
	Get(id string) (*Connection, error)
	GetAll() ([]Connection, error)
	Save(conn *Connection) (string, error)
	Edit(conn *Connection) error
	Delete(id string) error
}

// TagRepository is durable CRUD over tags.
type TagRepository interface {
	Get(id string) (*Tag, error)
	GetAll() ([]Tag, error)
	Save(tag *Tag) (*Tag, error)
	Delete(id string) error
}

// CredentialResolver looks up grid-store credentials for a requestor.
// Returns (nil, nil) for unknown usernames.
type CredentialResolver interface {
	Resolve(username string) (*Credentials, error)
}

// DataSourceGateway is the uniform contract every dialect implements. The
// datasource registry implements it too, dispatching on connection.Dialect.
type DataSourceGateway interface {
	Connect(ctx context.Context, conn *Connection) error
	Query(ctx context.Context, query string, conn *Connection) (*QueryResult, error)
	ListTables(ctx context.Context, conn *Connection) ([]string, error)
}

// GridMeta is the subset of grid metadata the scheduler cares about.
type GridMeta struct {
	Fid           string
	Filename      string
	Deleted       bool
	UIDs          []string // column uids in column order
	Collaborators []string // usernames with write access besides the owner
}

// GridClient talks to the remote tabular store. UpdateGrid reconciles the
// grid's live columns against the incoming result and returns the uid list
// actually written. Both NewGrid and UpdateGrid surface ErrGridDeleted when
// the target grid is gone upstream.
type GridClient interface {
	NewGrid(ctx context.Context, filename string, result *QueryResult, requestor string) (fid string, uids []string, err error)
	UpdateGrid(ctx context.Context, result *QueryResult, fid, requestor string) (uids []string, err error)
	GetGridMeta(ctx context.Context, fid, requestor string) (*GridMeta, error)
	PatchGridMeta(ctx context.Context, fid, requestor string, meta map[string]any) error
	CheckWritePermissions(ctx context.Context, fid, requestor string) error
}

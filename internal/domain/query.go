package domain

// Execution status constants.
const (
	ExecutionStatusQueued  = "queued"
	ExecutionStatusRunning = "running"
	ExecutionStatusOK      = "ok"
	ExecutionStatusFailed  = "failed"
)

// MaxNameLength bounds the display name of a query definition.
const MaxNameLength = 150

// QueryDefinition is the unit the scheduler registers: a query against one
// connection whose results refresh one grid. The fid is the primary key.
//
// Absent optional fields must stay absent when serialized; the persisted
// file never carries null-placeholder keys.
type QueryDefinition struct {
	Fid             string     `json:"fid"`
	Query           string     `json:"query"`
	ConnectionID    string     `json:"connectionId"`
	UIDs            []string   `json:"uids,omitempty"`
	Requestor       string     `json:"requestor"`
	RefreshInterval int64      `json:"refreshInterval,omitempty"` // seconds
	CronInterval    string     `json:"cronInterval,omitempty"`
	Name            string     `json:"name,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	LastExecution   *Execution `json:"lastExecution,omitempty"`
	NextScheduledAt int64      `json:"nextScheduledAt,omitempty"` // epoch ms
}

// Validate checks the definition's static constraints. Schedule resolution
// (cron vs refresh interval) is handled by the schedule package.
func (q *QueryDefinition) Validate() error {
	if q.Fid == "" {
		return ErrValidation("fid is required")
	}
	if q.ConnectionID == "" {
		return ErrValidation("connectionId is required")
	}
	if q.Requestor == "" {
		return ErrValidation("requestor is required")
	}
	if len(q.Name) > MaxNameLength {
		return ErrInvalidName("name must be less than %d characters", MaxNameLength)
	}
	return nil
}

// GridOwner returns the owner component of the fid ("owner:number").
func (q *QueryDefinition) GridOwner() string {
	for i := 0; i < len(q.Fid); i++ {
		if q.Fid[i] == ':' {
			return q.Fid[:i]
		}
	}
	return q.Fid
}

// Execution records the outcome of one scheduled run, folded into the
// persisted definition as lastExecution.
type Execution struct {
	Status       string `json:"status"`
	StartedAt    int64  `json:"startedAt,omitempty"`   // epoch ms
	CompletedAt  int64  `json:"completedAt,omitempty"` // epoch ms
	Duration     int64  `json:"duration,omitempty"`    // wall-clock seconds, floored
	RowCount     int64  `json:"rowCount,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// QueryResult is the row-major result of one data-source query.
type QueryResult struct {
	Columnnames []string `json:"columnnames"`
	Rows        [][]any  `json:"rows"`
}

package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// secretParams lists connection parameters that must never leave the backend.
var secretParams = []string{"password", "secretAccessKey"}

// Connection is a dialect-tagged record of the parameters needed to reach one
// data source. Beyond the id and dialect, the parameter set is opaque to the
// scheduler and owned by whichever gateway handles the dialect.
type Connection struct {
	ID      string
	Dialect string
	Params  map[string]any
}

// NewConnectionID generates a connection id of the form "<dialect>-<uuid>".
func NewConnectionID(dialect string) string {
	return fmt.Sprintf("%s-%s", dialect, uuid.NewString())
}

// Str returns the named parameter as a string, or "" when absent or not a
// string.
func (c *Connection) Str(key string) string {
	s, _ := c.Params[key].(string)
	return s
}

// Int returns the named parameter as an int. YAML and JSON decoders produce
// different numeric types, so both are handled.
func (c *Connection) Int(key string) int {
	switch v := c.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Sanitize returns a copy with secret parameters removed. API responses only
// ever carry sanitized connections.
func (c *Connection) Sanitize() *Connection {
	params := make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}
	for _, k := range secretParams {
		delete(params, k)
	}
	return &Connection{ID: c.ID, Dialect: c.Dialect, Params: params}
}

// MarshalJSON flattens id, dialect, and the parameter set into one object,
// matching the wire shape clients send and receive.
func (c *Connection) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(c.Params)+2)
	for k, v := range c.Params {
		flat[k] = v
	}
	if c.ID != "" {
		flat["id"] = c.ID
	}
	flat["dialect"] = c.Dialect
	return json.Marshal(flat)
}

// UnmarshalJSON splits a flat object into id, dialect, and parameters.
func (c *Connection) UnmarshalJSON(data []byte) error {
	flat := map[string]any{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	c.ID, _ = flat["id"].(string)
	c.Dialect, _ = flat["dialect"].(string)
	delete(flat, "id")
	delete(flat, "dialect")
	c.Params = flat
	return nil
}

// Validate checks the minimum shape required to dispatch the connection.
func (c *Connection) Validate() error {
	if c.Dialect == "" {
		return ErrValidation("connection must have a dialect")
	}
	return nil
}

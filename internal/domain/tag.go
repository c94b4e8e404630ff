package domain

// MaxTagLength bounds tag names.
const MaxTagLength = 30

// Tag is a named, colored label attachable to query definitions.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

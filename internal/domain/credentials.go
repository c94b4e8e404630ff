package domain

// Credentials authorize grid-store writes on behalf of one requestor.
// APIKey and AccessToken are alternatives; either one is sufficient.
type Credentials struct {
	Username    string `json:"username"`
	APIKey      string `json:"apiKey,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Authenticated reports whether the credentials can actually be used. A
// record with neither an API key nor an access token is treated the same as
// a missing record.
func (c *Credentials) Authenticated() bool {
	return c != nil && c.Username != "" && (c.APIKey != "" || c.AccessToken != "")
}

package idpconfig

import "time"

// Source identifies where a resolved configuration came from
type Source string

const (
	SourceDatabase Source = "database"
	SourceLocal    Source = "local"
)

// Config holds the identity-provider parameters for the Azure AD
// code-redirect flow
type Config struct {
	ClientID     string `json:"client_id"`
	Tenant       string `json:"tenant"`
	ClientSecret string `json:"-"` // Never expose secret in JSON
}

// Complete reports whether the config is sufficient to construct a session.
// An incomplete config is not an error: the session manager settles into a
// quiescent signed-out state until an administrator fills it in.
func (c Config) Complete() bool {
	return c.ClientID != "" && c.Tenant != ""
}

// Record is a stored configuration row. Writes are insert-only; the newest
// row by creation time is the current configuration.
type Record struct {
	ID        int64     `json:"id"`
	Config
	CreatedAt time.Time `json:"created_at"`
}

// CheckResult is the ephemeral presence read-model consumed by the login
// screen and the route guard
type CheckResult struct {
	ClientID     bool   `json:"client_id"`
	Tenant       bool   `json:"tenant"`
	ClientSecret bool   `json:"client_secret"`
	Source       Source `json:"source,omitempty"`
}

// Present reports whether enough configuration exists to reach the login
// screen
func (r CheckResult) Present() bool {
	return r.ClientID && r.Tenant
}

// Local cache keys for the mirrored configuration values
const (
	cacheKeyClientID     = "azure_ad_client_id"
	cacheKeyTenant       = "azure_ad_tenant"
	cacheKeyClientSecret = "azure_ad_client_secret"
)

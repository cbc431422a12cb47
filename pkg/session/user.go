package session

import (
	"encoding/json"
	"time"
)

// User is an authenticated identity as issued by the provider. A User is
// immutable per issuance: silent renewal supersedes it wholesale and
// sign-out clears it entirely.
type User struct {
	Subject      string                 `json:"subject"`
	Claims       map[string]interface{} `json:"claims"`
	IDToken      string                 `json:"id_token"`
	AccessToken  string                 `json:"access_token"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	Expiry       time.Time              `json:"expiry"`
}

// Expired reports whether the issuance has passed its expiry
func (u *User) Expired(now time.Time) bool {
	return !u.Expiry.IsZero() && now.After(u.Expiry)
}

// StringClaim returns a string claim or "" when absent or not a string
func (u *User) StringClaim(name string) string {
	if v, ok := u.Claims[name].(string); ok {
		return v
	}
	return ""
}

// Email resolves the user's email with the preferred_username fallback the
// directory uses for accounts without a mail attribute
func (u *User) Email() string {
	if email := u.StringClaim("email"); email != "" {
		return email
	}
	return u.StringClaim("preferred_username")
}

// DisplayName returns the name claim
func (u *User) DisplayName() string {
	return u.StringClaim("name")
}

// marshalUser serializes a user for the local cache
func marshalUser(u *User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalUser deserializes a cached user
func unmarshalUser(s string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

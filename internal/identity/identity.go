// Package identity carries the caller identity supplied by the upstream
// authentication provider.
package identity

import (
	"errors"
	"strings"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

var ErrMissingActor = errors.New("missing_actor")

// Actor is an already-authenticated caller. The core trusts it as given.
type Actor struct {
	UserID string
	Email  string
	Name   string
}

func New(userID, email, name string) Actor {
	return Actor{
		UserID: strings.TrimSpace(userID),
		Email:  strings.TrimSpace(email),
		Name:   strings.TrimSpace(name),
	}
}

func (a Actor) Valid() bool {
	return strings.TrimSpace(a.UserID) != ""
}

// DisplayName falls back to the email when no name is known.
func (a Actor) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return strings.TrimSpace(a.Email)
}

// SameEmail compares two addresses case-insensitively.
func SameEmail(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

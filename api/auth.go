package api

import (
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"

	RoleAdmin = "admin"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("authentication required")

// Identity is the caller as established by the Authenticator.
type Identity struct {
	UserID string
	Admin  bool
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// HeaderAuthenticator trusts identity headers set by the upstream gateway,
// which has already verified the caller's token.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return Identity{}, ErrUnauthenticated
	}
	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	return Identity{UserID: id, Admin: strings.EqualFold(role, RoleAdmin)}, nil
}

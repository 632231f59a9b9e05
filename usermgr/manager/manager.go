// Package manager defines the administrative surface every identity backend
// implements, so callers stay polymorphic over the backend choice.
package manager

import (
	"context"
	"strings"
	"time"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
)

// DefaultListLimit is the page size used when ListUsers is called with a
// non-positive limit. It is also the identity service maximum.
const DefaultListLimit int64 = 60

// UserManager is implemented by the direct-API backend and the
// remote-invocation backend. Implementations must be safe for concurrent use.
type UserManager interface {
	// Close releases held resources. It is idempotent.
	Close() error

	// AddUser creates a user and returns its subject identifier.
	AddUser(ctx context.Context, username, password string, attrs map[string]string) (string, error)
	// UpdateUser overwrites the named attributes; others are left untouched.
	UpdateUser(ctx context.Context, username string, attrs map[string]string) error
	// SetPassword sets the credential. permanent=false forces a change at next login.
	SetPassword(ctx context.Context, username, password string, permanent bool) error
	DeleteUser(ctx context.Context, username string) error
	// IsExistUser reports false for a missing user instead of an error.
	IsExistUser(ctx context.Context, username string) (bool, error)

	AddUserToGroup(ctx context.Context, username, groupname string) error
	AddGroup(ctx context.Context, groupname, description string) error
	DeleteGroup(ctx context.Context, groupname string) error

	// ListUsers returns the first page of members of groupname. nextToken is
	// accepted but not passed upstream; only the first page is returned.
	ListUsers(ctx context.Context, groupname string, limit int64, nextToken string) (*UserPage, error)
}

// Directory is implemented by backends that can read user records straight
// from the pool. The remote-invocation backend does not implement it.
type Directory interface {
	// GetUser returns the full record of username.
	GetUser(ctx context.Context, username string) (*User, error)
	// ListPoolUsers returns the first page of all users in the pool. nextToken
	// is accepted but not passed upstream, as with ListUsers.
	ListPoolUsers(ctx context.Context, limit int64, nextToken string) (*UserPage, error)
}

// Credential states reported by the identity service.
const (
	StatusConfirmed           = "CONFIRMED"
	StatusForceChangePassword = "FORCE_CHANGE_PASSWORD"
)

// User is a snapshot of an identity service user.
type User struct {
	Username   string            `json:"username"`
	Sub        string            `json:"sub,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     string            `json:"status,omitempty"`
	Enabled    bool              `json:"enabled"`
	CreatedAt  time.Time         `json:"created_at,omitzero"`
}

// UserPage is one page of a group listing. Truncated is set when the identity
// service reported more members than were returned.
type UserPage struct {
	Users     []User `json:"users"`
	Truncated bool   `json:"truncated"`
}

// Usernames returns the usernames on the page in order.
func (p *UserPage) Usernames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		names = append(names, u.Username)
	}
	return names
}

// Provider selects the backend at construction time.
type Provider string

const (
	ProviderCognito Provider = "AWS_COGNITO"
	ProviderLambda  Provider = "AWS_LAMBDA"
)

// Providers lists every supported provider token.
var Providers = []Provider{ProviderCognito, ProviderLambda}

// Key is the singleton cache key for the provider.
func (p Provider) Key() string {
	switch p {
	case ProviderCognito:
		return "cognito_default"
	case ProviderLambda:
		return "lambda_default"
	}
	return strings.ToLower(string(p)) + "_default"
}

// ParseProvider resolves a provider token. The lower-case "cognito" and
// "lambda" aliases are accepted for older configuration files.
func ParseProvider(s string) (Provider, error) {
	switch strings.TrimSpace(s) {
	case string(ProviderCognito), "cognito", "cognito-idp":
		return ProviderCognito, nil
	case string(ProviderLambda), "lambda":
		return ProviderLambda, nil
	}
	return "", awserrors.NewError(awserrors.ErrConfiguration, "ParseProvider", awserrors.ErrorUnknownProvider, "unknown provider: "+s)
}

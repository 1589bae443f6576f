// Package credentials resolves the fixed test accounts of the nursery
// application by role.
package credentials

import (
	"strings"

	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/errs"
)

// Role is a test account role.
type Role string

const (
	Admin Role = "ADMIN"
	User  Role = "USER"
)

// Credential is a username/password pair plus the authority the application
// is expected to grant it.
type Credential struct {
	Role      Role
	Username  string
	Password  string
	Authority string
}

var table = map[Role]Credential{
	Admin: {Role: Admin, Username: "admin", Password: "admin123", Authority: "ROLE_ADMIN"},
	User:  {Role: User, Username: "testuser", Password: "test123", Authority: "ROLE_USER"},
}

// ParseRole normalizes a role name. Matching is case-insensitive and ignores
// surrounding whitespace.
func ParseRole(role string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(role)))
	if _, ok := table[r]; !ok {
		return "", errs.Newf(errs.Configuration, "unknown role %q", role)
	}
	return r, nil
}

// Resolve returns the credential for a role name.
func Resolve(role string) (Credential, error) {
	r, err := ParseRole(role)
	if err != nil {
		return Credential{}, err
	}
	return table[r], nil
}

// Roles lists the known roles in a stable order.
func Roles() []Role {
	return []Role{Admin, User}
}

// SetupAdmin returns the setup-only admin credential configured through
// ADMIN_USERNAME and ADMIN_PASSWORD. ok is false unless both are set.
func SetupAdmin(cfg *config.Config) (Credential, bool) {
	if cfg == nil || !cfg.HasSetupAdmin() {
		return Credential{}, false
	}
	return Credential{
		Role:      Admin,
		Username:  cfg.AdminUsername,
		Password:  cfg.AdminPassword,
		Authority: table[Admin].Authority,
	}, true
}

// Package claims reads the payload of a bearer token without verifying its
// signature. The suite only inspects tokens the application just issued to it;
// nothing here may be used to make a trust decision.
package claims

import (
	"strings"

	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// roleKeys are the payload fields that may carry the granted role, in lookup order.
var roleKeys = []string{"role", "roles", "authorities", "auth"}

// Claims is the decoded, unverified token payload.
type Claims struct {
	Subject string
	Raw     map[string]any
}

// Decode parses a compact JWS and returns its payload without checking the signature.
func Decode(token string) (Claims, error) {
	tok, err := jwt.ParseSigned(strings.TrimSpace(token))
	if err != nil {
		return Claims{}, errs.Wrap(errs.Assertion, "token is not a parseable JWT", err)
	}
	raw := map[string]any{}
	if err := tok.UnsafeClaimsWithoutVerification(&raw); err != nil {
		return Claims{}, errs.Wrap(errs.Assertion, "token payload is not a JSON object", err)
	}
	sub, _ := raw["sub"].(string)
	return Claims{Subject: sub, Raw: raw}, nil
}

// Role returns the first role found under role, roles, authorities or auth.
// Array values yield their first element; Spring-style {"authority": "..."}
// entries are unwrapped.
func (c Claims) Role() (string, bool) {
	for _, key := range roleKeys {
		v, ok := c.Raw[key]
		if !ok || v == nil {
			continue
		}
		if role, ok := roleValue(v); ok {
			return role, true
		}
	}
	return "", false
}

func roleValue(v any) (string, bool) {
	switch typed := v.(type) {
	case string:
		// Comma separated authority lists ("ROLE_ADMIN,ROLE_USER") count as arrays.
		first := strings.TrimSpace(strings.Split(typed, ",")[0])
		return first, first != ""
	case []any:
		if len(typed) == 0 {
			return "", false
		}
		return roleValue(typed[0])
	case map[string]any:
		if a, ok := typed["authority"]; ok {
			return roleValue(a)
		}
	}
	return "", false
}

// RoleOf decodes the token and returns its role.
func RoleOf(token string) (string, error) {
	c, err := Decode(token)
	if err != nil {
		return "", err
	}
	role, ok := c.Role()
	if !ok {
		return "", errs.New(errs.Assertion, "token payload carries no role, roles, authorities or auth claim")
	}
	return role, nil
}

// MatchesAuthority reports whether a role value denotes the expected
// authority. "ADMIN" matches "ROLE_ADMIN".
func MatchesAuthority(role, authority string) bool {
	role = strings.ToUpper(strings.TrimSpace(role))
	authority = strings.ToUpper(strings.TrimSpace(authority))
	if role == authority {
		return true
	}
	return "ROLE_"+role == authority
}

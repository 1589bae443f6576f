package twin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kuitang/nursery-suite/internal/errs"
)

const (
	AuthorityAdmin = "ROLE_ADMIN"
	AuthorityUser  = "ROLE_USER"

	defaultTokenTTL = time.Hour
)

// Principal is an authenticated caller.
type Principal struct {
	Username  string
	Authority string
}

// IsAdmin reports whether the principal may mutate the catalogue.
func (p Principal) IsAdmin() bool { return p.Authority == AuthorityAdmin }

type contextKey string

const principalKey contextKey = "principal"

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the auth middlewares.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

type account struct {
	username     string
	passwordHash []byte
	authority    string
}

// users verifies passwords against bcrypt hashes.
type users struct {
	byName map[string]account
}

func newUsers(seed []SeedUser, cost int) (*users, error) {
	u := &users{byName: make(map[string]account, len(seed))}
	for _, su := range seed {
		authority, err := authorityFor(su.Role)
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), cost)
		if err != nil {
			return nil, errs.Wrap(errs.Configuration, "hash seed password", err)
		}
		u.byName[su.Username] = account{username: su.Username, passwordHash: hash, authority: authority}
	}
	return u, nil
}

func authorityFor(role string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "ADMIN", AuthorityAdmin:
		return AuthorityAdmin, nil
	case "USER", AuthorityUser:
		return AuthorityUser, nil
	default:
		return "", errs.Newf(errs.Configuration, "unknown seed role %q", role)
	}
}

// Authenticate checks a username and password.
func (u *users) Authenticate(username, password string) (Principal, error) {
	acct, ok := u.byName[username]
	if !ok {
		return Principal{}, errs.New(errs.Unauthenticated, "Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return Principal{}, errs.New(errs.Unauthenticated, "Invalid username or password")
	}
	return Principal{Username: acct.username, Authority: acct.authority}, nil
}

type tokenClaims struct {
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
	jwt.RegisteredClaims
}

// tokens issues and verifies HS256 bearer tokens.
type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t *tokens) Issue(p Principal) (string, error) {
	now := t.now()
	claims := tokenClaims{
		Role:        p.Authority,
		Authorities: []string{p.Authority},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "sign token", err)
	}
	return signed, nil
}

func (t *tokens) Verify(raw string) (Principal, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, errs.Wrap(errs.Unauthenticated, "Invalid or expired token", err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return Principal{}, errs.New(errs.Unauthenticated, "Invalid or expired token")
	}
	return Principal{Username: claims.Subject, Authority: claims.Role}, nil
}

// requireToken rejects API requests without a valid bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		raw, found := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !found || raw == "" {
			s.writeError(w, r, errs.New(errs.Unauthenticated, "Full authentication is required to access this resource"))
			return
		}
		p, err := s.tokens.Verify(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// requireAdmin rejects callers without ROLE_ADMIN. It runs after requireToken.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin() {
			s.writeError(w, r, errs.New(errs.PermissionDenied, "Access Denied"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principalName keys the rate limiter; anonymous callers return "".
func principalName(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.Username
	}
	return ""
}

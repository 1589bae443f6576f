package twin

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// TestServer is a seeded twin listening on a local httptest server.
type TestServer struct {
	*httptest.Server
	Twin *Server
}

// NewTestServer starts a twin with the default seed and cheap password hashing.
// mutate may adjust the options before the server is built. The server is
// closed when the test completes.
func NewTestServer(t testing.TB, mutate ...func(*Options)) *TestServer {
	t.Helper()

	seed := DefaultSeed()
	opts := Options{
		JWTSecret:    []byte("twin-test-secret"),
		Seed:         &seed,
		PasswordCost: bcrypt.MinCost,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv, err := New(opts)
	if err != nil {
		t.Fatalf("failed to start twin: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &TestServer{Server: ts, Twin: srv}
}

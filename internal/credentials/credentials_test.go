package credentials

import (
	"strings"
	"testing"

	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResolve_FixedTable(t *testing.T) {
	t.Parallel()

	admin, err := Resolve("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
	assert.Equal(t, "admin123", admin.Password)
	assert.Equal(t, "ROLE_ADMIN", admin.Authority)

	user, err := Resolve("USER")
	require.NoError(t, err)
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, "test123", user.Password)
	assert.Equal(t, "ROLE_USER", user.Authority)
}

func TestResolve_UnknownRoleIsConfigurationError(t *testing.T) {
	t.Parallel()

	for _, role := range []string{"", "GUEST", "administrator"} {
		_, err := Resolve(role)
		require.Error(t, err, role)
		assert.Equal(t, errs.Configuration, errs.CodeOf(err), role)
	}
}

func testResolve_CaseAndWhitespaceInsensitive(t *rapid.T) {
	base := rapid.SampledFrom([]string{"admin", "user"}).Draw(t, "role")
	var b strings.Builder
	for _, r := range base {
		if rapid.Bool().Draw(t, "upper") {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	pad := rapid.StringMatching(`[ \t]{0,3}`).Draw(t, "pad")
	input := pad + b.String() + pad

	got, err := Resolve(input)
	if err != nil {
		t.Fatalf("Resolve(%q) failed: %v", input, err)
	}
	if string(got.Role) != strings.ToUpper(base) {
		t.Fatalf("Resolve(%q) role = %s", input, got.Role)
	}
}

func TestResolve_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testResolve_CaseAndWhitespaceInsensitive)
}

func TestSetupAdmin(t *testing.T) {
	t.Parallel()

	_, ok := SetupAdmin(&config.Config{AdminUsername: "ops"})
	assert.False(t, ok)

	_, ok = SetupAdmin(nil)
	assert.False(t, ok)

	cred, ok := SetupAdmin(&config.Config{AdminUsername: "ops", AdminPassword: "s3cret"})
	require.True(t, ok)
	assert.Equal(t, Admin, cred.Role)
	assert.Equal(t, "ops", cred.Username)
	assert.Equal(t, "ROLE_ADMIN", cred.Authority)
}

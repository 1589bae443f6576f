package steps

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/report"
	"github.com/kuitang/nursery-suite/internal/session"
)

func TestScenarioStatus(t *testing.T) {
	tests := []struct {
		err  error
		want report.Status
	}{
		{nil, report.Passed},
		{godog.ErrSkip, report.Skipped},
		{fmt.Errorf("step: %w", godog.ErrPending), report.Pending},
		{godog.ErrUndefined, report.Undefined},
		{errs.New(errs.Assertion, "boom"), report.Failed},
		{errors.New("plain"), report.Failed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scenarioStatus(tt.err), "%v", tt.err)
	}
}

func TestFeatureName(t *testing.T) {
	assert.Equal(t, "sales admin api", featureName("features/sales_admin_api.feature"))
	assert.Equal(t, "auth", featureName("auth.feature"))
}

func TestWorldFrom_Missing(t *testing.T) {
	_, err := WorldFrom(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.Setup, errs.CodeOf(err))
}

func TestWorld_RequiresAuthenticationAndResponse(t *testing.T) {
	w := &World{sessions: session.NewCache(nil)}

	_, err := w.token()
	assert.Equal(t, errs.Setup, errs.CodeOf(err))

	w.authRole = "admin"
	_, err = w.token()
	assert.Equal(t, errs.Setup, errs.CodeOf(err), "no login happened yet")

	_, err = w.Last()
	assert.Equal(t, errs.Setup, errs.CodeOf(err))

	resp := &apiclient.Response{Method: "GET", Path: "/api/sales", Status: 200, Body: []byte("not json")}
	w.record("user", resp)
	got, err := w.Last()
	require.NoError(t, err)
	assert.Same(t, resp, got)
	assert.Equal(t, "user", w.lastRole)

	_, _, err = w.lastDecoded()
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))
}

package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type captured struct {
	method string
	path   string
	query  url.Values
	auth   string
	ctype  string
	body   []byte
}

func newCaptureServer(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.auth = r.Header.Get("Authorization")
		got.ctype = r.Header.Get("Content-Type")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestDo_SendsJSONBodyAndBearer(t *testing.T) {
	t.Parallel()
	srv, got := newCaptureServer(t, http.StatusCreated, `{"id":7}`)
	c := New(srv.URL + "/")

	resp, err := c.Do(context.Background(), Request{
		Method: "post",
		Path:   "api/categories",
		Token:  "  a.b.c  ",
		Body:   map[string]any{"name": "Ferns"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/categories", got.path)
	assert.Equal(t, "Bearer a.b.c", got.auth)
	assert.Equal(t, "application/json", got.ctype)
	assert.JSONEq(t, `{"name":"Ferns"}`, string(got.body))

	obj, err := resp.Object()
	require.NoError(t, err)
	assert.Equal(t, float64(7), obj["id"])
}

func TestDo_OmitsAuthorizationForBlankToken(t *testing.T) {
	t.Parallel()
	srv, got := newCaptureServer(t, http.StatusUnauthorized, `{"status":401}`)
	c := New(srv.URL)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/sales", Token: "   "})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Empty(t, got.auth)
	assert.Empty(t, got.ctype)
}

func TestDo_EncodesQuery(t *testing.T) {
	t.Parallel()
	srv, got := newCaptureServer(t, http.StatusOK, `[]`)
	c := New(srv.URL)

	_, err := c.Do(context.Background(), Request{
		Path:  "/api/sales/page",
		Query: url.Values{"page": {"0"}, "size": {"5"}, "sort": {"soldAt,desc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "soldAt,desc", got.query.Get("sort"))
	assert.Equal(t, "5", got.query.Get("size"))
}

func TestDo_TransportFailureIsSetupError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := New(base, WithTimeout(time.Second)).Do(context.Background(), Request{Path: "/api/plants"})
	require.Error(t, err)
	assert.Equal(t, errs.Setup, errs.CodeOf(err))
}

func TestDo_UnencodableBodyIsSetupError(t *testing.T) {
	t.Parallel()
	_, err := New("http://127.0.0.1:1").Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/plants",
		Body:   map[string]any{"bad": make(chan int)},
	})
	require.Error(t, err)
	assert.Equal(t, errs.Setup, errs.CodeOf(err))
}

func testDo_NeverErrorsOnStatus(t *rapid.T) {
	status := rapid.IntRange(200, 599).Draw(t, "status")
	if status == http.StatusNoContent || status == http.StatusNotModified {
		status = http.StatusOK
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Do(context.Background(), Request{Path: "/api/anything"})
	if err != nil {
		t.Fatalf("status %d produced error: %v", status, err)
	}
	if resp.Status != status {
		t.Fatalf("status = %d, want %d", resp.Status, status)
	}
}

func TestDo_NeverErrorsOnStatus(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testDo_NeverErrorsOnStatus)
}

func TestDo_RecordsMetrics(t *testing.T) {
	t.Parallel()
	srv, _ := newCaptureServer(t, http.StatusNotFound, `{}`)
	m := NewMetrics()
	c := New(srv.URL, WithMetrics(m))

	for _, id := range []string{"1", "22", "333"} {
		_, err := c.Do(context.Background(), Request{Path: "/api/sales/" + id})
		require.NoError(t, err)
	}

	stats, err := m.Summary()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "/api/sales/{id}", stats[0].Route)
	assert.Equal(t, http.MethodGet, stats[0].Method)
	assert.Equal(t, 3, stats[0].Requests)
	assert.Equal(t, 0, stats[0].Errors)
}

func TestRoute(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/api/sales/plant/{id}", Route("/api/sales/plant/12?quantity=1"))
	assert.Equal(t, "/api/categories/{id}/{id}", Route("/api/categories/1/2"))
	assert.Equal(t, "/api/sales/page", Route("/api/sales/page"))
}

func TestResponse_Helpers(t *testing.T) {
	t.Parallel()
	resp := &Response{Method: "GET", Path: "/api/sales", Status: 200, Body: []byte(`[{"id":1}]`)}

	arr, err := resp.Array()
	require.NoError(t, err)
	assert.Len(t, arr, 1)

	_, err = resp.Object()
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))

	err = resp.ExpectStatus(201)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected status 201 but got 200")
	assert.NoError(t, resp.ExpectStatus(200, 201))

	html := &Response{Method: "GET", Path: "/", Status: 200, Body: []byte("<html></html>")}
	assert.False(t, html.IsJSON())
	_, err = html.Decoded()
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.Observe("GET", "/x", 200, time.Millisecond)
	stats, err := m.Summary()
	require.NoError(t, err)
	assert.Nil(t, stats)
}

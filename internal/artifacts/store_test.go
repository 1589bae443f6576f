package artifacts

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/config"
)

func TestSave_LocalOnly(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, nil)

	a, err := store.Save(context.Background(), "scn-1", "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, a.URL)
	assert.Equal(t, filepath.Join(dir, "scn-1", "notes.txt"), a.Path)

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSave_UploadsWhenConfigured(t *testing.T) {
	uploader := TestUploader(t, "artifacts-test")
	store := New(t.TempDir(), uploader)
	ctx := context.Background()

	a, err := store.SaveScreenshot(ctx, "scn-42", "sell form", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "sell_form.png", a.Name)
	assert.Equal(t, ContentTypePNG, a.ContentType)
	assert.True(t, strings.HasSuffix(a.URL, "/scn-42/sell_form.png"), a.URL)

	got, err := uploader.Get(ctx, "scn-42/sell_form.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got)

	_, err = uploader.Get(ctx, "scn-42/missing.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestSaveResponse_RedactsSecrets(t *testing.T) {
	store := New(t.TempDir(), nil)
	resp := &apiclient.Response{
		Method:   http.MethodPost,
		Path:     "/api/auth/login",
		Status:   http.StatusOK,
		Headers:  http.Header{"Content-Type": {"application/json"}, "Set-Cookie": {"session_id=abc"}},
		Body:     []byte(`{"token":"eyJhbGciOiJIUzI1NiJ9.e30.sig","role":"ROLE_ADMIN"}`),
		Duration: 25 * time.Millisecond,
	}

	a, err := store.SaveResponse(context.Background(), "scn-7", resp)
	require.NoError(t, err)
	assert.Equal(t, "last-response.json", a.Name)

	raw, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "eyJhbGciOiJIUzI1NiJ9")
	assert.NotContains(t, string(raw), "session_id=abc")

	var dump responseDump
	require.NoError(t, json.Unmarshal(raw, &dump))
	assert.Equal(t, 200, dump.Status)
	assert.EqualValues(t, 25, dump.DurationMS)
	assert.Contains(t, dump.Body, "ROLE_ADMIN")

	_, err = store.SaveResponse(context.Background(), "scn-7", nil)
	assert.Error(t, err)
}

func TestNewFromConfig_LocalWithoutBucket(t *testing.T) {
	cfg := &config.Config{ArtifactsDir: t.TempDir()}
	store, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, store.uploader)
	assert.Equal(t, cfg.ArtifactsDir, store.Dir())
}

func testSafeName_StaysInsideDirectory(t *rapid.T) {
	name := safeName(rapid.String().Draw(t, "name"))
	if name == "" || name == "." || name == ".." {
		t.Fatalf("unsafe name %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		t.Fatalf("name %q contains a path separator", name)
	}
}

func TestSafeName_StaysInsideDirectory(t *testing.T) {
	rapid.Check(t, testSafeName_StaysInsideDirectory)
}

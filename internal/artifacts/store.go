// Package artifacts keeps the evidence of failed scenarios: browser
// screenshots and the last captured API response. Files are written under a
// per-scenario directory and, when a bucket is configured, uploaded to S3 so
// the run report can link to them.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/logutil"
	"github.com/kuitang/nursery-suite/internal/obs"
)

const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"

	// maxDumpBody bounds the response body kept in a dump.
	maxDumpBody = 64 << 10
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Artifact is one saved file.
type Artifact struct {
	Name        string
	ContentType string
	Path        string // local file
	URL         string // object URL; empty when uploads are off
}

// Store writes artifacts to a local directory and optionally uploads them.
type Store struct {
	dir      string
	uploader *Uploader
}

// New creates a store rooted at dir. uploader may be nil.
func New(dir string, uploader *Uploader) *Store {
	return &Store{dir: dir, uploader: uploader}
}

// NewFromConfig creates a store from suite configuration, wiring S3 when a
// bucket is configured.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	if !cfg.ArtifactUploadEnabled() {
		return New(cfg.ArtifactsDir, nil), nil
	}
	uploader, err := NewUploader(ctx, UploaderConfig{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ArtifactsBucket,
		PublicURL:       cfg.ArtifactsPublicURL,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return nil, err
	}
	return New(cfg.ArtifactsDir, uploader), nil
}

// Dir returns the local root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data as <dir>/<scenarioID>/<name>. An upload failure is logged
// and leaves URL empty; the local file is still returned.
func (s *Store) Save(ctx context.Context, scenarioID, name, contentType string, data []byte) (Artifact, error) {
	scenarioDir := safeName(scenarioID)
	fileName := safeName(name)
	localDir := filepath.Join(s.dir, scenarioDir)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	localPath := filepath.Join(localDir, fileName)
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("failed to write artifact %s: %w", fileName, err)
	}

	a := Artifact{Name: fileName, ContentType: contentType, Path: localPath}
	logger := obs.From(ctx).With("pkg", "artifacts")
	if s.uploader != nil {
		url, err := s.uploader.Put(ctx, path.Join(scenarioDir, fileName), data, contentType)
		if err != nil {
			logger.Warn("artifact_upload_failed", "name", fileName, "error", err)
		} else {
			a.URL = url
		}
	}
	logger.Info("artifact_saved", "name", fileName, "path", localPath, "url", a.URL)
	return a, nil
}

// SaveScreenshot stores a PNG screenshot.
func (s *Store) SaveScreenshot(ctx context.Context, scenarioID, name string, png []byte) (Artifact, error) {
	if !strings.HasSuffix(name, ".png") {
		name += ".png"
	}
	return s.Save(ctx, scenarioID, name, ContentTypePNG, png)
}

type responseDump struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Status     int               `json:"status"`
	DurationMS int64             `json:"durationMs"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// SaveResponse dumps a captured API response with sensitive fields redacted.
func (s *Store) SaveResponse(ctx context.Context, scenarioID string, resp *apiclient.Response) (Artifact, error) {
	if resp == nil {
		return Artifact{}, fmt.Errorf("no response to save")
	}
	dump := responseDump{
		Method:     resp.Method,
		Path:       resp.Path,
		Status:     resp.Status,
		DurationMS: resp.Duration.Milliseconds(),
		Body:       logutil.FormatBodyForLog(resp.Headers.Get("Content-Type"), resp.Body, maxDumpBody),
	}
	if len(resp.Headers) > 0 {
		dump.Headers = make(map[string]string, len(resp.Headers))
		for k, v := range resp.Headers {
			if logutil.IsSensitiveLogField(k) {
				dump.Headers[k] = "[REDACTED]"
				continue
			}
			dump.Headers[k] = strings.Join(v, ", ")
		}
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to encode response dump: %w", err)
	}
	return s.Save(ctx, scenarioID, "last-response.json", ContentTypeJSON, data)
}

func safeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "unnamed"
	}
	return s
}

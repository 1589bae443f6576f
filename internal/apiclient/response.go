package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// Response is a captured HTTP exchange.
type Response struct {
	Method   string
	Path     string
	Status   int
	Headers  http.Header
	Body     []byte
	Duration time.Duration
}

// IsJSON reports whether the body parses as JSON.
func (r *Response) IsJSON() bool {
	return r != nil && len(r.Body) > 0 && json.Valid(r.Body)
}

// JSON decodes the body into v. A body that is not JSON is an assertion
// failure carrying the raw body.
func (r *Response) JSON(v any) error {
	if r == nil {
		return errs.New(errs.Setup, "no response captured")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &errs.Error{
			Code:    errs.Assertion,
			Message: fmt.Sprintf("%s %s: response body is not valid JSON", r.Method, r.Path),
			Status:  r.Status,
			Body:    r.Body,
			Err:     err,
		}
	}
	return nil
}

// Decoded returns the generic decoding of the body.
func (r *Response) Decoded() (any, error) {
	var v any
	if err := r.JSON(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Object decodes a JSON object body.
func (r *Response) Object() (map[string]any, error) {
	v, err := r.Decoded()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, r.Unexpected("expected a JSON object")
	}
	return obj, nil
}

// Array decodes a JSON array body.
func (r *Response) Array() ([]any, error) {
	v, err := r.Decoded()
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, r.Unexpected("expected a JSON array")
	}
	return arr, nil
}

// Unexpected builds an assertion failure that quotes this response.
func (r *Response) Unexpected(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if r == nil {
		return errs.New(errs.Assertion, msg)
	}
	return errs.WithResponse(errs.Assertion, fmt.Sprintf("%s %s: %s", r.Method, r.Path, msg), r.Status, r.Body)
}

// ExpectStatus fails unless the response status is one of want.
func (r *Response) ExpectStatus(want ...int) error {
	if r == nil {
		return errs.New(errs.Setup, "no response captured")
	}
	for _, w := range want {
		if r.Status == w {
			return nil
		}
	}
	parts := make([]string, len(want))
	for i, w := range want {
		parts[i] = fmt.Sprint(w)
	}
	return r.Unexpected("expected status %s but got %d", strings.Join(parts, " or "), r.Status)
}

// String renders a short description for logs and artifacts.
func (r *Response) String() string {
	if r == nil {
		return "<no response>"
	}
	return fmt.Sprintf("%s %s -> %d (%s)", r.Method, r.Path, r.Status, r.Duration.Round(time.Millisecond))
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	Configuration,
	AuthenticationSetup,
	Setup,
	Assertion,
	InvalidArgument,
	Unauthenticated,
	PermissionDenied,
	NotFound,
	FailedPrecondition,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOf_SurvivesWrapping(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := fmt.Errorf("outer: %w", Wrap(code, message, cause))
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its cause")
	}
}

func TestCodeOf_SurvivesWrapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_SurvivesWrapping)
}

func TestCodeOf_UntypedDefaultsToInternal(t *testing.T) {
	t.Parallel()
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("CodeOf(untyped) = %q, want %q", got, Internal)
	}
	if got := MessageOf(errors.New("dial tcp 10.0.0.1: refused")); got != "internal error" {
		t.Fatalf("MessageOf(untyped) = %q", got)
	}
}

func TestWithResponse_IncludesStatusAndBody(t *testing.T) {
	t.Parallel()
	err := WithResponse(AuthenticationSetup, "login failed", http.StatusUnauthorized, []byte(`{"message":"bad credentials"}`))

	msg := err.Error()
	if !strings.Contains(msg, "status 401") {
		t.Fatalf("message missing status: %s", msg)
	}
	if !strings.Contains(msg, "bad credentials") {
		t.Fatalf("message missing body: %s", msg)
	}

	var coded *Error
	if !errors.As(err, &coded) || coded.Status != http.StatusUnauthorized {
		t.Fatalf("expected coded error with status, got %#v", err)
	}
}

func TestWithResponse_TruncatesLargeBodies(t *testing.T) {
	t.Parallel()
	body := []byte(strings.Repeat("x", maxBodyInMessage*3))
	msg := WithResponse(Setup, "seed sale", http.StatusInternalServerError, body).Error()
	if !strings.HasSuffix(msg, "[truncated])") {
		t.Fatalf("expected truncation marker, got tail %q", msg[len(msg)-40:])
	}
}

func TestIsProductDefect_OnlyAssertions(t *testing.T) {
	t.Parallel()
	for _, code := range allCodes {
		err := New(code, "x")
		if got, want := IsProductDefect(err), code == Assertion; got != want {
			t.Errorf("IsProductDefect(%s) = %v, want %v", code, got, want)
		}
	}
	if IsProductDefect(nil) {
		t.Fatal("nil error is not a product defect")
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()
	cases := map[Code]int{
		InvalidArgument:    http.StatusBadRequest,
		Unauthenticated:    http.StatusUnauthorized,
		PermissionDenied:   http.StatusForbidden,
		NotFound:           http.StatusNotFound,
		FailedPrecondition: http.StatusConflict,
		Unavailable:        http.StatusServiceUnavailable,
		Internal:           http.StatusInternalServerError,
		Setup:              http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}

package formatter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"http 429", errors.New("request failed: 429 Too Many Requests"), CodeRateLimit},
		{"grpc resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), CodeRateLimit},
		{"quota", errors.New("monthly quota exceeded"), CodeRateLimit},
		{"http 401", errors.New("401 Unauthorized"), CodeAuthentication},
		{"http 403", errors.New("403 Forbidden"), CodeAuthentication},
		{"permission denied", errors.New("PERMISSION_DENIED: key revoked"), CodeAuthentication},
		{"bad api key", errors.New("invalid API key provided"), CodeAuthentication},
		{"http 400", errors.New("400 Bad Request"), CodeInvalidRequest},
		{"http 500", errors.New("500 Internal Server Error"), CodeServer},
		{"http 503", errors.New("503 Service Unavailable"), CodeServer},
		{"overloaded", errors.New("model is overloaded"), CodeServer},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("call failed: %w", context.DeadlineExceeded), CodeTimeout},
		{"timeout text", errors.New("client timeout awaiting headers"), CodeTimeout},
		{"unclassified", errors.New("something odd happened"), CodeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Code != tc.code {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got.Code, tc.code)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	original := NewError(CodeInvalidRequest, errors.New("empty body"))
	wrapped := fmt.Errorf("format failed: %w", original)

	got := Classify(wrapped)
	if got.Code != CodeInvalidRequest {
		t.Fatalf("already-classified errors must pass through, got %s", got.Code)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestRetryable(t *testing.T) {
	retryable := []Code{CodeRateLimit, CodeServer, CodeTimeout, CodeUnknown}
	terminal := []Code{CodeAuthentication, CodeInvalidRequest, CodeNotFound, CodeEnqueueFailed}

	for _, code := range retryable {
		if !code.Retryable() {
			t.Errorf("%s should be retryable", code)
		}
	}
	for _, code := range terminal {
		if code.Retryable() {
			t.Errorf("%s should not be retryable", code)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewError(CodeServer, inner)

	if !errors.Is(err, inner) {
		t.Fatal("classified errors must unwrap to the cause")
	}
	if !strings.Contains(err.Error(), "SERVER_ERROR") {
		t.Fatalf("error string must carry the code: %q", err.Error())
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("a", 1000)
	out := Sanitize(long)

	if len(out) > maxErrorMessageLen+len("…") {
		t.Fatalf("message not capped: %d chars", len(out))
	}
	if !strings.HasSuffix(out, "…") {
		t.Fatal("capped messages must end with an ellipsis")
	}

	if Sanitize("  corto  ") != "corto" {
		t.Fatal("short messages are only trimmed")
	}
}

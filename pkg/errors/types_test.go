package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewAndError(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "duplicate profile name").
		WithContext("name", "authz-core")

	msg := err.Error()
	if !strings.Contains(msg, "[CONFIG_INVALID]") {
		t.Errorf("Error() = %q, want code prefix", msg)
	}
	if !strings.Contains(msg, "duplicate profile name") {
		t.Errorf("Error() = %q, want message", msg)
	}
	if !strings.Contains(msg, "authz-core") {
		t.Errorf("Error() = %q, want context value", msg)
	}
}

func TestWrapNil(t *testing.T) {
	if got := Wrap(nil, ErrCodeTooling, "whatever"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestUnwrap(t *testing.T) {
	root := errors.New("permission denied")
	err := Wrap(root, ErrCodeStateWrite, "writing run record")

	if !errors.Is(err, root) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestIsCode(t *testing.T) {
	tooling := New(ErrCodeTooling, "runner not found")
	wrapped := fmt.Errorf("running profile: %w", tooling)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"direct match", tooling, ErrCodeTooling, true},
		{"wrapped match", wrapped, ErrCodeTooling, true},
		{"code mismatch", tooling, ErrCodeCheckFailed, false},
		{"nil error", nil, ErrCodeTooling, false},
		{"plain error", errors.New("boom"), ErrCodeTooling, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrCodeGitDiff, "no merge base")); got != ErrCodeGitDiff {
		t.Errorf("CodeOf = %v, want %v", got, ErrCodeGitDiff)
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("CodeOf(plain) = %v, want %v", got, ErrCodeInternal)
	}
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeStateRead, "transient").WithRetryable(true)
	if !err.IsRetryable() {
		t.Error("expected retryable")
	}
}

package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/assurance/pkg/errors"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth_gateway_policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateGatewayPolicy(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode errors.ErrorCode
	}{
		{
			name:    "valid with version",
			content: "version: 2\nrules:\n  - allow: admins\n",
		},
		{
			name:    "valid with roles only",
			content: "roles:\n  admin: [\"*\"]\n",
		},
		{
			name:     "parse error",
			content:  "rules: [unclosed",
			wantCode: errors.ErrCodeCheckFailed,
		},
		{
			name:     "not a mapping",
			content:  "- just\n- a\n- list\n",
			wantCode: errors.ErrCodeCheckFailed,
		},
		{
			name:     "missing expected keys",
			content:  "something_else: true\n",
			wantCode: errors.ErrCodeCheckFailed,
		},
		{
			name:     "empty document",
			content:  "",
			wantCode: errors.ErrCodeCheckFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGatewayPolicy(writePolicy(t, tt.content))
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.IsCode(err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestValidateGatewayPolicyMissingFile(t *testing.T) {
	err := ValidateGatewayPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.IsCode(err, errors.ErrCodeTooling) {
		t.Errorf("missing file must be a tooling error, got %v", err)
	}
}

package profile

import (
	stderrors "errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/assurance/pkg/errors"
)

// gatewayPolicyKeys are the top-level keys a gateway policy document is
// expected to carry at least one of. Structural check only; the domain
// content of the policy is out of scope.
var gatewayPolicyKeys = []string{"version", "roles", "rules"}

// ValidateGatewayPolicy performs a syntax plus minimal structure check on
// an auth gateway policy YAML file.
//
// Error codes map onto exit classifications: a missing or unreadable file
// is TOOLING (exit 2), a file that parses but fails the structure check
// is CHECK_FAILED (exit 1).
func ValidateGatewayPolicy(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return errors.New(errors.ErrCodeTooling, "policy file not found").
				WithContext("path", path)
		}
		return errors.Wrap(err, errors.ErrCodeTooling, "reading policy file").
			WithContext("path", path)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckFailed, "policy YAML parse error").
			WithContext("path", path)
	}
	if doc == nil {
		return errors.New(errors.ErrCodeCheckFailed, "policy must be a YAML mapping").
			WithContext("path", path)
	}

	for _, key := range gatewayPolicyKeys {
		if _, ok := doc[key]; ok {
			return nil
		}
	}
	return errors.New(errors.ErrCodeCheckFailed, "policy missing expected keys").
		WithContext("path", path).
		WithContext("expected_one_of", gatewayPolicyKeys)
}

package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/assurance/pkg/fingerprint"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
)

func testRegistry() *profile.Registry {
	return &profile.Registry{
		Policy: &profile.SecurityPolicy{
			Categories: []profile.CategoryRule{
				{Category: profile.CategorySecret, Patterns: []string{"secrets/**", "**/.env"}},
				{Category: profile.CategoryPolicyFile, Patterns: []string{"config/auth_gateway_policy.yaml"}, Profile: "authn-gateway"},
				{Category: profile.CategoryProtectedSurface, Patterns: []string{"kamiwaza/services/authz/**"}, Profile: "authz-core"},
			},
			Bash: profile.BashPolicy{
				Blocked: []profile.CommandRule{
					{Pattern: "rm -rf /*", Reason: "destructive"},
				},
				Confirm: []profile.CommandRule{
					{Pattern: "git push*", Reason: "publishes work"},
				},
			},
		},
	}
}

func newTestGate(t *testing.T, changed []string) (*Gate, *runstate.Store) {
	t.Helper()
	store, err := runstate.NewStore(t.TempDir())
	require.NoError(t, err)
	g := New(testRegistry(), store, "/repo", func() []string { return changed })
	return g, store
}

func passRecord(profileName string, changed []string) runstate.Record {
	return runstate.Record{
		Profile:        profileName,
		RunID:          "01J0GATETEST",
		Fingerprint:    fingerprint.Fingerprint(changed),
		Timestamp:      time.Now(),
		Classification: runstate.ClassPass,
		EvidenceDir:    "/tmp/evidence",
	}
}

func TestOrdinaryPathAllowed(t *testing.T) {
	g, _ := newTestGate(t, nil)
	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "README.md"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
	assert.Equal(t, profile.CategoryOrdinary, dec.Category)
}

func TestSecretAlwaysDenied(t *testing.T) {
	changed := []string{"secrets/prod.pem"}
	g, store := newTestGate(t, changed)

	// Even fresh passing evidence for every profile does not authorize
	// touching secret material.
	require.NoError(t, store.Put(passRecord("authz-core", changed)))
	require.NoError(t, store.Put(passRecord("authn-gateway", changed)))

	for _, tool := range []string{ToolEdit, ToolWrite, ToolRead} {
		dec := g.Evaluate(Request{Tool: tool, Path: "secrets/prod.pem"})
		assert.Equal(t, VerdictDeny, dec.Verdict, "tool %s", tool)
		assert.Equal(t, profile.CategorySecret, dec.Category)
	}
}

func TestPolicyFileDeniedWithoutEvidence(t *testing.T) {
	g, _ := newTestGate(t, []string{"config/auth_gateway_policy.yaml"})
	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "config/auth_gateway_policy.yaml"})
	assert.Equal(t, VerdictDeny, dec.Verdict)
	assert.Equal(t, profile.CategoryPolicyFile, dec.Category)
	assert.Equal(t, "authn-gateway", dec.Profile)
}

func TestProtectedSurfaceAsksWithoutEvidence(t *testing.T) {
	g, _ := newTestGate(t, []string{"kamiwaza/services/authz/guard.py"})
	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "kamiwaza/services/authz/guard.py"})
	assert.Equal(t, VerdictAsk, dec.Verdict)
	assert.Equal(t, profile.CategoryProtectedSurface, dec.Category)
}

func TestFreshPassingEvidenceAllows(t *testing.T) {
	changed := []string{"kamiwaza/services/authz/guard.py"}
	g, store := newTestGate(t, changed)
	require.NoError(t, store.Put(passRecord("authz-core", changed)))

	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "kamiwaza/services/authz/guard.py"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
	require.NotNil(t, dec.Record)
	assert.Equal(t, "01J0GATETEST", dec.Record.RunID)
}

func TestStaleEvidenceFallsBackPerCategory(t *testing.T) {
	// Evidence was produced before the policy file joined the changed set.
	old := []string{"kamiwaza/services/authz/guard.py"}
	current := append(old, "config/auth_gateway_policy.yaml")
	g, store := newTestGate(t, current)
	require.NoError(t, store.Put(passRecord("authz-core", old)))
	require.NoError(t, store.Put(passRecord("authn-gateway", old)))

	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "config/auth_gateway_policy.yaml"})
	assert.Equal(t, VerdictDeny, dec.Verdict)

	dec = g.Evaluate(Request{Tool: ToolEdit, Path: "kamiwaza/services/authz/guard.py"})
	assert.Equal(t, VerdictAsk, dec.Verdict)
}

func TestFailingEvidenceTreatedAsAbsent(t *testing.T) {
	changed := []string{"kamiwaza/services/authz/guard.py"}
	g, store := newTestGate(t, changed)

	rec := passRecord("authz-core", changed)
	rec.Classification = runstate.ClassFail
	require.NoError(t, store.Put(rec))

	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "kamiwaza/services/authz/guard.py"})
	assert.Equal(t, VerdictAsk, dec.Verdict)
}

func TestReadOfProtectedSurfaceAllowed(t *testing.T) {
	g, _ := newTestGate(t, nil)
	dec := g.Evaluate(Request{Tool: ToolRead, Path: "kamiwaza/services/authz/guard.py"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
}

func TestPathOutsideRepositoryAllowed(t *testing.T) {
	g, _ := newTestGate(t, nil)

	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "/etc/hosts"})
	assert.Equal(t, VerdictAllow, dec.Verdict)

	dec = g.Evaluate(Request{Tool: ToolEdit, Path: "../outside/secrets/prod.pem"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
}

func TestAbsolutePathInsideRepositoryClassified(t *testing.T) {
	g, _ := newTestGate(t, nil)
	dec := g.Evaluate(Request{Tool: ToolEdit, Path: "/repo/secrets/prod.pem"})
	assert.Equal(t, VerdictDeny, dec.Verdict)
}

func TestBashBlockedAndConfirm(t *testing.T) {
	g, _ := newTestGate(t, nil)

	dec := g.Evaluate(Request{Tool: ToolBash, Command: "rm -rf /tmp/x"})
	assert.Equal(t, VerdictDeny, dec.Verdict)
	assert.Equal(t, "destructive", dec.Reason)

	dec = g.Evaluate(Request{Tool: ToolBash, Command: "git push origin main"})
	assert.Equal(t, VerdictAsk, dec.Verdict)

	dec = g.Evaluate(Request{Tool: ToolBash, Command: "ls -la"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
}

func TestUnknownToolPassesThrough(t *testing.T) {
	g, _ := newTestGate(t, nil)
	dec := g.Evaluate(Request{Tool: "Glob", Path: "secrets/prod.pem"})
	assert.Equal(t, VerdictAllow, dec.Verdict)
}

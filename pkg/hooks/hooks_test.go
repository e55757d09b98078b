package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/assurance/pkg/config"
	"github.com/odvcencio/assurance/pkg/gate"
	"github.com/odvcencio/assurance/pkg/orchestrator"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
)

func testGate(t *testing.T) *gate.Gate {
	t.Helper()
	store, err := runstate.NewStore(t.TempDir())
	require.NoError(t, err)
	registry := &profile.Registry{
		Policy: &profile.SecurityPolicy{
			Categories: []profile.CategoryRule{
				{Category: profile.CategorySecret, Patterns: []string{"secrets/**"}},
			},
		},
	}
	return gate.New(registry, store, "/repo", func() []string { return nil })
}

func decodePreToolUse(t *testing.T, buf *bytes.Buffer) PreToolUseOutput {
	t.Helper()
	var out PreToolUseOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestPreToolUseDeniesSecret(t *testing.T) {
	in := `{"session_id":"s1","tool_name":"Edit","tool_input":{"file_path":"secrets/prod.pem"}}`
	var buf bytes.Buffer
	opts := config.Options{Enabled: true}

	require.NoError(t, HandlePreToolUse(strings.NewReader(in), &buf, opts, testGate(t)))

	out := decodePreToolUse(t, &buf)
	assert.Equal(t, "PreToolUse", out.HookSpecificOutput.HookEventName)
	assert.Equal(t, "deny", out.HookSpecificOutput.PermissionDecision)
	assert.NotEmpty(t, out.HookSpecificOutput.PermissionDecisionReason)
	assert.True(t, out.SuppressOutput)
}

func TestPreToolUseAlwaysSuppressesTranscriptOutput(t *testing.T) {
	inputs := []string{
		`{"session_id":"s1","tool_name":"Edit","tool_input":{"file_path":"README.md"}}`,
		`{"session_id":"s1","tool_name":"Edit","tool_input":{"file_path":"secrets/prod.pem"}}`,
		`not json`,
	}
	for _, in := range inputs {
		var buf bytes.Buffer
		require.NoError(t, HandlePreToolUse(strings.NewReader(in), &buf, config.Options{Enabled: true}, testGate(t)))

		// Decode raw so a dropped field cannot hide behind the struct zero value.
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
		require.Contains(t, raw, "suppressOutput")
		assert.Equal(t, "true", string(raw["suppressOutput"]))
	}
}

func TestPreToolUseAllowsWhenDisabled(t *testing.T) {
	in := `{"session_id":"s1","tool_name":"Edit","tool_input":{"file_path":"secrets/prod.pem"}}`
	var buf bytes.Buffer

	require.NoError(t, HandlePreToolUse(strings.NewReader(in), &buf, config.Options{Enabled: false}, testGate(t)))
	assert.Equal(t, "allow", decodePreToolUse(t, &buf).HookSpecificOutput.PermissionDecision)
}

func TestPreToolUseMalformedInputAllows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HandlePreToolUse(strings.NewReader("not json"), &buf, config.Options{Enabled: true}, testGate(t)))
	assert.Equal(t, "allow", decodePreToolUse(t, &buf).HookSpecificOutput.PermissionDecision)
}

func testOrchestrator(t *testing.T, class runstate.Classification) *orchestrator.Orchestrator {
	t.Helper()
	store, err := runstate.NewStore(t.TempDir())
	require.NoError(t, err)
	set, err := profile.NewProfileSet("origin/develop", []profile.Profile{
		{Name: "authz-core", Triggers: []string{"kamiwaza/services/authz/**"}, AutoSelect: true,
			Checks: []profile.CheckSpec{{Name: "unit", Command: "true"}}},
	})
	require.NoError(t, err)
	registry := &profile.Registry{Profiles: set, Policy: &profile.SecurityPolicy{}}
	opts := config.Options{Enabled: true, AutoRun: true, BaseBranch: "origin/develop", DebounceSeconds: 300}
	return orchestrator.New(opts, registry, store, stubRunner{class: class},
		func() []string { return []string{"kamiwaza/services/authz/guard.py"} })
}

type stubRunner struct {
	class runstate.Classification
}

func (s stubRunner) Run(_ context.Context, prof profile.Profile, baseBranch, fp string) (*runstate.Record, error) {
	return &runstate.Record{
		Profile:        prof.Name,
		Fingerprint:    fp,
		Classification: s.class,
		EvidenceDir:    "/tmp/evidence/" + prof.Name,
		BaseBranch:     baseBranch,
	}, nil
}

func TestStopQuietOnPass(t *testing.T) {
	var buf bytes.Buffer
	in := `{"session_id":"s1","stop_hook_active":false}`
	require.NoError(t, HandleStop(context.Background(), strings.NewReader(in), &buf, testOrchestrator(t, runstate.ClassPass)))

	var out StopOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Empty(t, out.Decision)
	assert.Empty(t, out.Reason)
}

func TestStopBlocksOnFailure(t *testing.T) {
	var buf bytes.Buffer
	in := `{"session_id":"s1","stop_hook_active":false}`
	require.NoError(t, HandleStop(context.Background(), strings.NewReader(in), &buf, testOrchestrator(t, runstate.ClassFail)))

	var out StopOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "block", out.Decision)
	assert.Contains(t, out.Reason, "authz-core")
}

func TestStopReentrantTurnStaysQuiet(t *testing.T) {
	var buf bytes.Buffer
	in := `{"session_id":"s1","stop_hook_active":true}`
	require.NoError(t, HandleStop(context.Background(), strings.NewReader(in), &buf, testOrchestrator(t, runstate.ClassFail)))

	var out StopOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Empty(t, out.Decision)
}

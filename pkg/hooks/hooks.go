// Package hooks adapts the host tool's hook protocol onto the gate and
// the orchestrator. The host speaks JSON over stdin/stdout; everything
// here is translation, no policy. A malformed request resolves to the
// least surprising safe answer rather than an error, because a hook that
// crashes is a hook the host silently stops calling.
package hooks

import (
	"context"
	"encoding/json"
	"io"

	"github.com/odvcencio/assurance/pkg/config"
	"github.com/odvcencio/assurance/pkg/gate"
	"github.com/odvcencio/assurance/pkg/orchestrator"
)

// PreToolUseInput is the host's request before a tool call.
type PreToolUseInput struct {
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name"`
	ToolInput ToolInput `json:"tool_input"`
}

// ToolInput carries the tool arguments the gate cares about.
type ToolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
}

// PreToolUseOutput is the host's expected response shape. SuppressOutput
// keeps the decision JSON out of the transcript; the reason still reaches
// the host through the decision itself.
type PreToolUseOutput struct {
	SuppressOutput     bool               `json:"suppressOutput"`
	HookSpecificOutput HookSpecificOutput `json:"hookSpecificOutput"`
}

// HookSpecificOutput carries the permission decision.
type HookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// StopInput is the host's end-of-turn notification.
type StopInput struct {
	SessionID      string `json:"session_id"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// StopOutput blocks the turn from ending when verification failed.
type StopOutput struct {
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// HandlePreToolUse reads one gate request from r and writes the verdict
// to w. With the kill switch off every request is allowed through.
func HandlePreToolUse(r io.Reader, w io.Writer, opts config.Options, g *gate.Gate) error {
	var in PreToolUseInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return writePreToolUse(w, "allow", "unparseable hook input, not gated")
	}
	if !opts.Enabled {
		return writePreToolUse(w, "allow", "authorization gating disabled")
	}

	dec := g.Evaluate(gate.Request{
		Tool:      in.ToolName,
		Path:      in.ToolInput.FilePath,
		Command:   in.ToolInput.Command,
		SessionID: in.SessionID,
	})
	return writePreToolUse(w, string(dec.Verdict), dec.Reason)
}

// WriteAsk emits a standalone "ask" decision. Used when the gate cannot
// be constructed at all but the installation is active, so edits get
// friction instead of a silent bypass.
func WriteAsk(w io.Writer, reason string) error {
	return writePreToolUse(w, "ask", reason)
}

// WriteQuietStop emits the empty response that lets the host's turn end
// undisturbed.
func WriteQuietStop(w io.Writer) error {
	return json.NewEncoder(w).Encode(StopOutput{})
}

func writePreToolUse(w io.Writer, decision, reason string) error {
	return json.NewEncoder(w).Encode(PreToolUseOutput{
		SuppressOutput: true,
		HookSpecificOutput: HookSpecificOutput{
			HookEventName:            "PreToolUse",
			PermissionDecision:       decision,
			PermissionDecisionReason: reason,
		},
	})
}

// HandleStop reads one end-of-turn notification from r, lets the
// orchestrator run due profiles, and blocks the turn only when a
// verification failed. A clean turn writes an empty object so the host
// proceeds without noise.
func HandleStop(ctx context.Context, r io.Reader, w io.Writer, o *orchestrator.Orchestrator) error {
	var in StopInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return json.NewEncoder(w).Encode(StopOutput{})
	}

	res := o.HandleTurnEnd(ctx, orchestrator.TurnEvent{
		SessionID:      in.SessionID,
		StopHookActive: in.StopHookActive,
	})

	out := StopOutput{}
	if summary := res.FailureSummary(); summary != "" {
		out.Decision = "block"
		out.Reason = summary
	}
	return json.NewEncoder(w).Encode(out)
}

// Command assurance gates edits to authorization-critical code behind
// fresh verification evidence. It is wired into a host tool twice: as a
// PreToolUse hook (the edit gate) and as a Stop hook (the turn-boundary
// orchestrator), and exposes the same operations as plain subcommands
// for humans and CI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/odvcencio/assurance/pkg/audit"
	"github.com/odvcencio/assurance/pkg/config"
	"github.com/odvcencio/assurance/pkg/errors"
	"github.com/odvcencio/assurance/pkg/fingerprint"
	"github.com/odvcencio/assurance/pkg/gate"
	"github.com/odvcencio/assurance/pkg/gitdiff"
	"github.com/odvcencio/assurance/pkg/hooks"
	"github.com/odvcencio/assurance/pkg/logging"
	"github.com/odvcencio/assurance/pkg/orchestrator"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runner"
	"github.com/odvcencio/assurance/pkg/runstate"
	"github.com/odvcencio/assurance/pkg/statusserver"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	handled, code := dispatchSubcommand(os.Args[1:])
	if !handled {
		printHelp()
		code = 1
	}
	os.Exit(code)
}

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "select":
		return true, runCommand(runSelectCommand, args[1:])
	case "run":
		return true, runCommand(runRunCommand, args[1:])
	case "validate-policy":
		return true, runCommand(runValidatePolicyCommand, args[1:])
	case "gate":
		return true, runCommand(runGateCommand, args[1:])
	case "turn-end":
		return true, runCommand(runTurnEndCommand, args[1:])
	case "serve":
		return true, runCommand(runServeCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'assurance --help' for usage.")
		return true, 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		if err.Error() != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitCodeForError(err)
	}
	return 0
}

// environment bundles everything a subcommand needs. Construction is
// best-effort for diagnostics (a broken log dir never stops a run) and
// strict for config (a broken registry is a ConfigError).
type environment struct {
	opts     config.Options
	registry *profile.Registry
	store    *runstate.Store
	history  *runstate.History
	logger   *logging.Logger
	trail    *audit.Trail
	diff     func() []string
}

func loadEnvironment() (*environment, error) {
	opts := config.FromEnv()

	logger, err := logging.NewLogger(opts.LogDir)
	if err != nil {
		logger = nil
	}

	registry, err := profile.LoadRegistry(opts.ConfigDir)
	if err != nil {
		return nil, withExitCode(err, 2)
	}
	if registry.Profiles.BaseBranch != "" && os.Getenv(config.EnvBaseBranch) == "" {
		opts.BaseBranch = registry.Profiles.BaseBranch
	}

	var storeOpts []runstate.Option
	if logger != nil {
		storeOpts = append(storeOpts, runstate.WithLogger(logger))
	}
	history, err := runstate.OpenHistory(filepath.Join(opts.StateDir, "history.db"))
	if err == nil {
		storeOpts = append(storeOpts, runstate.WithHistory(history))
	} else {
		history = nil
	}

	store, err := runstate.NewStore(opts.StateDir, storeOpts...)
	if err != nil {
		return nil, withExitCode(err, 2)
	}

	return &environment{
		opts:     opts,
		registry: registry,
		store:    store,
		history:  history,
		logger:   logger,
		trail:    audit.NewTrail(opts.AuditDir),
		diff:     gitdiff.Provider(opts.RepoRoot, opts.BaseBranch),
	}, nil
}

func (e *environment) close() {
	if e.history != nil {
		e.history.Close()
	}
	if e.logger != nil {
		e.logger.Close()
	}
}

func (e *environment) newGate() *gate.Gate {
	return gate.New(e.registry, e.store, e.opts.RepoRoot, e.diff,
		gate.WithLogger(e.logger), gate.WithAuditTrail(e.trail))
}

func (e *environment) newRunner() *runner.Runner {
	return runner.New(e.store, e.opts.EvidenceDir, e.opts.RepoRoot, runner.WithLogger(e.logger))
}

func (e *environment) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(e.opts, e.registry, e.store, e.newRunner(), e.diff,
		orchestrator.WithLogger(e.logger), orchestrator.WithAuditTrail(e.trail))
}

// runSelectCommand prints the profiles responsible for the changed-file
// set, one per line. Paths may be given as arguments; otherwise the live
// diff against the base branch is used.
func runSelectCommand(args []string) error {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	manual := fs.Bool("manual", false, "include profiles with auto_select disabled")
	base := fs.String("base", "", "override the base branch for the diff")
	asJSON := fs.Bool("json", false, "emit a JSON document instead of one name per line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	if *base != "" {
		env.diff = gitdiff.Provider(env.opts.RepoRoot, *base)
	}

	changed := fs.Args()
	if len(changed) == 0 {
		changed = env.diff()
	}
	selected := env.registry.Profiles.Select(changed, *manual)

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"changed":     changed,
			"fingerprint": fingerprint.Fingerprint(changed),
			"profiles":    selected,
		})
	}
	for _, name := range selected {
		fmt.Println(name)
	}
	return nil
}

// runRunCommand executes one profile (or "all") and exits with the
// classification's code: 0 PASS, 1 FAIL, 2 TOOLING_ERROR.
func runRunCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	base := fs.String("base", "", "override the base branch for the diff fingerprint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: assurance run [--base REF] PROFILE")
	}
	name := fs.Arg(0)

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	if *base != "" {
		env.opts.BaseBranch = *base
		env.diff = gitdiff.Provider(env.opts.RepoRoot, *base)
	}

	var profiles []profile.Profile
	if name == profile.AllProfiles {
		for _, p := range env.registry.Profiles.Profiles {
			if p.Name == profile.AllProfiles {
				continue
			}
			profiles = append(profiles, p)
		}
	} else {
		p := env.registry.Profiles.Get(name)
		if p == nil {
			return withExitCode(fmt.Errorf("unknown profile %q", name), 2)
		}
		profiles = []profile.Profile{*p}
	}

	fp := fingerprint.Fingerprint(env.diff())
	r := env.newRunner()
	worst := runstate.ClassPass
	for _, p := range profiles {
		rec, err := r.Run(context.Background(), p, env.opts.BaseBranch, fp)
		if err != nil {
			return withExitCode(err, 2)
		}
		fmt.Printf("%s: %s (%s)\n", p.Name, rec.Classification, rec.EvidenceDir)
		if rec.Classification.ExitCode() > worst.ExitCode() {
			worst = rec.Classification
		}
	}
	return withClassification(worst)
}

// runValidatePolicyCommand checks the structural shape of a gateway
// policy document. Exit 0 valid, 1 invalid, 2 unreadable.
func runValidatePolicyCommand(args []string) error {
	fs := flag.NewFlagSet("validate-policy", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: assurance validate-policy PATH")
	}

	if err := profile.ValidateGatewayPolicy(fs.Arg(0)); err != nil {
		if errors.IsCode(err, errors.ErrCodeTooling) {
			return withExitCode(err, 2)
		}
		return withExitCode(err, 1)
	}
	fmt.Println("ok")
	return nil
}

// runGateCommand is the PreToolUse hook entry: one JSON request on
// stdin, one permission decision on stdout. It never fails the hook
// itself; anything unjudgeable resolves to a decision.
func runGateCommand(args []string) error {
	opts := config.FromEnv()
	if !opts.Enabled || !profile.Installed(opts.ConfigDir) {
		return hooks.HandlePreToolUse(os.Stdin, os.Stdout, config.Options{}, nil)
	}

	env, err := loadEnvironment()
	if err != nil {
		// Broken policy config on an active installation fails closed:
		// the operator gets friction, not a silent bypass.
		return hooks.WriteAsk(os.Stdout, "authorization policy unreadable: "+err.Error())
	}
	defer env.close()

	return hooks.HandlePreToolUse(os.Stdin, os.Stdout, env.opts, env.newGate())
}

// runTurnEndCommand is the Stop hook entry: runs due profiles and blocks
// the turn only when verification failed.
func runTurnEndCommand(args []string) error {
	opts := config.FromEnv()
	if !opts.Enabled || !opts.AutoRun || !profile.Installed(opts.ConfigDir) {
		return hooks.WriteQuietStop(os.Stdout)
	}

	env, err := loadEnvironment()
	if err != nil {
		// A broken config cannot run checks; stay quiet rather than
		// trapping the host in a block loop it cannot fix.
		return hooks.WriteQuietStop(os.Stdout)
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return hooks.HandleStop(ctx, os.Stdin, os.Stdout, env.newOrchestrator())
}

// runServeCommand serves the local status API until interrupted.
func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:7377", "listen address for the status API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	srv := statusserver.New(env.registry, env.store,
		statusserver.WithLogger(env.logger), statusserver.WithHistory(env.history))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("status API listening on %s\n", *addr)
	return srv.Serve(ctx, *addr)
}

func printVersion() {
	fmt.Printf("assurance %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printHelp() {
	fmt.Print(`assurance - evidence-gated edit authorization

Usage:
  assurance select [--manual] [--json] [--base REF] [PATH...]
                                          print profiles responsible for changed paths
  assurance run [--base REF] PROFILE      run a profile's checks (PROFILE may be "all")
  assurance validate-policy PATH          structurally validate a gateway policy file
  assurance gate                          PreToolUse hook: JSON request on stdin
  assurance turn-end                      Stop hook: run due profiles at turn boundary
  assurance serve [--addr ADDR]           serve the local status API and metrics
  assurance version                       print version information

Exit codes for run: 0 PASS, 1 FAIL, 2 TOOLING_ERROR.

Environment:
  ASSURANCE_ENABLED      master kill switch (default off)
  ASSURANCE_AUTORUN      run due profiles at turn boundaries (default off)
  ASSURANCE_BASE_BRANCH  diff base reference (default origin/develop)
  ASSURANCE_DEBOUNCE_S   auto-rerun debounce in seconds (default 300)
`)
}

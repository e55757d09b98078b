package main

import (
	"errors"

	"github.com/odvcencio/assurance/pkg/runstate"
)

// statusError pairs an error with the process exit status. The contract
// for run-style subcommands is 0 PASS, 1 FAIL, 2 TOOLING_ERROR; anything
// uncoded exits 1.
type statusError struct {
	code int
	err  error
}

func (e statusError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e statusError) Unwrap() error {
	return e.err
}

func (e statusError) ExitCode() int {
	if e.code == 0 {
		return 1
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return statusError{code: code, err: err}
}

// withClassification maps a run's overall classification onto the exit
// status. PASS is nil; FAIL and TOOLING_ERROR become silent coded errors
// (the per-profile lines were already printed) so the dispatcher exits
// with 1 or 2 without an extra message.
func withClassification(class runstate.Classification) error {
	if class == runstate.ClassPass {
		return nil
	}
	return statusError{code: class.ExitCode()}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}

// Package cli wires the forge root command and the shared exit-code
// convention every subcommand reports through, grounded on the teacher's
// internal/commands/shared/exit_codes.go: an ExitError carrying a sysexits
// style code, unwrapped one level to print the underlying cause.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/tombee/forge/pkg/ferrors"
)

// Exit codes for the forge CLI.
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidArgument = 2
	ExitNotFound        = 3
	ExitBlocked         = 4
)

// ExitError is an error that carries a process exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Cause }

// Wrap classifies err into an ExitError using the ferrors taxonomy, so every
// command reports a consistent code without re-deriving the mapping.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	code := ExitExecutionFailed
	switch {
	case ferrors.IsNotFound(err):
		code = ExitNotFound
	case isKind[*ferrors.InvalidArgumentError](err):
		code = ExitInvalidArgument
	case isKind[*ferrors.RiskyActionBlockedError](err), isKind[*ferrors.RevivePolicyBlockedError](err):
		code = ExitBlocked
	}
	return &ExitError{Code: code, Message: message, Cause: err}
}

func isKind[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// HandleExitError prints err (if any) and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitExecutionFailed)
}

package cmd

import "errors"

// exitCodeError tags an error with the specific spec §6 exit code a
// subcommand wants on failure, instead of the generic 1 cobra would use.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

func exitCodeFor(err error) (int, bool) {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code, true
	}
	return 0, false
}

// Exit codes from spec §6.
const (
	exitOK           = 0
	exitConfigError  = 2
	exitFatalTool    = 3
	exitPolicyDenial = 4
)

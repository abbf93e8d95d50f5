package nodebox

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyIdentifier     = errors.New("identifier must not be empty")
	ErrNotTermux           = errors.New("not running inside Termux")
	ErrCLIUnavailable      = errors.New("vendor CLI is not usable")
	ErrNoSpellingSucceeded = errors.New("no command spelling succeeded")
	ErrDistroUnavailable   = errors.New("proot-distro is not ready")
	ErrNotRunning          = errors.New("worker is not running")
	ErrAlreadyRunning      = errors.New("worker is already running")
	ErrConfigNotFound      = errors.New("config file not found")
)

// CommandError is returned when a shell command exits non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Signaled bool
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(redactSecrets(e.Output))
	const maxOut = 2000
	if len(msg) > maxOut {
		msg = "...(truncated)\n" + msg[len(msg)-maxOut:]
	}
	if msg == "" {
		return fmt.Sprintf("command failed (exit=%d): %s", e.ExitCode, e.Command)
	}
	return fmt.Sprintf("command failed (exit=%d): %s: %s", e.ExitCode, e.Command, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// exitCodeOf returns the exit code carried by err, 0 for nil and -1 when
// err is not a CommandError.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

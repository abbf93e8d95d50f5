package nodebox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ExecCommandFunc creates the *exec.Cmd for a program. Tests swap it for a
// helper-process variant.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Result is what a finished command left behind.
type Result struct {
	ExitCode int
	Signaled bool
	Output   string
}

type Shell struct {
	Timeout time.Duration // zero means no timeout beyond the caller's ctx
	Dir     string
	Env     []string // extra KEY=VALUE pairs on top of os.Environ()
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *log.Logger

	execCommand ExecCommandFunc
	lookPath    func(string) (string, error)
}

// NewShell returns a Shell attached to the process stdio.
func NewShell(logger *log.Logger) *Shell {
	return &Shell{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// WithTimeout returns a copy of s using timeout d.
func (s *Shell) WithTimeout(d time.Duration) *Shell {
	c := *s
	c.Timeout = d
	return &c
}

// WithEnv returns a copy of s with extra environment entries.
func (s *Shell) WithEnv(kv ...string) *Shell {
	c := *s
	c.Env = append(append([]string(nil), s.Env...), kv...)
	return &c
}

// LookPath resolves name on PATH.
func (s *Shell) LookPath(name string) (string, error) {
	if s.lookPath != nil {
		return s.lookPath(name)
	}
	if p := s.envPath(); p != "" {
		// Honour PATH edits carried in s.Env.
		for _, dir := range strings.Split(p, string(os.PathListSeparator)) {
			if dir == "" {
				continue
			}
			cand := dir + string(os.PathSeparator) + name
			if st, err := os.Stat(cand); err == nil && !st.IsDir() && st.Mode()&0o111 != 0 {
				return cand, nil
			}
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return exec.LookPath(name)
}

// Has reports whether name resolves on PATH.
func (s *Shell) Has(name string) bool {
	_, err := s.LookPath(name)
	return err == nil
}

func (s *Shell) envPath() string {
	for i := len(s.Env) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(s.Env[i], "PATH="); ok {
			return v
		}
	}
	return ""
}

func (s *Shell) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	mk := s.execCommand
	if mk == nil {
		mk = exec.CommandContext
	}
	c := mk(ctx, name, args...)
	if s.Dir != "" {
		c.Dir = s.Dir
	}
	if len(s.Env) > 0 {
		base := c.Env
		if base == nil {
			base = os.Environ()
		}
		c.Env = append(base, s.Env...)
	}
	return c
}

func (s *Shell) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

// Run executes script with sh -c, attached to the terminal. The tail of the
// combined output is also kept in the Result for substring inspection.
func (s *Shell) Run(ctx context.Context, script string) (Result, error) {
	return s.RunArgs(ctx, "sh", "-c", script)
}

// RunArgs is Run without a shell in between.
func (s *Shell) RunArgs(ctx context.Context, name string, args ...string) (Result, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	display := displayCommand(name, args)
	loggerOr(s.Logger).Info(">> " + display)

	tail := newTailBuffer(64 << 10)
	c := s.command(ctx, name, args...)
	c.Stdin = s.Stdin
	c.Stdout = teeWriter(s.Stdout, tail)
	c.Stderr = teeWriter(s.Stderr, tail)
	err := c.Run()
	return finish(display, tail.String(), err)
}

// Capture executes script with sh -c and returns its combined output.
func (s *Shell) Capture(ctx context.Context, script string) (string, error) {
	return s.CaptureArgs(ctx, "sh", "-c", script)
}

// CaptureArgs is Capture without a shell in between.
func (s *Shell) CaptureArgs(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	display := displayCommand(name, args)
	loggerOr(s.Logger).Debug(">> " + display)

	var out bytes.Buffer
	c := s.command(ctx, name, args...)
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	res, err := finish(display, out.String(), err)
	return res.Output, err
}

// Succeeds runs script quietly and reports whether it exited 0.
func (s *Shell) Succeeds(ctx context.Context, script string) bool {
	_, err := s.Capture(ctx, script)
	return err == nil
}

func finish(display, output string, err error) (Result, error) {
	res := Result{Output: output}
	if err == nil {
		return res, nil
	}
	res.ExitCode = -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signaled = true
			res.ExitCode = 128 + int(ws.Signal())
		}
	}
	return res, &CommandError{
		Command:  display,
		ExitCode: res.ExitCode,
		Signaled: res.Signaled,
		Output:   output,
		Err:      err,
	}
}

func displayCommand(name string, args []string) string {
	if name == "sh" && len(args) == 2 && args[0] == "-c" {
		return args[1]
	}
	return strings.Join(append([]string{name}, args...), " ")
}

func teeWriter(w io.Writer, tail io.Writer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(w, tail)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

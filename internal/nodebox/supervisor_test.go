package nodebox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return &Supervisor{
		RunDir:       t.TempDir(),
		Name:         "worker",
		Grace:        300 * time.Millisecond,
		StopTimeout:  2 * time.Second,
		pollInterval: 10 * time.Millisecond,
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	if st := sup.Status(); st.State != StateNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", st.State)
	}

	st, err := sup.Launch(ctx, []string{"sleep", "30"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(func() { _, _ = sup.Stop(context.Background()) })
	if st.State != StateRunning || st.PID <= 0 {
		t.Fatalf("expected RUNNING with pid, got %+v", st)
	}
	if got := sup.Status(); got.State != StateRunning || got.PID != st.PID {
		t.Fatalf("expected Status RUNNING pid %d, got %+v", st.PID, got)
	}
	if _, err := sup.Launch(ctx, []string{"sleep", "30"}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	stopped, err := sup.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.State != StateStopped {
		t.Fatalf("expected STOPPED, got %s", stopped.State)
	}
	if fileExists(sup.PIDPath()) {
		t.Fatalf("expected pid file to be removed")
	}
	if !fileExists(sup.LogPath()) {
		t.Fatalf("expected log file to be kept")
	}
	if got := sup.Status(); got.State != StateStopped {
		t.Fatalf("expected STOPPED after stop, got %s", got.State)
	}
	if _, err := sup.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSupervisorEarlyExit(t *testing.T) {
	t.Run("non-zero exit within grace => CRASHED with output", func(t *testing.T) {
		sup := newTestSupervisor(t)
		sup.Grace = 5 * time.Second
		st, err := sup.Launch(context.Background(), []string{"sh", "-c", "echo invalid node id; exit 3"})
		if st.State != StateCrashed {
			t.Fatalf("expected CRASHED, got %s", st.State)
		}
		var ce *CommandError
		if !errors.As(err, &ce) || ce.ExitCode != 3 {
			t.Fatalf("expected exit 3 CommandError, got %v", err)
		}
		if !strings.Contains(ce.Output, "invalid node id") {
			t.Fatalf("expected launch output in error, got %q", ce.Output)
		}
		if strings.Contains(ce.Output, "launching") {
			t.Fatalf("expected the log header to be excluded, got %q", ce.Output)
		}
		if got := sup.Status(); got.State != StateCrashed {
			t.Fatalf("expected CRASHED on the next status query, got %s", got.State)
		}
		if _, err := sup.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("expected ErrNotRunning, got %v", err)
		}
		if got := sup.Status(); got.State != StateStopped {
			t.Fatalf("expected STOPPED once the stale pid file is cleared, got %s", got.State)
		}
	})

	t.Run("zero exit within grace => STOPPED", func(t *testing.T) {
		sup := newTestSupervisor(t)
		sup.Grace = 5 * time.Second
		st, err := sup.Launch(context.Background(), []string{"true"})
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if st.State != StateStopped {
			t.Fatalf("expected STOPPED, got %s", st.State)
		}
		if fileExists(sup.PIDPath()) {
			t.Fatalf("expected pid file to be removed")
		}
	})

	t.Run("missing binary => error before start", func(t *testing.T) {
		sup := newTestSupervisor(t)
		st, err := sup.Launch(context.Background(), []string{"/nonexistent/nexus-network"})
		if err == nil || st.State != StateNotStarted {
			t.Fatalf("expected NOT_STARTED error, got %s %v", st.State, err)
		}
	})
}

func TestSupervisorStalePIDFile(t *testing.T) {
	sup := newTestSupervisor(t)

	c := exec.Command("true")
	if err := c.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	if err := os.MkdirAll(sup.RunDir, 0o755); err != nil {
		t.Fatalf("mkdirall: %v", err)
	}
	if err := writePIDFile(sup.PIDPath(), c.Process.Pid); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	if st := sup.Status(); st.State != StateCrashed {
		t.Fatalf("expected CRASHED for dead pid, got %s", st.State)
	}
	if _, err := sup.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if fileExists(sup.PIDPath()) {
		t.Fatalf("expected stale pid file to be removed")
	}

	writeFile(t, sup.PIDPath(), "not-a-pid\n")
	if st := sup.Status(); st.State != StateCrashed {
		t.Fatalf("expected CRASHED for garbage pid file, got %s", st.State)
	}
}

func TestSupervisorTail(t *testing.T) {
	sup := newTestSupervisor(t)
	if err := sup.Tail(&bytes.Buffer{}, 10); err == nil {
		t.Fatalf("expected error without log file")
	}
	writeFile(t, sup.LogPath(), "one\ntwo\nthree\nfour\n")

	var buf bytes.Buffer
	if err := sup.Tail(&buf, 2); err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if buf.String() != "three\nfour\n" {
		t.Fatalf("expected last two lines, got %q", buf.String())
	}
}

func TestSupervisorFollow(t *testing.T) {
	sup := newTestSupervisor(t)
	writeFile(t, sup.LogPath(), "old line\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		f, err := os.OpenFile(sup.LogPath(), os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("new line\n")
	}()

	var buf bytes.Buffer
	if err := sup.Follow(ctx, &buf); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if buf.String() != "new line\n" {
		t.Fatalf("expected only new output, got %q", buf.String())
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "a\nb\nc\n", n: 2, want: "b\nc\n"},
		{in: "a\nb", n: 5, want: "a\nb\n"},
		{in: "a\nb\n", n: 0, want: "a\nb\n"},
		{in: "\n\n", n: 3, want: ""},
	}
	for _, tc := range tests {
		if got := lastLines(tc.in, tc.n); got != tc.want {
			t.Fatalf("lastLines(%q, %d): expected %q, got %q", tc.in, tc.n, tc.want, got)
		}
	}
}

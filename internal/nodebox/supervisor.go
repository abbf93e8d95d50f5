package nodebox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// State is the lifecycle state of a detached worker.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateStarting   State = "STARTING"
	StateRunning    State = "RUNNING"
	StateStopped    State = "STOPPED"
	StateCrashed    State = "CRASHED"
)

type WorkerStatus struct {
	State   State
	PID     int
	PIDPath string
	LogPath string
	// LogOffset is where the output of the last Launch starts in the log
	// file, after its header line. Zero when nothing was launched.
	LogOffset int64
}

// Supervisor launches a detached worker and tracks it through a PID file and
// a log file under RunDir. Nothing guards against two nodebox runs touching
// the same worker at once.
type Supervisor struct {
	RunDir      string
	Name        string
	Grace       time.Duration
	StopTimeout time.Duration
	Env         []string
	Logger      *log.Logger

	pollInterval time.Duration
}

func (s *Supervisor) PIDPath() string { return filepath.Join(s.RunDir, s.Name+".pid") }

func (s *Supervisor) LogPath() string { return filepath.Join(s.RunDir, s.Name+".log") }

func (s *Supervisor) poll() time.Duration { return orDefault(s.pollInterval, 200*time.Millisecond) }

func (s *Supervisor) status(state State, pid int) WorkerStatus {
	return WorkerStatus{State: state, PID: pid, PIDPath: s.PIDPath(), LogPath: s.LogPath()}
}

// Status derives the worker state from the PID file and process liveness.
func (s *Supervisor) Status() WorkerStatus {
	pid, err := readPIDFile(s.PIDPath())
	if errors.Is(err, os.ErrNotExist) {
		if fileExists(s.LogPath()) {
			return s.status(StateStopped, 0)
		}
		return s.status(StateNotStarted, 0)
	}
	if err != nil {
		return s.status(StateCrashed, 0)
	}
	if processAlive(pid) {
		return s.status(StateRunning, pid)
	}
	return s.status(StateCrashed, pid)
}

// Launch starts argv detached from this process, with output appended to the
// log file. It waits Grace for early failures before reporting RUNNING.
func (s *Supervisor) Launch(ctx context.Context, argv []string) (WorkerStatus, error) {
	logger := loggerOr(s.Logger)
	if len(argv) == 0 {
		return s.status(StateNotStarted, 0), errors.New("empty command")
	}
	if cur, err := s.checkNotRunning(); err != nil {
		return cur, err
	}
	if err := os.MkdirAll(s.RunDir, 0o755); err != nil {
		return s.status(StateNotStarted, 0), fmt.Errorf("create run dir: %w", err)
	}
	logf, err := os.OpenFile(s.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return s.status(StateNotStarted, 0), fmt.Errorf("open log file: %w", err)
	}
	defer logf.Close()
	fmt.Fprintf(logf, "=== %s launching: %s ===\n", time.Now().Format(time.RFC3339), strings.Join(argv, " "))
	offset, _ := logf.Seek(0, io.SeekEnd)
	launched := func(state State, pid int) WorkerStatus {
		st := s.status(state, pid)
		st.LogOffset = offset
		return st
	}

	c := exec.Command(argv[0], argv[1:]...)
	c.Stdout = logf
	c.Stderr = logf
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if len(s.Env) > 0 {
		c.Env = append(os.Environ(), s.Env...)
	}
	logger.Info(">> "+strings.Join(argv, " "), "log", s.LogPath())
	if err := c.Start(); err != nil {
		return launched(StateNotStarted, 0), fmt.Errorf("start %s: %w", argv[0], err)
	}
	pid := c.Process.Pid
	if err := writePIDFile(s.PIDPath(), pid); err != nil {
		_ = c.Process.Kill()
		return launched(StateNotStarted, 0), fmt.Errorf("write pid file: %w", err)
	}
	logger.Debug("worker starting", "state", StateStarting, "pid", pid)

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	grace := orDefault(s.Grace, DefaultStartGrace)
	select {
	case err := <-done:
		out := readFrom(s.LogPath(), offset)
		if err == nil {
			_ = os.Remove(s.PIDPath())
			logger.Warn("worker exited immediately with status 0", "name", s.Name)
			return launched(StateStopped, pid), nil
		}
		// The PID file stays so the next Status reports CRASHED.
		_, cerr := finish(strings.Join(argv, " "), out, err)
		return launched(StateCrashed, pid), cerr
	case <-time.After(grace):
		return launched(StateRunning, pid), nil
	case <-ctx.Done():
		return launched(StateStarting, pid), ctx.Err()
	}
}

// checkNotRunning fails with ErrAlreadyRunning while the worker is alive.
func (s *Supervisor) checkNotRunning() (WorkerStatus, error) {
	cur := s.Status()
	if cur.State == StateRunning {
		return cur, fmt.Errorf("%s (pid %d): %w", s.Name, cur.PID, ErrAlreadyRunning)
	}
	return cur, nil
}

// Stop sends TERM to the worker's process group, then KILL once StopTimeout
// has passed. The log file is kept.
func (s *Supervisor) Stop(ctx context.Context) (WorkerStatus, error) {
	cur := s.Status()
	switch cur.State {
	case StateRunning:
	case StateCrashed:
		_ = os.Remove(s.PIDPath())
		return cur, fmt.Errorf("%s (stale pid file removed): %w", s.Name, ErrNotRunning)
	default:
		return cur, fmt.Errorf("%s: %w", s.Name, ErrNotRunning)
	}

	logger := loggerOr(s.Logger)
	logger.Info("sending SIGTERM", "pid", cur.PID)
	signalGroup(cur.PID, unix.SIGTERM)
	if !s.waitExit(ctx, cur.PID, orDefault(s.StopTimeout, DefaultStopTimeout)) {
		logger.Warn("worker ignored SIGTERM, sending SIGKILL", "pid", cur.PID)
		signalGroup(cur.PID, unix.SIGKILL)
		if !s.waitExit(context.Background(), cur.PID, 5*time.Second) {
			return s.status(StateRunning, cur.PID), fmt.Errorf("pid %d survived SIGKILL", cur.PID)
		}
	}
	if err := os.Remove(s.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.status(StateStopped, cur.PID), err
	}
	return s.status(StateStopped, cur.PID), nil
}

func (s *Supervisor) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !processAlive(pid) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(s.poll())
	}
}

// Tail writes the last n lines of the log file to w.
func (s *Supervisor) Tail(w io.Writer, n int) error {
	data, err := os.ReadFile(s.LogPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no log file at %s", s.LogPath())
		}
		return err
	}
	_, err = io.WriteString(w, lastLines(string(data), n))
	return err
}

// Follow streams new log output to w until ctx is done.
func (s *Supervisor) Follow(ctx context.Context, w io.Writer) error {
	f, err := os.Open(s.LogPath())
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(w, line); werr != nil {
				return werr
			}
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.poll()):
		}
	}
}

func lastLines(s string, n int) string {
	if n <= 0 {
		return s
	}
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

func readFrom(path string, offset int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	b, _ := io.ReadAll(f)
	return string(b)
}

func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func readPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// processAlive reports whether pid exists and is not a zombie.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	if stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat")); err == nil {
		// Field 3 follows the parenthesised comm, which may contain spaces.
		if i := bytes.LastIndexByte(stat, ')'); i >= 0 && i+2 < len(stat) && stat[i+2] == 'Z' {
			return false
		}
	}
	return true
}

func signalGroup(pid int, sig unix.Signal) {
	if err := unix.Kill(-pid, sig); err != nil {
		_ = unix.Kill(pid, sig)
	}
}

package nodebox

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
)

// Runner executes an argv. Shell runs it on the host; Distro runs it inside
// the proot guest.
type Runner interface {
	RunArgs(ctx context.Context, name string, args ...string) (Result, error)
	CaptureArgs(ctx context.Context, name string, args ...string) (string, error)
}

// Usability separates "the binary exists" from "the binary runs here".
type Usability struct {
	Path     string
	Found    bool
	Runnable bool
	Reason   string
	Help     string
}

// sigsysExit is 128+SIGSYS, what a shell reports for a seccomp kill.
const sigsysExit = 128 + 31

var incompatibilitySignatures = []string{
	"bad system call",
	"sigsys",
	"exec format error",
	"cannot execute binary file",
	"cannot execute: required file not found",
	"not executable",
	"unexpected e_type",
	"error while loading shared libraries",
}

// Incompatibility returns the signature that marks output/err as a binary that
// cannot run in this environment, or "".
func Incompatibility(output string, err error) string {
	lower := strings.ToLower(output)
	for _, sig := range incompatibilitySignatures {
		if strings.Contains(lower, sig) {
			return sig
		}
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		if ce.ExitCode == sigsysExit {
			return "killed by SIGSYS"
		}
		if ce.ExitCode == 126 {
			return "permission denied or not executable"
		}
	}
	return ""
}

func looksLikeHelp(out string) bool {
	return strings.Contains(out, "Usage") || strings.Contains(out, "USAGE") || strings.Contains(out, "usage:")
}

// ProbeNative locates name on the host PATH (or the first existing fallback
// path) and checks that it actually runs.
func ProbeNative(ctx context.Context, sh *Shell, name string, fallbacks ...string) Usability {
	path, err := sh.LookPath(name)
	if err != nil {
		path = ""
		for _, f := range fallbacks {
			if isExecutable(f) {
				path = f
				break
			}
		}
	}
	if path == "" {
		return Usability{Reason: name + " not found on PATH"}
	}
	return ProbeBinary(ctx, sh.WithTimeout(orDefault(sh.Timeout, 20*time.Second)), path)
}

// ProbeBinary runs path --help and, failing that, path --version.
func ProbeBinary(ctx context.Context, r Runner, path string) Usability {
	u := Usability{Path: path, Found: true}

	help, err := r.CaptureArgs(ctx, path, "--help")
	if sig := Incompatibility(help, err); sig != "" {
		u.Reason = sig
		return u
	}
	if looksLikeHelp(help) {
		u.Runnable = true
		u.Help = help
		return u
	}

	out, err := r.CaptureArgs(ctx, path, "--version")
	if sig := Incompatibility(out, err); sig != "" {
		u.Reason = sig
		return u
	}
	if err != nil {
		u.Reason = "--help and --version both failed: " + firstLine(out)
		return u
	}
	u.Runnable = true
	u.Help = help
	return u
}

func isExecutable(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir() && st.Mode()&0o111 != 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

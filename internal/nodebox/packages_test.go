package nodebox

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func lookPathOnly(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestPackagesEnsure(t *testing.T) {
	termux := Platform{Termux: true, PackageManager: "pkg"}

	t.Run("command already on PATH => nothing runs", func(t *testing.T) {
		calls := &callLog{}
		p := &Packages{
			Shell:    &Shell{execCommand: fakeExec(calls), lookPath: lookPathOnly("curl")},
			Platform: termux,
		}
		if err := p.Ensure(context.Background(), Required("curl")); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if n := len(calls.all()); n != 0 {
			t.Fatalf("expected no commands, got %v", calls.all())
		}
	})

	t.Run("no package manager, required => ErrNotTermux", func(t *testing.T) {
		p := &Packages{Shell: &Shell{lookPath: lookPathOnly()}}
		err := p.Ensure(context.Background(), Required("curl"))
		if !errors.Is(err, ErrNotTermux) {
			t.Fatalf("expected ErrNotTermux, got %v", err)
		}
	})

	t.Run("no package manager, optional => skipped", func(t *testing.T) {
		p := &Packages{Shell: &Shell{lookPath: lookPathOnly()}}
		if err := p.Ensure(context.Background(), Optional("proot-distro")); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("dpkg reports installed => no install", func(t *testing.T) {
		calls := &callLog{}
		p := &Packages{
			Shell:    &Shell{execCommand: fakeExec(calls), lookPath: lookPathOnly()},
			Platform: termux,
		}
		if err := p.Ensure(context.Background(), Required("openssh")); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if calls.count("dpkg -s openssh") != 1 {
			t.Fatalf("expected dpkg -s openssh, got %v", calls.all())
		}
		if calls.count("pkg install -y openssh") != 0 {
			t.Fatalf("expected no install, got %v", calls.all())
		}
	})

	t.Run("missing packages => update once, install each", func(t *testing.T) {
		calls := &callLog{}
		p := &Packages{
			Shell:    &Shell{execCommand: fakeExec(calls, "HELPER_DPKG=missing"), lookPath: lookPathOnly()},
			Platform: termux,
		}
		if err := p.Ensure(context.Background(), Required("wget"), Optional("git")); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if n := calls.count("sh -c yes | pkg update -y"); n != 1 {
			t.Fatalf("expected one pkg update, got %d (%v)", n, calls.all())
		}
		for _, want := range []string{"pkg install -y wget", "pkg install -y git"} {
			if calls.count(want) != 1 {
				t.Fatalf("expected %q, got %v", want, calls.all())
			}
		}

		// A second pass on the same Packages does not refresh again.
		if err := p.Ensure(context.Background(), Required("tar")); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if n := calls.count("sh -c yes | pkg update -y"); n != 1 {
			t.Fatalf("expected update to run once per process, got %d", n)
		}
	})
}

func TestRequirementCommandDefaultsToPackage(t *testing.T) {
	if got := Required("curl").command(); got != "curl" {
		t.Fatalf("expected curl, got %q", got)
	}
	r := Requirement{Package: "openssh", Command: "ssh"}
	if got := r.command(); got != "ssh" {
		t.Fatalf("expected ssh, got %q", got)
	}
}

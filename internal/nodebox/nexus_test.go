package nodebox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNexusStartValidation(t *testing.T) {
	app, _ := testApp(t, Platform{})
	n := &Nexus{App: app}
	ctx := context.Background()

	t.Run("empty node id", func(t *testing.T) {
		err := n.Start(ctx, " ", Status{CLIReady: true, ProotReady: true}, StartOptions{})
		if !errors.Is(err, ErrEmptyIdentifier) {
			t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
		}
	})

	t.Run("nothing ready", func(t *testing.T) {
		err := n.Start(ctx, "123", Status{}, StartOptions{})
		if !errors.Is(err, ErrCLIUnavailable) {
			t.Fatalf("expected ErrCLIUnavailable, got %v", err)
		}
	})

	t.Run("native forced but missing", func(t *testing.T) {
		err := n.Start(ctx, "123", Status{ProotReady: true}, StartOptions{Placement: PlacementNative})
		if !errors.Is(err, ErrCLIUnavailable) {
			t.Fatalf("expected ErrCLIUnavailable, got %v", err)
		}
	})

	t.Run("proot forced without proot-distro", func(t *testing.T) {
		err := n.Start(ctx, "123", Status{CLIReady: true}, StartOptions{Placement: PlacementProot})
		if !errors.Is(err, ErrDistroUnavailable) {
			t.Fatalf("expected ErrDistroUnavailable, got %v", err)
		}
	})
}

func TestNexusInstallCLIOffTermux(t *testing.T) {
	app, _ := testApp(t, Platform{})
	ok, err := (&Nexus{App: app}).InstallCLI(context.Background())
	if ok || !errors.Is(err, ErrNotTermux) {
		t.Fatalf("expected ErrNotTermux, got ok=%t err=%v", ok, err)
	}
}

func TestNexusPreflightOffTermux(t *testing.T) {
	app, _ := testApp(t, Platform{})
	st := (&Nexus{App: app}).Preflight(context.Background())
	if st.Termux || st.ProotReady {
		t.Fatalf("expected nothing ready off Termux, got %s", st)
	}
}

func TestNexusReport(t *testing.T) {
	app, out := testApp(t, Platform{})
	n := &Nexus{App: app}
	w := NexusStartSpellings[0]
	res := &SearchResult{Winner: &w, Attempts: []Attempt{{Spelling: w}}}

	if err := n.report(true)(res, nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(out.String(), `OK: nexus-network accepted "start --node-id"`) {
		t.Fatalf("unexpected output %q", out.String())
	}

	failed := errors.New("boom")
	if err := n.report(false)(&SearchResult{}, failed); !errors.Is(err, failed) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
}

// The detached search launches each candidate; the first that survives the
// grace period wins.
func TestSupervisorAttemptSearch(t *testing.T) {
	sup := newTestSupervisor(t)
	sup.Grace = 300 * time.Millisecond
	t.Cleanup(func() { _, _ = sup.Stop(context.Background()) })

	spellings := []Spelling{
		{Name: "fails", Args: []string{"-c", "echo unexpected argument; exit 2"}},
		{Name: "runs", Args: []string{"-c", "sleep 30"}},
	}
	res, err := Search(context.Background(), "sh", "", spellings, supervisorAttempt(sup, nil))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Winner.Name != "runs" {
		t.Fatalf("expected runs to win, got %q", res.Winner.Name)
	}
	if !strings.Contains(res.Attempts[0].Output, "unexpected argument") {
		t.Fatalf("expected first attempt output from the log, got %q", res.Attempts[0].Output)
	}
	for _, a := range res.Attempts {
		if strings.Contains(a.Output, "launching") {
			t.Fatalf("expected attempt output without the log header, got %q", a.Output)
		}
	}
	if st := sup.Status(); st.State != StateRunning {
		t.Fatalf("expected RUNNING, got %s", st.State)
	}
}

func TestMustQuote(t *testing.T) {
	if got := mustQuote("https://cli.nexus.xyz/"); !strings.Contains(got, "https://cli.nexus.xyz/") {
		t.Fatalf("unexpected quoting %q", got)
	}
	if got := mustQuote("a'b; rm -rf /"); !strings.HasPrefix(got, "'") && !strings.HasPrefix(got, "$'") && !strings.HasPrefix(got, `"`) {
		t.Fatalf("expected quoted output, got %q", got)
	}
}

// A detached in-guest run is launched as `proot-distro login ...`; that argv
// must not count as the CLI asking for a login.
func TestSupervisorAttemptInDistroNoAuthGuidance(t *testing.T) {
	bin := t.TempDir()
	writeFile(t, filepath.Join(bin, "proot-distro"), "#!/bin/sh\nexec sleep 30\n")
	if err := os.Chmod(filepath.Join(bin, "proot-distro"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	sup := newTestSupervisor(t)
	t.Cleanup(func() { _, _ = sup.Stop(context.Background()) })
	d := NewDistro("ubuntu", Platform{}, NewShell(nil))

	res, err := Search(context.Background(), NexusBinary, "abc", NexusStartSpellings, supervisorAttempt(sup, d.WrapArgv))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Winner.Name != "start --node-id" {
		t.Fatalf("expected start --node-id to win, got %q", res.Winner.Name)
	}
	if res.AuthRequired {
		t.Fatalf("expected no auth guidance, got output %q", res.Attempts[0].Output)
	}
	log := readFile(t, sup.LogPath())
	if !strings.Contains(log, "proot-distro login ubuntu -- bash -lc") {
		t.Fatalf("expected the wrapped argv in the log header, got %q", log)
	}
}

func TestNexusStartDetachedAlreadyRunning(t *testing.T) {
	app, _ := testApp(t, Platform{})
	app.Config.StartGrace = "200ms"
	sup := app.Supervisor(NexusWorkerName)
	if _, err := sup.Launch(context.Background(), []string{"sleep", "30"}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(func() { _, _ = sup.Stop(context.Background()) })

	err := (&Nexus{App: app}).Start(context.Background(), "123", Status{CLIReady: true, ProotReady: true}, StartOptions{Detach: true})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if strings.Contains(err.Error(), "spellings") {
		t.Fatalf("expected the error before any spelling was tried, got %v", err)
	}
}

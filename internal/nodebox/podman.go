package nodebox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Podman drives rootless podman inside the proot guest.
type Podman struct {
	Runner  Runner
	Timeout time.Duration
}

func (p Podman) capture(ctx context.Context, d time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(p.Timeout, d))
	defer cancel()
	return p.Runner.CaptureArgs(ctx, "podman", args...)
}

func (p Podman) run(ctx context.Context, args ...string) error {
	_, err := p.Runner.RunArgs(ctx, "podman", args...)
	return err
}

func (p Podman) Version(ctx context.Context) (string, error) {
	out, err := p.capture(ctx, 20*time.Second, "--version")
	if err != nil {
		return "", fmt.Errorf("podman not available: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Functional reports whether `podman info` succeeds, which needs working
// user namespaces.
func (p Podman) Functional(ctx context.Context) bool {
	_, err := p.capture(ctx, 60*time.Second, "info")
	return err == nil
}

func (p Podman) ContainerExists(ctx context.Context, name string) bool {
	_, err := p.capture(ctx, 20*time.Second, "inspect", name)
	return err == nil
}

// ContainerState is the subset of `podman inspect` nodebox prints.
type ContainerState struct {
	Name   string
	Status string
	Image  string
}

func (p Podman) Inspect(ctx context.Context, name string) (ContainerState, error) {
	out, err := p.capture(ctx, 20*time.Second, "inspect", name, "--format", "{{.State.Status}} {{.Config.Image}}")
	if err != nil {
		return ContainerState{Name: name}, fmt.Errorf("podman inspect %q failed: %w", name, err)
	}
	return parseInspectLine(name, out), nil
}

func parseInspectLine(name, out string) ContainerState {
	st := ContainerState{Name: name}
	fields := strings.Fields(firstLine(out))
	if len(fields) > 0 {
		st.Status = fields[0]
	}
	if len(fields) > 1 {
		st.Image = fields[1]
	}
	return st
}

// PS returns the `podman ps -a` table rows whose name contains filter, plus
// the header.
func (p Podman) PS(ctx context.Context, filter string) ([]string, error) {
	out, err := p.capture(ctx, 30*time.Second, "ps", "-a", "--format", "table {{.Names}}\t{{.Image}}\t{{.Status}}")
	if err != nil {
		return nil, err
	}
	return filterPSRows(out, filter), nil
}

func filterPSRows(out, filter string) []string {
	var rows []string
	for _, ln := range strings.Split(out, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(ln)), "NAMES") || strings.Contains(ln, filter) {
			rows = append(rows, ln)
		}
	}
	return rows
}

func (p Podman) Logs(ctx context.Context, name string, follow bool) error {
	args := []string{"logs"}
	if follow {
		args = append(args, "-f")
	}
	return p.run(ctx, append(args, name)...)
}

func (p Podman) Restart(ctx context.Context, name string) error {
	return p.run(ctx, "restart", name)
}

func (p Podman) Remove(ctx context.Context, name string) error {
	_, err := p.capture(ctx, 60*time.Second, "rm", "-f", name)
	return err
}

func (p Podman) RemoveVolume(ctx context.Context, name string) error {
	_, err := p.capture(ctx, 60*time.Second, "volume", "rm", name)
	return err
}

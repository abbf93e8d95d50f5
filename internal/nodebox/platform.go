package nodebox

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Platform describes where nodebox is running.
type Platform struct {
	Termux         bool
	Prefix         string // Termux $PREFIX, empty off Termux
	Arch           string // normalised GOARCH-style name
	PackageManager string // "pkg" on Termux, empty otherwise
}

// DetectPlatform probes the live environment. It has no side effects.
func DetectPlatform() Platform {
	return detectPlatformFrom(exec.LookPath, statFile, os.Getenv, runtime.GOARCH)
}

// detectPlatformFrom performs detection with injected lookups so tests do
// not depend on the host.
func detectPlatformFrom(
	lookPath func(string) (string, error),
	stat func(string) error,
	getenv func(string) string,
	goarch string,
) Platform {
	p := Platform{Arch: normalizeArch(goarch)}

	prefix := strings.TrimSpace(getenv("PREFIX"))
	switch {
	case strings.HasPrefix(prefix, "/data/data/com.termux"):
		p.Termux = true
		p.Prefix = prefix
	case stat(TermuxPrefix) == nil:
		p.Termux = true
		p.Prefix = TermuxPrefix
	}
	if _, err := lookPath("pkg"); err == nil {
		p.Termux = true
		p.PackageManager = "pkg"
		if p.Prefix == "" {
			p.Prefix = firstNonEmpty(prefix, TermuxPrefix)
		}
	}
	return p
}

// ArchWarning returns a non-empty warning for architectures the Tashi worker
// does not officially support.
func (p Platform) ArchWarning() string {
	if p.Arch == "amd64" {
		return ""
	}
	return fmt.Sprintf("architecture %s is not x86_64; the Tashi worker officially requires a 64-bit x86 Linux host with Docker/Podman. If it fails, run it on a Linux x86-64 VPS or PC instead", p.Arch)
}

func normalizeArch(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	switch a {
	case "x86_64", "x64":
		return "amd64"
	case "aarch64", "armv8", "armv8l":
		return "arm64"
	case "armv7l", "armv7":
		return "arm"
	case "i386", "i686":
		return "386"
	}
	return a
}

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}

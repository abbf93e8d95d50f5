package main

import (
	"os"

	"github.com/nimzi/nodebox/internal/nodebox"
)

// nodebox is the canonical CLI entrypoint.
//
// Note: nodebox is meant to run inside Termux on Android. On a regular Linux
// host the native paths still work; pkg installs and the proot-distro
// fallback are unavailable.
func main() {
	os.Exit(nodebox.Main())
}

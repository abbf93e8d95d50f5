package nodebox

import "fmt"

// Status is the installation status record. It is recomputed on every run
// and never written to disk.
type Status struct {
	Termux     bool
	CLIReady   bool
	ProotReady bool
}

func (s Status) String() string {
	return fmt.Sprintf("termux=%t cli_ready=%t proot_ready=%t", s.Termux, s.CLIReady, s.ProotReady)
}

package nodebox

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// App carries what every command needs for one run. Nothing in it is
// persisted; the platform and installation status are recomputed each time.
type App struct {
	Config   AppConfig
	Platform Platform
	Shell    *Shell
	Logger   *log.Logger
	Out      io.Writer
	Home     string
	RunDir   string

	packages *Packages
}

func NewApp(cfg AppConfig, logger *log.Logger) *App {
	cfg = normalizeConfig(cfg)
	return &App{
		Config:   cfg,
		Platform: DetectPlatform(),
		Shell:    NewShell(logger),
		Logger:   logger,
		Out:      os.Stdout,
		Home:     homeDir(),
		RunDir:   firstNonEmpty(absPathOrEmpty(cfg.RunDir), defaultRunDir()),
	}
}

func absPathOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	return absPath(p)
}

// Packages is shared so `pkg update` runs at most once per process.
func (a *App) Packages() *Packages {
	if a.packages == nil {
		a.packages = &Packages{Shell: a.Shell, Platform: a.Platform}
	}
	return a.packages
}

func (a *App) Distro() *Distro {
	return NewDistro(a.Config.Distro, a.Platform, a.Shell)
}

func (a *App) Supervisor(name string) *Supervisor {
	return &Supervisor{
		RunDir:      a.RunDir,
		Name:        name,
		Grace:       a.Config.startGrace(),
		StopTimeout: a.Config.stopTimeout(),
		Logger:      a.Logger,
	}
}

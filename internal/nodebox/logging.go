package nodebox

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// newLogger builds the process logger. An empty level means info.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := log.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		parsed, err := log.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: AppName,
		Level:  lvl,
	}), nil
}

// discardLogger is used by tests and by components constructed without one.
func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Prefix: AppName})
}

func loggerOr(l *log.Logger) *log.Logger {
	if l == nil {
		return discardLogger()
	}
	return l
}

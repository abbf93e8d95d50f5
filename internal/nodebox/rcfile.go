package nodebox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// shellRCFiles are the startup files that get the PATH line.
func shellRCFiles(home string) []string {
	return []string{
		filepath.Join(home, ".zshrc"),
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, ".profile"),
	}
}

// AppendOnce appends line to path unless the file already contains it.
// It reports whether the file was changed.
func AppendOnce(path, line string) (bool, error) {
	want := strings.TrimSpace(line)
	if want == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if strings.Contains(string(data), want) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString("\n" + strings.TrimRight(line, " \t\r\n") + "\n"); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func pathExportLine(dir string, home string) string {
	if rel, ok := strings.CutPrefix(dir, home+string(os.PathSeparator)); ok && home != "" {
		return `export PATH="$HOME/` + rel + `:$PATH"`
	}
	return `export PATH="` + dir + `:$PATH"`
}

// EnsurePathEntry persists dir on PATH in every shell rc file and returns the
// PATH=... entry to use for child processes of this run. It does nothing and
// returns "" when dir does not exist.
func EnsurePathEntry(home, dir string) (string, error) {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return "", nil
	}
	line := pathExportLine(dir, home)
	var errs []error
	for _, rc := range shellRCFiles(home) {
		if _, err := AppendOnce(rc, line); err != nil {
			errs = append(errs, err)
		}
	}
	return "PATH=" + prependPath(dir, os.Getenv("PATH")), errors.Join(errs...)
}

func prependPath(dir, path string) string {
	for _, p := range filepath.SplitList(path) {
		if p == dir {
			return path
		}
	}
	if path == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + path
}

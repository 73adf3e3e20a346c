package assetfile

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ---------------------------------------------------------------------------
// Durable writer
// ---------------------------------------------------------------------------

// Strategy is one way of putting bytes at a destination path. A strategy
// that fails must not leave partial output at the destination.
type Strategy struct {
	Name  string
	Write func(path string, data []byte) error
}

// WriteError reports that every strategy failed for a path.
type WriteError struct {
	Path     string
	Attempts []error
}

func (e *WriteError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("writing %s: all methods failed: %s", e.Path, strings.Join(msgs, "; "))
}

func (e *WriteError) Unwrap() []error {
	return e.Attempts
}

// Writer writes files through an ordered chain of strategies, stopping at
// the first one that succeeds.
type Writer struct {
	Strategies []Strategy
	// OnFallback, if set, is called when a strategy fails and the next one
	// is about to be tried.
	OnFallback func(path, strategy string, err error)
}

// NewWriter returns a Writer using the default chain: direct write, then
// temp file plus atomic rename, then an OS-level forced copy.
func NewWriter() *Writer {
	return &Writer{Strategies: DefaultStrategies()}
}

// DefaultStrategies returns the standard fallback chain.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "direct", Write: writeDirect},
		{Name: "rename", Write: writeViaRename},
		{Name: "copy", Write: writeViaForcedCopy},
	}
}

// WriteFile creates the parent directory and writes data to path.
func (w *Writer) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &WriteError{Path: path, Attempts: []error{fmt.Errorf("mkdir: %w", err)}}
	}

	var attempts []error
	for i, s := range w.Strategies {
		err := s.Write(path, data)
		if err == nil {
			return nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.Name, err))
		if w.OnFallback != nil && i < len(w.Strategies)-1 {
			w.OnFallback(path, s.Name, err)
		}
	}
	if len(attempts) == 0 {
		attempts = append(attempts, errors.New("no write strategies configured"))
	}
	return &WriteError{Path: path, Attempts: attempts}
}

// writeDirect opens the destination and writes in place. If the write
// fails after truncation the destination is removed.
func writeDirect(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return errors.Join(werr, cerr)
	}
	return nil
}

// writeViaRename writes a temp file next to the destination and renames it
// over the destination.
func writeViaRename(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, werr := tmp.Write(data)
	serr := tmp.Sync()
	cerr := tmp.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// forceCopyCommand builds the OS command that copies src over dst,
// replacing read-only or locked destinations where the OS allows it.
var forceCopyCommand = func(src, dst string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
		script := "Copy-Item -Path " + quote(src) + " -Destination " + quote(dst) + " -Force"
		return exec.Command("powershell", "-NoProfile", "-Command", script)
	}
	return exec.Command("cp", "-f", src, dst)
}

// writeViaForcedCopy stages data in the system temp directory and lets the
// OS copy it into place.
func writeViaForcedCopy(path string, data []byte) error {
	tmp, err := os.CreateTemp("", "modloc-*.yml")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return err
	}

	out, err := forceCopyCommand(tmpPath, path).CombinedOutput()
	if err != nil {
		os.Remove(path)
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

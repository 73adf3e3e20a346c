// Package report collects non-fatal failures during a translation run and
// writes them to a plain-text sidecar file next to the output.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind classifies a logged failure.
type Kind string

const (
	// ParseError: a source line or file could not be parsed. The content is
	// passed through untranslated.
	ParseError Kind = "ParseError"
	// TranslationError: the backend failed after all retries. The original
	// text is kept.
	TranslationError Kind = "TranslationError"
	// WriteError: every write method failed for an output file. The file is
	// skipped.
	WriteError Kind = "WriteError"
	// PipelineError: the run was aborted.
	PipelineError Kind = "PipelineError"
)

// SidecarName is the file name of the error report written into the
// output directory.
const SidecarName = "translation_errors.log"

// Entry is one logged failure.
type Entry struct {
	Kind    Kind
	Context string
	Message string
	Time    time.Time
}

// String renders the entry as one report line: "KIND: context — message".
func (e Entry) String() string {
	msg := strings.ReplaceAll(e.Message, "\n", " ")
	if e.Context == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s — %s", e.Kind, e.Context, msg)
}

// Log is an append-only, concurrency-safe list of entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Add appends an entry.
func (l *Log) Add(kind Kind, context, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	l.entries = append(l.entries, Entry{Kind: kind, Context: context, Message: message, Time: now()})
}

// Addf appends an entry with a formatted message.
func (l *Log) Addf(kind Kind, context, format string, args ...any) {
	l.Add(kind, context, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the logged entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Count returns the number of entries of one kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Render returns the report text, one line per entry.
func (l *Log) Render() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteSidecar writes the report into dir when the log is not empty and
// returns the written path ("" when nothing was written).
func (l *Log) WriteSidecar(dir string) (string, error) {
	if l.Len() == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, SidecarName)
	if err := os.WriteFile(path, []byte(l.Render()), 0644); err != nil {
		return "", fmt.Errorf("writing error report: %w", err)
	}
	return path, nil
}

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestEntryString(t *testing.T) {
	e := Entry{Kind: TranslationError, Context: "events_l_english.yml:12 evt.t", Message: "timeout\nafter 3 attempts"}
	want := "TranslationError: events_l_english.yml:12 evt.t — timeout after 3 attempts"
	if got := e.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	e = Entry{Kind: PipelineError, Message: "boom"}
	if got := e.String(); got != "PipelineError: boom" {
		t.Fatalf("String() without context = %q", got)
	}
}

func TestLogConcurrentAdds(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Addf(TranslationError, fmt.Sprintf("k%d", i), "failed %d", i)
		}(i)
	}
	wg.Wait()

	if l.Len() != 50 || l.Count(TranslationError) != 50 || l.Count(WriteError) != 0 {
		t.Fatalf("Len() = %d, Count(TranslationError) = %d", l.Len(), l.Count(TranslationError))
	}
}

func TestWriteSidecar(t *testing.T) {
	dir := t.TempDir()
	l := NewLog()

	path, err := l.WriteSidecar(dir)
	if err != nil || path != "" {
		t.Fatalf("empty WriteSidecar() = %q, %v; want no file", path, err)
	}
	if _, err := os.Stat(filepath.Join(dir, SidecarName)); !os.IsNotExist(err) {
		t.Fatalf("sidecar written for empty log")
	}

	l.Add(ParseError, "a_l_english.yml:3", "unrecognised line")
	l.Add(WriteError, "out/a_l_korean.yml", "permission denied")

	path, err = l.WriteSidecar(dir)
	if err != nil {
		t.Fatalf("WriteSidecar() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("report lines = %d, want 2: %q", len(lines), data)
	}
	if lines[0] != "ParseError: a_l_english.yml:3 — unrecognised line" {
		t.Fatalf("first line = %q", lines[0])
	}
}

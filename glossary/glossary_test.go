package glossary

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestTermsAreLongestFirst(t *testing.T) {
	g := New(map[string]string{
		"Support":     "지지",
		"War Support": "전쟁 지지도",
		"Army":        "육군",
		"":            "ignored",
		"Empty":       "",
	})

	var got []string
	for _, term := range g.Terms() {
		got = append(got, term.Source)
	}
	want := []string{"War Support", "Support", "Army"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Terms() order = %v, want %v", got, want)
	}
}

func TestFromTermsDeduplicatesCaseInsensitively(t *testing.T) {
	g := FromTerms([]Term{
		{Source: "manpower", Target: "old"},
		{Source: "Manpower", Target: "인력"},
	})
	if g.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.Len())
	}
	if got := g.Terms()[0].Target; got != "인력" {
		t.Fatalf("Target = %q, want 인력", got)
	}
}

func TestContext(t *testing.T) {
	if got := FromTerms(nil).Context(); got != "" {
		t.Fatalf("empty Context() = %q, want empty", got)
	}
	var nilG *Glossary
	if got := nilG.Context(); got != "" {
		t.Fatalf("nil Context() = %q, want empty", got)
	}

	got := New(map[string]string{"Manpower": "인력"}).Context()
	if !strings.Contains(got, "- Manpower: 인력") {
		t.Fatalf("Context() = %q, missing term line", got)
	}
}

func TestLoadShapes(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		file    string
		content string
	}{
		{name: "json map", file: "g.json", content: `{"Manpower": "인력", "Stability": "안정도"}`},
		{name: "yaml map", file: "g.yaml", content: "Manpower: 인력\nStability: 안정도\n"},
		{name: "yaml list", file: "l.yaml", content: "- source: Manpower\n  target: 인력\n- source: Stability\n  target: 안정도\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			g, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			want := map[string]string{"Manpower": "인력", "Stability": "안정도"}
			if !reflect.DeepEqual(g.Map(), want) {
				t.Fatalf("Map() = %v, want %v", g.Map(), want)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(dir, "scalar.yaml")
	if err := os.WriteFile(path, []byte("just a string\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for scalar document")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	g := New(map[string]string{"Manpower": "인력", "Factory": "공장"})

	for _, name := range []string{"out.json", "out.yaml"} {
		path := filepath.Join(dir, name)
		if err := g.Save(path); err != nil {
			t.Fatalf("Save(%s) error: %v", name, err)
		}
		back, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", name, err)
		}
		if !reflect.DeepEqual(back.Map(), g.Map()) {
			t.Fatalf("%s round trip = %v, want %v", name, back.Map(), g.Map())
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "인력") {
		t.Fatalf("JSON output escaped non-ASCII text: %s", data)
	}
}

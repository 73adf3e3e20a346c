// Package glossary holds user-supplied term translations that must be used
// verbatim in translated text.
//
// A glossary file is either a flat mapping or a list of terms, in YAML or
// JSON (JSON is read through the YAML parser):
//
//	Manpower: 인력
//	War Support: 전쟁 지지도
//
//	- source: Manpower
//	  target: 인력
package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Term is one source-to-target pair. Matching against Source is
// case-insensitive.
type Term struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Glossary is an immutable set of terms ordered longest source first, so
// that "War Support" wins over "Support" when both apply.
type Glossary struct {
	terms []Term
}

// New builds a glossary from a source-to-target map. Entries with an empty
// source or target are dropped.
func New(m map[string]string) *Glossary {
	terms := make([]Term, 0, len(m))
	for s, t := range m {
		terms = append(terms, Term{Source: s, Target: t})
	}
	return FromTerms(terms)
}

// FromTerms builds a glossary from a term list. Later duplicates of a
// source (compared case-insensitively) replace earlier ones.
func FromTerms(terms []Term) *Glossary {
	seen := make(map[string]int)
	var out []Term
	for _, t := range terms {
		if strings.TrimSpace(t.Source) == "" || t.Target == "" {
			continue
		}
		k := strings.ToLower(t.Source)
		if i, ok := seen[k]; ok {
			out[i] = t
			continue
		}
		seen[k] = len(out)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i].Source), utf8.RuneCountInString(out[j].Source)
		if li != lj {
			return li > lj
		}
		return out[i].Source < out[j].Source
	})
	return &Glossary{terms: out}
}

// Terms returns the terms, longest source first.
func (g *Glossary) Terms() []Term {
	if g == nil {
		return nil
	}
	return append([]Term(nil), g.terms...)
}

// Len returns the number of terms.
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// Map returns the glossary as a source-to-target map.
func (g *Glossary) Map() map[string]string {
	m := make(map[string]string, g.Len())
	if g == nil {
		return m
	}
	for _, t := range g.terms {
		m[t.Source] = t.Target
	}
	return m
}

// Context renders the glossary as prompt text for backends that accept
// the glossary as side-channel instructions. Empty glossaries render as "".
func (g *Glossary) Context() string {
	if g.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("GLOSSARY (use these exact translations):\n")
	for _, t := range g.terms {
		fmt.Fprintf(&b, "- %s: %s\n", t.Source, t.Target)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads a glossary file in either supported shape.
func Load(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading glossary %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if len(bytes.TrimSpace(data)) == 0 {
		return FromTerms(nil), nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return FromTerms(nil), nil
	}

	switch node.Content[0].Kind {
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Content[0].Decode(&m); err != nil {
			return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
		}
		return New(m), nil
	case yaml.SequenceNode:
		var terms []Term
		if err := node.Content[0].Decode(&terms); err != nil {
			return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
		}
		return FromTerms(terms), nil
	default:
		return nil, fmt.Errorf("parsing glossary %s: expected a mapping or a list of terms", path)
	}
}

// Save writes the glossary as a flat mapping. Files ending in .yaml or .yml
// are written as YAML, everything else as indented JSON.
func (g *Glossary) Save(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(g.Map())
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		err = enc.Encode(g.Map())
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encoding glossary: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating glossary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing glossary %s: %w", path, err)
	}
	return nil
}

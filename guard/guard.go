// Package guard protects text that a translation backend must not touch.
//
// Engine markup (scope commands, variables, color codes, icons and literal
// newline escapes) is swapped for opaque placeholders before the text is
// sent out and swapped back afterwards. Glossary terms can be protected the
// same way, with the placeholder bound to the target-language term so the
// translated text ends up containing the glossary translation verbatim.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/modloc/modloc/glossary"
)

// Category identifies what kind of text an extraction protected.
type Category int

const (
	ScopeCommand Category = iota
	Variable
	Color
	Icon
	Newline
	GlossaryTerm
)

func (c Category) String() string {
	switch c {
	case ScopeCommand:
		return "scope"
	case Variable:
		return "variable"
	case Color:
		return "color"
	case Icon:
		return "icon"
	case Newline:
		return "newline"
	case GlossaryTerm:
		return "glossary"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Extraction records one protected span.
type Extraction struct {
	Placeholder string
	// Original is the text the placeholder is restored to. For glossary
	// extractions this is the target-language term, not the source match.
	Original string
	Category Category
}

// Pattern pairs a markup regexp with its category. Order in a pattern list
// is priority: earlier patterns claim text first.
type Pattern struct {
	Category Category
	Re       *regexp.Regexp
}

// DefaultPatterns is the markup the game engine interprets literally.
var DefaultPatterns = []Pattern{
	{Category: ScopeCommand, Re: regexp.MustCompile(`\[[A-Za-z0-9_.|'@? ]+\]`)},
	{Category: Variable, Re: regexp.MustCompile(`\$[A-Za-z0-9_.|]+\$`)},
	{Category: Color, Re: regexp.MustCompile(`§[A-Za-z0-9!]`)},
	{Category: Icon, Re: regexp.MustCompile(`£[A-Za-z0-9_]+£?`)},
	{Category: Newline, Re: regexp.MustCompile(`\\n`)},
}

// placeholderPattern matches any placeholder this package emits.
var placeholderPattern = regexp.MustCompile(`__(?:VAR|GLS)\d+__`)

// Guard extracts and restores protected spans. It is safe for concurrent use.
type Guard struct {
	patterns []Pattern

	mu      sync.Mutex
	termRes map[string]*regexp.Regexp
}

// New returns a Guard using the given patterns, or DefaultPatterns when
// none are given.
func New(patterns ...Pattern) *Guard {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Guard{patterns: patterns, termRes: make(map[string]*regexp.Regexp)}
}

// Extract replaces every markup match with a numbered __VAR<n>__
// placeholder. Patterns are applied in order; within one pattern matches
// are replaced right to left so earlier offsets stay valid.
func (g *Guard) Extract(text string) (string, []Extraction) {
	var extractions []Extraction
	n := 0
	for _, p := range g.patterns {
		locs := p.Re.FindAllStringIndex(text, -1)
		for i := len(locs) - 1; i >= 0; i-- {
			start, end := locs[i][0], locs[i][1]
			ph := fmt.Sprintf("__VAR%d__", n)
			n++
			extractions = append(extractions, Extraction{Placeholder: ph, Original: text[start:end], Category: p.Category})
			text = text[:start] + ph + text[end:]
		}
	}
	return text, extractions
}

// ExtractGlossary replaces glossary source terms with numbered
// __GLS<n>__ placeholders bound to the target terms. Terms are tried
// longest first and matched case-insensitively. Matches that overlap an
// existing placeholder are left alone.
func (g *Guard) ExtractGlossary(text string, gl *glossary.Glossary) (string, []Extraction) {
	var extractions []Extraction
	n := 0
	for _, term := range gl.Terms() {
		re := g.termRegexp(term.Source)
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		protected := placeholderPattern.FindAllStringIndex(text, -1)
		for i := len(locs) - 1; i >= 0; i-- {
			start, end := locs[i][0], locs[i][1]
			if overlaps(start, end, protected) {
				continue
			}
			ph := fmt.Sprintf("__GLS%d__", n)
			n++
			extractions = append(extractions, Extraction{Placeholder: ph, Original: term.Target, Category: GlossaryTerm})
			text = text[:start] + ph + text[end:]
		}
	}
	return text, extractions
}

// Restore puts the original text back for every placeholder, last
// extraction first. Placeholders missing from text are ignored.
func Restore(text string, extractions []Extraction) string {
	for i := len(extractions) - 1; i >= 0; i-- {
		e := extractions[i]
		if e.Placeholder == "" {
			continue
		}
		text = strings.ReplaceAll(text, e.Placeholder, e.Original)
	}
	return text
}

// HasPlaceholders reports whether text still contains any placeholder.
func HasPlaceholders(text string) bool {
	return placeholderPattern.MatchString(text)
}

func (g *Guard) termRegexp(term string) *regexp.Regexp {
	g.mu.Lock()
	defer g.mu.Unlock()
	if re, ok := g.termRes[term]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	g.termRes[term] = re
	return re
}

func overlaps(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

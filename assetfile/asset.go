// Package assetfile implements reading and reconstruction of the game's
// localisation text assets (the *_l_<language>.yml files).
//
// Despite the extension these files are not YAML. Each file is a header
// line naming the language tag followed by one entry per line:
//
//	l_english:
//	 some_key:0 "Value with [Scope.GetName] and $VAR$" # trailing comment
//
// The version number after the key is optional. Files are UTF-8 with a byte
// order mark; the engine refuses to load them without one.
//
// The File type keeps every raw line in document order so that writing a
// file back changes entry values only. Lines the parser does not recognise
// are preserved verbatim and reported through File.Unparsed.
package assetfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// lineKind classifies each line in the file.
type lineKind int

const (
	lineBlank   lineKind = iota // blank / whitespace-only line
	lineComment                 // comment line (starts with #)
	lineHeader                  // l_<language>: header
	lineEntry                   // key:version "value"
	lineOther                   // anything else, kept verbatim
)

// entryPattern captures key, optional :version, the quoted value (up to the
// last quote on the line) and whatever trails it.
var entryPattern = regexp.MustCompile(`^\s*([a-zA-Z0-9_.\-]+)(:\d+)?:?\s*"(.*)"(.*)$`)

var headerPattern = regexp.MustCompile(`^\s*(l_[A-Za-z_]+)\s*:\s*(#.*)?$`)

// Entry is a single translatable key/value line.
type Entry struct {
	// Line is the zero-based index of the entry in File.Lines.
	Line int
	// Indent is the leading whitespace before the key.
	Indent string
	Key    string
	// Version is the numeric tag after the key; only meaningful when
	// HasVersion is set.
	Version    int
	HasVersion bool
	// Value is the raw text between the first and the last quote. Escaped
	// quotes are kept as they appear in the file.
	Value string
	// Suffix is everything after the closing quote (usually a comment).
	Suffix string
}

// File represents a parsed localisation file.
type File struct {
	// Header is the language tag of the header line (e.g. "l_english"), or
	// empty when the file has no header.
	Header string
	// HeaderLine is the index of the header line, -1 when absent.
	HeaderLine int
	// Lines stores all raw lines in document order, without terminators.
	// A trailing '\r' from CRLF files stays part of the line.
	Lines []string
	// Entries lists the parsed entries in document order.
	Entries []Entry
	// Unparsed holds the indices of non-blank, non-comment lines that did
	// not match the entry format.
	Unparsed []int
	// FinalNewline reports whether the source ended with a line terminator.
	FinalNewline bool

	kinds []lineKind
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a localisation file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// ErrInvalidEncoding is returned for content that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("content is not valid UTF-8")

// Parse parses localisation content from a byte slice. A leading UTF-8 BOM
// is stripped; a file without one is accepted as plain UTF-8. Content that
// is not valid UTF-8 is rejected rather than repaired, so that no byte of
// the file is ever rewritten on output.
func Parse(data []byte) (*File, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	f := &File{HeaderLine: -1}
	text := string(decoded)
	if text == "" {
		return f, nil
	}

	rawLines := strings.Split(text, "\n")
	// Drop trailing empty element from a file that ends with \n.
	if rawLines[len(rawLines)-1] == "" {
		f.FinalNewline = true
		rawLines = rawLines[:len(rawLines)-1]
	}

	f.Lines = rawLines
	f.kinds = make([]lineKind, len(rawLines))

	for idx, raw := range rawLines {
		content := strings.TrimSuffix(raw, "\r")
		trimmed := strings.TrimSpace(content)

		switch {
		case trimmed == "":
			f.kinds[idx] = lineBlank

		case strings.HasPrefix(trimmed, "#"):
			f.kinds[idx] = lineComment

		case f.HeaderLine < 0 && len(f.Entries) == 0 && headerPattern.MatchString(content):
			f.kinds[idx] = lineHeader
			f.HeaderLine = idx
			f.Header = headerPattern.FindStringSubmatch(content)[1]

		default:
			e, ok := parseEntry(content)
			if !ok {
				f.kinds[idx] = lineOther
				f.Unparsed = append(f.Unparsed, idx)
				continue
			}
			e.Line = idx
			f.kinds[idx] = lineEntry
			f.Entries = append(f.Entries, e)
		}
	}

	return f, nil
}

func parseEntry(content string) (Entry, bool) {
	m := entryPattern.FindStringSubmatch(content)
	if m == nil {
		return Entry{}, false
	}
	e := Entry{
		Indent: content[:len(content)-len(strings.TrimLeft(content, " \t"))],
		Key:    m[1],
		Value:  m[3],
		Suffix: m[4],
	}
	if m[2] != "" {
		v, err := strconv.Atoi(m[2][1:])
		if err == nil {
			e.Version = v
			e.HasVersion = true
		}
	}
	return e, true
}

// ---------------------------------------------------------------------------
// Reassembly
// ---------------------------------------------------------------------------

// Reassemble returns the file's lines in original order with translated
// values applied. values maps an entry's line index to its new value;
// entries without a value are passed through unchanged. When headerTag is
// non-empty the header line is replaced by "<headerTag>:" (a header is
// prepended if the source had none).
func (f *File) Reassemble(headerTag string, values map[int]string) []string {
	out := make([]string, 0, len(f.Lines)+1)
	if headerTag != "" && f.HeaderLine < 0 {
		out = append(out, headerTag+":")
	}

	byLine := make(map[int]*Entry, len(f.Entries))
	for i := range f.Entries {
		byLine[f.Entries[i].Line] = &f.Entries[i]
	}

	for idx, raw := range f.Lines {
		eol := ""
		if strings.HasSuffix(raw, "\r") {
			eol = "\r"
		}

		switch {
		case f.kinds[idx] == lineHeader && headerTag != "":
			out = append(out, headerTag+":"+eol)

		case f.kinds[idx] == lineEntry:
			value, ok := values[idx]
			if !ok {
				out = append(out, raw)
				continue
			}
			out = append(out, byLine[idx].Format(value)+eol)

		default:
			out = append(out, raw)
		}
	}
	return out
}

// Format renders the entry with a replacement value. Entries parsed
// without a version tag are written as version 0, which the engine treats
// the same way.
func (e *Entry) Format(value string) string {
	return fmt.Sprintf("%s%s:%d \"%s\"%s", e.Indent, e.Key, e.Version, EscapeValue(value), e.Suffix)
}

// EscapeValue escapes double quotes that are not already escaped.
func EscapeValue(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	backslashes := 0
	for _, r := range s {
		if r == '"' && backslashes%2 == 0 {
			b.WriteByte('\\')
		}
		if r == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Render joins lines and encodes them as UTF-8 with a byte order mark.
func Render(lines []string, finalNewline bool) []byte {
	var buf bytes.Buffer
	for i, l := range lines {
		buf.WriteString(l)
		if i < len(lines)-1 || finalNewline {
			buf.WriteByte('\n')
		}
	}
	out, _, err := transform.Bytes(unicode.UTF8BOM.NewEncoder(), buf.Bytes())
	if err != nil {
		return append([]byte("\ufeff"), buf.Bytes()...)
	}
	return out
}

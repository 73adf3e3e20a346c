package assetfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sample = "\ufeffl_english:\n" +
	" # comment\n" +
	"\n" +
	" key_a:0 \"Hello\"\n" +
	" key_b: \"Say \\\"hi\\\"\" # note\n" +
	" garbage line\n"

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if f.Header != "l_english" || f.HeaderLine != 0 {
		t.Fatalf("header = %q at %d, want l_english at 0", f.Header, f.HeaderLine)
	}
	if len(f.Lines) != 6 {
		t.Fatalf("len(Lines) = %d, want 6", len(f.Lines))
	}
	if !f.FinalNewline {
		t.Fatalf("FinalNewline = false, want true")
	}
	if !reflect.DeepEqual(f.Unparsed, []int{5}) {
		t.Fatalf("Unparsed = %v, want [5]", f.Unparsed)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(f.Entries))
	}

	a := f.Entries[0]
	if a.Line != 3 || a.Key != "key_a" || !a.HasVersion || a.Version != 0 || a.Value != "Hello" || a.Indent != " " {
		t.Fatalf("entry a = %#v", a)
	}

	b := f.Entries[1]
	if b.Key != "key_b" || b.HasVersion || b.Value != `Say \"hi\"` || b.Suffix != " # note" {
		t.Fatalf("entry b = %#v", b)
	}
}

func TestParseVersionAndDottedKeys(t *testing.T) {
	f, err := Parse([]byte("l_english:\n  ideas.desc-x:12 \"Text\"\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(f.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(f.Entries))
	}
	e := f.Entries[0]
	if e.Key != "ideas.desc-x" || e.Version != 12 || e.Indent != "  " {
		t.Fatalf("entry = %#v", e)
	}
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	inputs := []string{
		sample,
		"l_english:\r\n key:0 \"CRLF value\"\r\n",
		"l_english:\n key:0 \"no final newline\"",
	}
	for _, in := range inputs {
		f, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		got := Render(f.Reassemble("", nil), f.FinalNewline)
		want := []byte(in)
		if !bytes.HasPrefix(want, []byte("\ufeff")) {
			want = append([]byte("\ufeff"), want...)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip of %q = %q", in, got)
		}
	}
}

func TestReassembleAppliesValues(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	lines := f.Reassemble("l_korean", map[int]string{
		3: "안녕",
		4: `말하기 "안녕"`,
	})
	want := []string{
		"l_korean:",
		" # comment",
		"",
		` key_a:0 "안녕"`,
		` key_b:0 "말하기 \"안녕\"" # note`,
		" garbage line",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("Reassemble() =\n%q\nwant\n%q", lines, want)
	}
}

func TestReassembleKeepsCRLFAndAddsMissingHeader(t *testing.T) {
	f, err := Parse([]byte(" key:0 \"x\"\r\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	lines := f.Reassemble("l_korean", map[int]string{0: "y"})
	want := []string{"l_korean:", " key:0 \"y\"\r"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("Reassemble() = %q, want %q", lines, want)
	}
}

func TestEscapeValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: `a "b" c`, want: `a \"b\" c`},
		{in: `already \"escaped\"`, want: `already \"escaped\"`},
		{in: `slash \\"`, want: `slash \\\"`},
	}
	for _, tc := range cases {
		if got := EscapeValue(tc.in); got != tc.want {
			t.Fatalf("EscapeValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRenderAddsBOM(t *testing.T) {
	got := Render([]string{"l_korean:", " k:0 \"v\""}, true)
	want := "\ufeffl_korean:\n k:0 \"v\"\n"
	if string(got) != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	latin1 := "l_english:\n# caf\xe9 comment\n key:0 \"Victory\"\n"
	if _, err := Parse([]byte(latin1)); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("Parse(latin1) error = %v, want ErrInvalidEncoding", err)
	}

	path := filepath.Join(t.TempDir(), "x_l_english.yml")
	if err := os.WriteFile(path, []byte(latin1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFile(path); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("ParseFile(latin1) error = %v, want ErrInvalidEncoding", err)
	}
}

func TestNonASCIICommentRoundTrips(t *testing.T) {
	src := "\ufeffl_english:\n# café comment\n key:0 \"Victory\"\n"
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := Render(f.Lines, f.FinalNewline); string(got) != src {
		t.Fatalf("Render() = %q, want %q", got, src)
	}
}

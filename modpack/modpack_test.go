package modpack

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseDescriptor(t *testing.T) {
	d := ParseDescriptor([]byte(`version="2.3"
tags={
	"Gameplay"
	"Historical"
}
name="Road to \"56\""
supported_version="1.14.*"
remote_file_id="820260968"
picture="thumbnail.png"
`))
	want := &Descriptor{
		Name:             `Road to "56"`,
		Version:          "2.3",
		Tags:             []string{"Gameplay", "Historical"},
		SupportedVersion: "1.14.*",
		RemoteFileID:     "820260968",
	}
	if !reflect.DeepEqual(d, want) {
		t.Fatalf("ParseDescriptor() = %+v, want %+v", d, want)
	}
}

func TestReadDescriptorWithoutFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "my_mod")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	d, err := ReadDescriptor(dir)
	if err != nil || d.Name != "my_mod" {
		t.Fatalf("ReadDescriptor() = %+v, %v", d, err)
	}
}

func TestFolderName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		id   string
		want string
	}{
		{"820260968", "translate_mod_820260968_1700000000"},
		{"", "translate_mod_local_1700000000"},
		{"../../etc", "translate_mod_etc_1700000000"},
	}
	for _, tc := range tests {
		if got := FolderName(&Descriptor{RemoteFileID: tc.id}, now); got != tc.want {
			t.Errorf("FolderName(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestWriteDescriptors(t *testing.T) {
	root := t.TempDir()
	src := &Descriptor{Name: "Kaiserreich", RemoteFileID: "1521695605", SupportedVersion: "1.14.*"}
	p := New(root, src, time.Unix(1700000000, 0))

	if p.Dir != filepath.Join(root, "translate_mod_1521695605_1700000000") {
		t.Fatalf("Dir = %q", p.Dir)
	}
	if err := p.WriteDescriptors(nil); err != nil {
		t.Fatalf("WriteDescriptors() error: %v", err)
	}

	inner, err := os.ReadFile(filepath.Join(p.Dir, DescriptorName))
	if err != nil {
		t.Fatal(err)
	}
	want := "version=\"1.0\"\ntags={\n\t\"Translation\"\n}\nname=\"[Translate] Kaiserreich\"\n" +
		"dependencies={\n\t\"Kaiserreich\"\n}\nsupported_version=\"1.14.*\"\n"
	if string(inner) != want {
		t.Fatalf("descriptor.mod =\n%s\nwant\n%s", inner, want)
	}

	outer, err := os.ReadFile(p.ModFile)
	if err != nil {
		t.Fatal(err)
	}
	wantPath := "path=\"" + filepath.ToSlash(p.Dir) + "\"\n"
	if !strings.HasPrefix(string(outer), want) || !strings.HasSuffix(string(outer), wantPath) {
		t.Fatalf("%s =\n%s", filepath.Base(p.ModFile), outer)
	}

	parsed := ParseDescriptor(outer)
	if parsed.Name != "[Translate] Kaiserreich" || !reflect.DeepEqual(parsed.Dependencies, []string{"Kaiserreich"}) {
		t.Fatalf("re-parsed descriptor = %+v", parsed)
	}
}

func TestNewDefaultsSupportedVersion(t *testing.T) {
	p := New(t.TempDir(), &Descriptor{Name: "x"}, time.Now())
	if p.Descriptor.SupportedVersion != DefaultSupportedVersion {
		t.Fatalf("SupportedVersion = %q", p.Descriptor.SupportedVersion)
	}
}

func TestZip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "translate_mod_local_1")
	writeFile(t, filepath.Join(dir, DescriptorName), "name=\"x\"\n")
	writeFile(t, filepath.Join(dir, "localisation", "korean", "events_l_korean.yml"), "\ufeffl_korean:\n")

	out, err := Zip(dir)
	if err != nil {
		t.Fatalf("Zip() error: %v", err)
	}
	if out != dir+".zip" {
		t.Fatalf("Zip() = %q", out)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == DescriptorName {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != "name=\"x\"\n" {
				t.Fatalf("descriptor content = %q", data)
			}
		}
	}
	sort.Strings(names)
	want := []string{DescriptorName, "localisation/korean/events_l_korean.yml"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
}

func TestZipMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	if _, err := Zip(dir); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(dir + ".zip"); !os.IsNotExist(err) {
		t.Fatalf("partial archive left behind: %v", err)
	}
}

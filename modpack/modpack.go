// Package modpack turns a translated localisation tree into a standalone
// translation mod: a folder with its own descriptor.mod, the launcher's
// <folder>.mod next to it, and optionally a zip archive of the folder.
package modpack

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/modloc/modloc/assetfile"
)

// DescriptorName is the descriptor file every mod folder carries.
const DescriptorName = "descriptor.mod"

// DefaultSupportedVersion is used when the source mod does not declare one.
const DefaultSupportedVersion = "1.*"

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

// Descriptor holds the launcher metadata of a mod.
type Descriptor struct {
	Name             string
	Version          string
	Tags             []string
	Dependencies     []string
	SupportedVersion string
	// RemoteFileID is the workshop id; empty for local mods.
	RemoteFileID string
	// Path is only written to the launcher's <folder>.mod file.
	Path string
}

var (
	descScalar = regexp.MustCompile(`(?m)^\s*([a-z_]+)\s*=\s*"((?:[^"\\]|\\.)*)"`)
	descList   = regexp.MustCompile(`(?s)([a-z_]+)\s*=\s*\{([^}]*)\}`)
	descQuoted = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// ParseDescriptor reads the fields modloc cares about from descriptor
// content. Unknown keys are ignored.
func ParseDescriptor(data []byte) *Descriptor {
	d := &Descriptor{}
	text := string(data)
	for _, m := range descScalar.FindAllStringSubmatch(text, -1) {
		v := unquote(m[2])
		switch m[1] {
		case "name":
			d.Name = v
		case "version":
			d.Version = v
		case "supported_version":
			d.SupportedVersion = v
		case "remote_file_id":
			d.RemoteFileID = v
		case "path":
			d.Path = v
		}
	}
	for _, m := range descList.FindAllStringSubmatch(text, -1) {
		var values []string
		for _, q := range descQuoted.FindAllStringSubmatch(m[2], -1) {
			values = append(values, unquote(q[1]))
		}
		switch m[1] {
		case "tags":
			d.Tags = values
		case "dependencies":
			d.Dependencies = values
		}
	}
	return d
}

// ReadDescriptor parses the descriptor.mod of the mod at dir. A mod
// without one gets a descriptor named after its directory.
func ReadDescriptor(dir string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorName))
	if errors.Is(err, os.ErrNotExist) {
		return &Descriptor{Name: filepath.Base(dir)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	d := ParseDescriptor(data)
	if d.Name == "" {
		d.Name = filepath.Base(dir)
	}
	return d, nil
}

// Render formats the descriptor in launcher syntax. Path is written only
// when set.
func (d *Descriptor) Render() []byte {
	var b strings.Builder
	if d.Version != "" {
		fmt.Fprintf(&b, "version=%s\n", quote(d.Version))
	}
	writeList(&b, "tags", d.Tags)
	fmt.Fprintf(&b, "name=%s\n", quote(d.Name))
	writeList(&b, "dependencies", d.Dependencies)
	if d.SupportedVersion != "" {
		fmt.Fprintf(&b, "supported_version=%s\n", quote(d.SupportedVersion))
	}
	if d.Path != "" {
		fmt.Fprintf(&b, "path=%s\n", quote(filepath.ToSlash(d.Path)))
	}
	return []byte(b.String())
}

func writeList(b *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s={\n", key)
	for _, v := range values {
		fmt.Fprintf(b, "\t%s\n", quote(v))
	}
	b.WriteString("}\n")
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func unquote(s string) string {
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}

// ---------------------------------------------------------------------------
// Package layout
// ---------------------------------------------------------------------------

// Package is a translation mod laid out under a launcher mod folder.
type Package struct {
	// Root is the launcher mod folder holding ModFile and Dir.
	Root string
	// Dir is the translation mod folder; localisation/ goes inside it.
	Dir string
	// ModFile is the launcher's <folder>.mod file.
	ModFile string
	// Descriptor is the translation mod's descriptor without Path.
	Descriptor Descriptor
}

// FolderName returns translate_mod_<id>_<unix seconds>. Local mods use the
// id "local".
func FolderName(src *Descriptor, now time.Time) string {
	id := sanitize(src.RemoteFileID)
	if id == "" {
		id = "local"
	}
	return fmt.Sprintf("translate_mod_%s_%d", id, now.Unix())
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "")
}

// New lays out a translation mod for src under root. Nothing is written
// until WriteDescriptors is called.
func New(root string, src *Descriptor, now time.Time) *Package {
	folder := FolderName(src, now)
	supported := src.SupportedVersion
	if supported == "" {
		supported = DefaultSupportedVersion
	}
	return &Package{
		Root:    root,
		Dir:     filepath.Join(root, folder),
		ModFile: filepath.Join(root, folder+".mod"),
		Descriptor: Descriptor{
			Name:             "[Translate] " + src.Name,
			Version:          "1.0",
			Tags:             []string{"Translation"},
			Dependencies:     []string{src.Name},
			SupportedVersion: supported,
		},
	}
}

// WriteDescriptors writes descriptor.mod inside Dir and the launcher file
// next to it, through w.
func (p *Package) WriteDescriptors(w *assetfile.Writer) error {
	if w == nil {
		w = assetfile.NewWriter()
	}
	inner := p.Descriptor
	inner.Path = ""
	if err := w.WriteFile(filepath.Join(p.Dir, DescriptorName), inner.Render()); err != nil {
		return err
	}
	outer := p.Descriptor
	outer.Path = p.Dir
	return w.WriteFile(p.ModFile, outer.Render())
}

// ---------------------------------------------------------------------------
// Archive
// ---------------------------------------------------------------------------

// Zip archives the contents of dir into <dir>.zip and returns its path.
// Entry names are relative to dir and use forward slashes.
func Zip(dir string) (string, error) {
	dir = filepath.Clean(dir)
	out := dir + ".zip"

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)

	werr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	cerr := zw.Close()
	ferr := f.Close()
	if err := errors.Join(werr, cerr, ferr); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("archiving %s: %w", dir, err)
	}
	return out, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	_, err = io.Copy(dst, src)
	return err
}

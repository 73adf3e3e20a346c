// Package memory builds the translation memory: an exact-match index of
// official source-to-target strings taken from the base game's own
// localisation files.
//
// The reference corpus follows the engine layout:
//
//	<root>/localisation/english/**/<name>_l_english.yml
//	<root>/localisation/korean/**/<name>_l_korean.yml
//
// Files are paired by sub-directory and base name (falling back to the base
// name alone when the directory layouts differ), and every key present in
// both files contributes one source-to-target pair.
package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/modloc/modloc/assetfile"
)

// ErrCorpusNotFound is returned when the source or target localisation
// folder does not exist under the corpus root.
var ErrCorpusNotFound = errors.New("translation memory corpus not found")

// Index maps exact source strings to their official translation. An Index
// is read-only after construction and safe for concurrent lookups. A nil
// *Index behaves as an empty index.
type Index struct {
	pairs map[string]string
}

// NewIndex wraps an existing source-to-target map.
func NewIndex(pairs map[string]string) *Index {
	if pairs == nil {
		pairs = make(map[string]string)
	}
	return &Index{pairs: pairs}
}

// Lookup returns the stored translation for an exact source string.
func (i *Index) Lookup(source string) (string, bool) {
	if i == nil {
		return "", false
	}
	t, ok := i.pairs[source]
	return t, ok
}

// Len returns the number of stored pairs.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.pairs)
}

// Pairs returns a copy of the stored pairs.
func (i *Index) Pairs() map[string]string {
	out := make(map[string]string, i.Len())
	if i == nil {
		return out
	}
	for k, v := range i.pairs {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

// Options controls how the corpus is read.
type Options struct {
	// Root is the base game directory containing localisation/.
	Root string
	// SourceFolder and TargetFolder are engine language folders, e.g.
	// "english" and "korean".
	SourceFolder string
	TargetFolder string
	// MinSourceLength is the minimum source length in characters for a
	// pair to be recorded. Default: 2.
	MinSourceLength int
	// OnLog receives informational messages (unreadable files and so on).
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveMinSourceLength() int {
	if o.MinSourceLength > 0 {
		return o.MinSourceLength
	}
	return 2
}

func (o *Options) sourceDir() string {
	return filepath.Join(o.Root, "localisation", o.SourceFolder)
}

func (o *Options) targetDir() string {
	return filepath.Join(o.Root, "localisation", o.TargetFolder)
}

// corpusFile is one localisation file of the corpus.
type corpusFile struct {
	path string
	// rel is the path relative to the language folder with the
	// _l_<lang>.yml suffix removed, e.g. "events/wuw".
	rel string
	// base is the last element of rel.
	base string
	size int64
	mod  int64
}

// Build reads the corpus and returns the index.
func Build(opts Options) (*Index, error) {
	srcFiles, dstFiles, err := scanCorpus(opts)
	if err != nil {
		return nil, err
	}

	byRel := make(map[string]corpusFile, len(srcFiles))
	byBase := make(map[string]corpusFile, len(srcFiles))
	for _, f := range srcFiles {
		byRel[f.rel] = f
		if _, dup := byBase[f.base]; !dup {
			byBase[f.base] = f
		}
	}

	minLen := opts.effectiveMinSourceLength()
	pairs := make(map[string]string)
	cache := make(map[string]map[string]string)

	for _, tf := range dstFiles {
		sf, ok := byRel[tf.rel]
		if !ok {
			sf, ok = byBase[tf.base]
		}
		if !ok {
			continue
		}

		srcValues, ok := cache[sf.path]
		if !ok {
			srcValues = make(map[string]string)
			for _, e := range readEntries(sf.path, &opts) {
				srcValues[e.Key] = e.Value
			}
			cache[sf.path] = srcValues
		}

		// Entry order makes the winner among duplicate sources the last
		// one seen, files taken in lexical order.
		for _, e := range readEntries(tf.path, &opts) {
			source, ok := srcValues[e.Key]
			if !ok || source == "" || utf8.RuneCountInString(source) < minLen {
				continue
			}
			pairs[source] = e.Value
		}
	}

	return NewIndex(pairs), nil
}

// readEntries returns the entries of one file in file order. Unreadable
// files are logged and treated as empty.
func readEntries(path string, opts *Options) []assetfile.Entry {
	f, err := assetfile.ParseFile(path)
	if err != nil {
		opts.log("skipping %s: %v", path, err)
		return nil
	}
	return f.Entries
}

// scanCorpus lists the source and target files in lexical order.
func scanCorpus(opts Options) (src, dst []corpusFile, err error) {
	for _, dir := range []string{opts.sourceDir(), opts.targetDir()} {
		info, statErr := os.Stat(dir)
		if statErr != nil || !info.IsDir() {
			return nil, nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, dir)
		}
	}

	src, err = listFiles(opts.sourceDir(), opts.SourceFolder)
	if err != nil {
		return nil, nil, err
	}
	dst, err = listFiles(opts.targetDir(), opts.TargetFolder)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

func listFiles(dir, folder string) ([]corpusFile, error) {
	suffix := "_l_" + folder + ".yml"
	var files []corpusFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || !hasSuffixFold(name, suffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, corpusFile{
			path: path,
			rel:  filepath.ToSlash(rel[:len(rel)-len(suffix)]),
			base: name[:len(name)-len(suffix)],
			size: info.Size(),
			mod:  info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	return files, nil
}

// hasSuffixFold reports whether name ends in suffix, ignoring case the way
// the source file discovery does.
func hasSuffixFold(name, suffix string) bool {
	return len(name) >= len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix)
}

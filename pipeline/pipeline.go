// Package pipeline drives a whole translation run for one mod: it finds
// the mod's source-language localisation files, sends each one through the
// scheduler and writes the reconstructed target-language files, keeping a
// task record up to date for pollers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modloc/modloc/assetfile"
	"github.com/modloc/modloc/langmeta"
	"github.com/modloc/modloc/memory"
	"github.com/modloc/modloc/report"
	"github.com/modloc/modloc/scheduler"
	"github.com/modloc/modloc/task"
	"github.com/modloc/modloc/translate"
)

// LocalisationDir is the mod sub-directory holding text assets.
const LocalisationDir = "localisation"

// Mod identifies the mod to translate.
type Mod struct {
	// Path is the mod's root directory (the one containing localisation/).
	Path string
	Name string
}

// Options configures the pipeline.
type Options struct {
	Store      *task.Store
	Translator scheduler.Preserving
	Profile    translate.Profile
	// Memory short-circuits known strings; nil disables it.
	Memory *memory.Index

	SourceLang string // default "en"
	TargetLang string
	// OutputDir receives localisation/<target>/...; defaults to the mod
	// directory itself.
	OutputDir string
	Writer    *assetfile.Writer

	Verbose bool
	OnLog   func(format string, args ...any)
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else {
		o.log(format, args...)
	}
}

func (o *Options) effectiveSourceLang() string {
	if o.SourceLang != "" {
		return o.SourceLang
	}
	return "en"
}

// Summary describes a finished run.
type Summary struct {
	Files   int
	Written int
	Stats   scheduler.Stats
	// OutputPath is the localisation directory the files were written to.
	OutputPath string
	// ErrorLog is the sidecar path, empty when nothing failed.
	ErrorLog string
	Errors   int
}

// Pipeline runs translation tasks.
type Pipeline struct {
	opts Options
}

// New validates opts and returns a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: task store is required")
	}
	if opts.Translator == nil {
		return nil, errors.New("pipeline: translator is required")
	}
	if opts.TargetLang == "" {
		return nil, errors.New("pipeline: target language is required")
	}
	if opts.Writer == nil {
		opts.Writer = assetfile.NewWriter()
	}
	return &Pipeline{opts: opts}, nil
}

// Start creates a task and runs it in the background. The returned ID can
// be polled through the store.
func (p *Pipeline) Start(ctx context.Context, mod Mod) string {
	id := p.opts.Store.Create()
	go func() {
		_, _ = p.Run(ctx, id, mod)
	}()
	return id
}

// Run translates mod synchronously, reporting progress on the task taskID.
// The returned error is the pipeline-level failure, if any; per-entry and
// per-file failures only show up in the summary and the sidecar log.
func (p *Pipeline) Run(ctx context.Context, taskID string, mod Mod) (sum Summary, err error) {
	o := &p.opts
	store := o.Store
	errLog := report.NewLog()

	srcFolder := langmeta.Folder(o.effectiveSourceLang())
	tgtFolder := langmeta.Folder(o.TargetLang)
	outRoot := o.OutputDir
	if outRoot == "" {
		outRoot = mod.Path
	}
	sum.OutputPath = filepath.Join(outRoot, LocalisationDir)

	store.Update(taskID, func(t *task.Task) {
		t.Status = task.StatusRunning
		t.StartTime = store.Now()
	})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			errLog.Add(report.PipelineError, mod.Name, err.Error())
			o.logError("Translation of %s failed: %v", modLabel(mod), err)
		}

		sidecar, serr := errLog.WriteSidecar(outRoot)
		if serr != nil {
			o.logError("Writing error log: %v", serr)
		}
		sum.ErrorLog = sidecar
		sum.Errors = errLog.Len()

		store.Update(taskID, func(t *task.Task) {
			if err != nil {
				t.Status = task.StatusError
				t.Error = err.Error()
				return
			}
			t.Status = task.StatusCompleted
			t.Percent = 100
			t.OutputPath = sum.OutputPath
		})
	}()

	files, err := FindSourceFiles(mod.Path, srcFolder)
	if err != nil {
		return sum, err
	}
	if len(files) == 0 {
		return sum, fmt.Errorf("no %s files found under %s", "*_l_"+srcFolder+".yml", filepath.Join(mod.Path, LocalisationDir))
	}
	if err := os.MkdirAll(outRoot, 0755); err != nil {
		return sum, fmt.Errorf("creating output directory: %w", err)
	}

	sum.Files = len(files)
	store.Update(taskID, func(t *task.Task) { t.TotalFiles = len(files) })
	o.log("Translating %d file(s) of %s: %s -> %s", len(files), modLabel(mod), srcFolder, tgtFolder)

	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		stats, wrote, err := p.translateFile(ctx, taskID, mod, rel, i, len(files), srcFolder, tgtFolder, outRoot, errLog)
		if err != nil {
			return sum, err
		}
		sum.Stats.Memory += stats.Memory
		sum.Stats.Translated += stats.Translated
		sum.Stats.Failed += stats.Failed
		if wrote {
			sum.Written++
		}

		processed := i + 1
		store.Update(taskID, func(t *task.Task) {
			t.ProcessedFiles = processed
			t.Percent = 100 * float64(processed) / float64(len(files))
		})
	}
	return sum, nil
}

// translateFile handles one source file. A returned error aborts the run;
// parse and write failures are logged and reported as wrote == false.
func (p *Pipeline) translateFile(ctx context.Context, taskID string, mod Mod, rel string, index, total int,
	srcFolder, tgtFolder, outRoot string, errLog *report.Log) (scheduler.Stats, bool, error) {

	o := &p.opts
	store := o.Store
	srcPath := filepath.Join(mod.Path, LocalisationDir, rel)

	f, err := assetfile.ParseFile(srcPath)
	if err != nil {
		errLog.Add(report.ParseError, rel, err.Error())
		o.logError("Skipping %s: %v", rel, err)
		return scheduler.Stats{}, false, nil
	}
	for _, idx := range f.Unparsed {
		errLog.Addf(report.ParseError, fmt.Sprintf("%s:%d", rel, idx+1), "unrecognised line kept verbatim: %s", strings.TrimSpace(f.Lines[idx]))
	}

	entries := len(f.Entries)
	store.Update(taskID, func(t *task.Task) {
		t.CurrentFile = rel
		t.TotalEntries = entries
		t.CurrentEntry = 0
	})
	if o.Verbose {
		o.log("[%d/%d] %s: %d entries", index+1, total, rel, entries)
	}

	items := make([]scheduler.Item, len(f.Entries))
	for i, e := range f.Entries {
		items[i] = scheduler.Item{Line: e.Line, Key: e.Key, Value: e.Value}
	}

	var lookup scheduler.Lookup
	if o.Memory != nil {
		lookup = o.Memory.Lookup
	}
	results, stats, err := scheduler.Run(ctx, items, scheduler.Options{
		Profile:    o.Profile,
		Translator: o.Translator,
		TargetLang: o.TargetLang,
		Memory:     lookup,
		Log:        errLog,
		Context:    rel,
		Verbose:    o.Verbose,
		OnLog:      o.OnLog,
		OnItem: func(scheduler.Result) {
			store.Update(taskID, func(t *task.Task) {
				t.EntryProcessed(store.Now())
				if t.TotalEntries > 0 && t.TotalFiles > 0 {
					fileShare := float64(t.CurrentEntry) / float64(t.TotalEntries)
					t.Percent = 100 * (float64(index) + fileShare) / float64(t.TotalFiles)
				}
			})
		},
	})
	if err != nil {
		return stats, false, fmt.Errorf("translating %s: %w", rel, err)
	}

	values := make(map[int]string, len(results))
	for _, r := range results {
		values[r.Line] = r.Value
	}
	lines := f.Reassemble(langmeta.Tag(tgtFolder), values)

	outPath := filepath.Join(outRoot, LocalisationDir, TargetRelPath(rel, srcFolder, tgtFolder))
	if err := o.Writer.WriteFile(outPath, assetfile.Render(lines, f.FinalNewline)); err != nil {
		errLog.Add(report.WriteError, outPath, err.Error())
		o.logError("Writing %s: %v", outPath, err)
		return stats, false, nil
	}
	if o.Verbose {
		o.log("Wrote %s (memory %d, translated %d, failed %d)", outPath, stats.Memory, stats.Translated, stats.Failed)
	}
	return stats, true, nil
}

// FindSourceFiles lists the *_l_<folder>.yml files under the mod's
// localisation directory as sorted paths relative to it.
func FindSourceFiles(modPath, srcFolder string) ([]string, error) {
	root := filepath.Join(modPath, LocalisationDir)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("mod has no %s directory: %w", LocalisationDir, err)
	}
	suffix := "_l_" + strings.ToLower(srcFolder) + ".yml"

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// TargetRelPath maps a source file path (relative to localisation/) to the
// target file path: a directory segment named after the source language is
// renamed, root-level files move into the target language directory, and
// the _l_<language> file suffix is swapped.
func TargetRelPath(rel, srcFolder, tgtFolder string) string {
	dir, base := filepath.Split(rel)
	dir = filepath.Clean(dir)

	if dir == "." {
		dir = tgtFolder
	} else {
		parts := strings.Split(dir, string(filepath.Separator))
		for i, part := range parts {
			if strings.EqualFold(part, srcFolder) {
				parts[i] = tgtFolder
			}
		}
		dir = filepath.Join(parts...)
	}

	srcSuffix := "_l_" + strings.ToLower(srcFolder) + ".yml"
	if strings.HasSuffix(strings.ToLower(base), srcSuffix) {
		base = base[:len(base)-len(srcSuffix)]
	} else {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(dir, base+"_l_"+tgtFolder+".yml")
}

func modLabel(m Mod) string {
	if m.Name != "" {
		return m.Name
	}
	return filepath.Base(m.Path)
}

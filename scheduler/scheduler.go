// Package scheduler runs the translatable entries of one file through the
// translation memory and the backend, batch by batch, under a concurrency
// limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/modloc/modloc/report"
	"github.com/modloc/modloc/translate"
)

// ErrPanic wraps a panic recovered from a translator call. It aborts the
// run like a cancelled context.
var ErrPanic = errors.New("translator panicked")

// Item is one translatable entry.
type Item struct {
	// Line is the entry's index in the file, used to put the result back.
	Line  int
	Key   string
	Value string
}

// Source says where a result came from.
type Source int

const (
	FromBackend Source = iota
	FromMemory
	FromFallback
)

func (s Source) String() string {
	switch s {
	case FromMemory:
		return "memory"
	case FromFallback:
		return "fallback"
	default:
		return "backend"
	}
}

// Result is the outcome for one Item.
type Result struct {
	Line   int
	Key    string
	Value  string
	Source Source
	// Err is set when the value fell back to the source text.
	Err error
}

// Stats counts results by source.
type Stats struct {
	Memory     int
	Translated int
	Failed     int
}

// Total returns the number of processed items.
func (s Stats) Total() int {
	return s.Memory + s.Translated + s.Failed
}

// Preserving is satisfied by *translate.Preserver.
type Preserving interface {
	TranslateWithPreservation(ctx context.Context, text, targetLang string) (string, error)
}

// Lookup returns the known translation for a source value.
type Lookup func(source string) (string, bool)

// Options configures a Run.
type Options struct {
	Profile    translate.Profile
	Translator Preserving
	TargetLang string
	// Memory is consulted before the backend; nil disables it.
	Memory Lookup
	// Log receives one TranslationError per failed item; nil disables it.
	Log *report.Log
	// Context labels log entries, usually the file name.
	Context string
	// OnItem is called exactly once per item, from the worker goroutine.
	OnItem func(r Result)
	// OnLog receives verbose per-item messages.
	OnLog   func(format string, args ...any)
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.Verbose && o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Run processes items and returns one result per item, in input order.
// Individual failures never abort the run; only a cancelled context or a
// panicking translator does, in which case the results gathered so far are
// discarded.
func Run(ctx context.Context, items []Item, opts Options) ([]Result, Stats, error) {
	if opts.Translator == nil {
		return nil, Stats{}, fmt.Errorf("scheduler: no translator")
	}
	profile := opts.Profile.Normalize()
	results := make([]Result, len(items))

	var memHits, translated, failed atomic.Int64
	var flight singleflight.Group

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profile.MaxConcurrentBatches)

	for start := 0; start < len(items); start += profile.BatchSize {
		end := min(start+profile.BatchSize, len(items))
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				r := processItem(gctx, items[i], &opts, &flight)
				switch r.Source {
				case FromMemory:
					memHits.Add(1)
				case FromFallback:
					failed.Add(1)
				default:
					translated.Add(1)
				}
				results[i] = r
				if opts.OnItem != nil {
					opts.OnItem(r)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	stats := Stats{
		Memory:     int(memHits.Load()),
		Translated: int(translated.Load()),
		Failed:     int(failed.Load()),
	}
	return results, stats, nil
}

func processItem(ctx context.Context, it Item, opts *Options, flight *singleflight.Group) Result {
	r := Result{Line: it.Line, Key: it.Key}

	if opts.Memory != nil {
		if v, ok := opts.Memory(it.Value); ok {
			opts.log("[DEBUG] %s: memory hit", it.Key)
			r.Value, r.Source = v, FromMemory
			return r
		}
	}

	// Identical values translated at the same time share one backend call.
	v, err, _ := flight.Do(it.Value, func() (any, error) {
		return opts.Translator.TranslateWithPreservation(ctx, it.Value, opts.TargetLang)
	})
	if err != nil {
		r.Value, r.Source, r.Err = it.Value, FromFallback, err
		if opts.Log != nil {
			opts.Log.Add(report.TranslationError, fmt.Sprintf("%s:%d %s", opts.Context, it.Line+1, it.Key), err.Error())
		}
		return r
	}
	opts.log("[DEBUG] %s: translated", it.Key)
	r.Value, r.Source = v.(string), FromBackend
	return r
}

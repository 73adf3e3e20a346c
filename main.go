// modloc: machine translation of Paradox mod localisation files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/modloc/modloc/assetfile"
	"github.com/modloc/modloc/config"
	"github.com/modloc/modloc/glossary"
	"github.com/modloc/modloc/guard"
	"github.com/modloc/modloc/i18n"
	"github.com/modloc/modloc/langmeta"
	"github.com/modloc/modloc/memory"
	"github.com/modloc/modloc/modpack"
	"github.com/modloc/modloc/pipeline"
	"github.com/modloc/modloc/report"
	"github.com/modloc/modloc/settings"
	"github.com/modloc/modloc/task"
	"github.com/modloc/modloc/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

// rootDir is where .modloc.yaml and .env are looked up.
var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modloc",
		Short: i18n.T("Translate Paradox mod localisation files"),
		Long: `modloc translates the localisation/*.yml files of a Paradox mod into
another language while keeping scope commands, variables, color codes and
icons intact. Official strings of the base game are reused through a
translation memory; everything else goes to a translation backend.

Commands:
  translate   Translate a mod's localisation files
  memory      Build and inspect the translation memory
  backends    List translation backends
  models      List models offered by a backend
  auth        Manage stored API keys
  version     Show version information

Backends:
  google         Google Translate web endpoint (free, no key)
  openai         OpenAI chat completions (API key)
  groq           Groq (API key)
  claude         Anthropic Claude (API key)
  gemini         Google Gemini API (API key)
  ollama         Ollama local server
  custom-openai  Any OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", i18n.T("Directory containing .modloc.yaml and .env"))

	root.AddCommand(
		newTranslateCmd(),
		newMemoryCmd(),
		newBackendsCmd(),
		newModelsCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("modloc version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	mod, out                        string
	backend, apiKey, model, baseURL string
	proxy                           string
	timeout                         time.Duration
	source, target                  string
	game, glossary                  string
	batchSize, maxConcurrent        int
	prompt                          string
	verbose, noMemory               bool
	pack, zip                       bool
	pollInterval                    time.Duration
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: i18n.T("Translate a mod's localisation files"),
		Long: `Translate every localisation/**/*_l_<source>.yml file of a mod.

Output files are written as <out>/localisation/<target>/..._l_<target>.yml.
Entries that cannot be translated keep their source text and are listed in
translation_errors.log next to the output.

Examples:
  # Free Google endpoint, Korean output next to the mod
  modloc translate --mod ~/mods/my_mod

  # Reuse the base game's official Korean strings
  modloc translate --mod ~/mods/my_mod --game ~/games/hoi4 --target ko

  # Local model with a glossary
  modloc translate --mod ./my_mod --backend ollama --model qwen2.5 --glossary terms.yaml

  # Standalone translation mod next to the source mod, zipped
  modloc translate --mod ~/mods/my_mod --package --zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(a)
		},
	}

	cmd.Flags().StringVar(&a.mod, "mod", "", i18n.T("Mod directory containing localisation/ (required)"))
	cmd.Flags().StringVar(&a.out, "out", "", i18n.T("Output directory (default: the mod directory)"))

	cmd.Flags().StringVar(&a.backend, "backend", "", i18n.T("Translation backend (see 'modloc backends')"))
	cmd.Flags().StringVar(&a.model, "model", "", i18n.T("Model name (backend default when empty)"))
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", i18n.T("API key (or MODLOC_API_KEY env var)"))
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", i18n.T("Custom API base URL"))
	cmd.Flags().StringVar(&a.proxy, "proxy", "", i18n.T("HTTP/HTTPS proxy URL"))
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, i18n.T("Request timeout (0 = backend default)"))

	cmd.Flags().StringVar(&a.source, "source", "", i18n.T("Source language (default: en)"))
	cmd.Flags().StringVar(&a.target, "target", "", i18n.T("Target language (default: ko)"))
	cmd.Flags().StringVar(&a.game, "game", "", i18n.T("Base game directory used as translation memory"))
	cmd.Flags().StringVar(&a.glossary, "glossary", "", i18n.T("Glossary file (YAML or JSON)"))
	cmd.Flags().BoolVar(&a.noMemory, "no-memory", false, i18n.T("Do not use the translation memory"))

	cmd.Flags().IntVar(&a.batchSize, "batch-size", 0, i18n.T("Entries per batch (0 = backend profile)"))
	cmd.Flags().IntVar(&a.maxConcurrent, "max-concurrent", 0, i18n.T("Batches running at once (0 = backend profile)"))
	cmd.Flags().StringVar(&a.prompt, "prompt", "", i18n.T("Custom system prompt (use {{sourceLang}} and {{targetLang}})"))
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, i18n.T("Enable detailed logging"))
	cmd.Flags().BoolVar(&a.pack, "package", false, i18n.T("Emit a standalone translation mod with its own descriptor"))
	cmd.Flags().BoolVar(&a.zip, "zip", false, i18n.T("Also archive the translation mod as .zip (implies --package)"))

	cmd.Flags().DurationVar(&a.pollInterval, "poll-interval", 250*time.Millisecond, "Progress refresh interval")
	_ = cmd.Flags().MarkHidden("poll-interval")

	_ = cmd.MarkFlagRequired("mod")
	_ = cmd.MarkFlagDirname("mod")
	_ = cmd.MarkFlagDirname("out")
	_ = cmd.MarkFlagDirname("game")

	_ = cmd.RegisterFlagCompletionFunc("backend", completeBackends)
	_ = cmd.RegisterFlagCompletionFunc("target", completeLanguages)
	_ = cmd.RegisterFlagCompletionFunc("source", completeLanguages)

	return cmd
}

// loadConfig reads .env and .modloc.yaml from dir and applies MODLOC_*
// environment overrides.
func loadConfig(dir string) (*config.File, error) {
	if err := config.LoadEnv(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(dir)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// applyFlags overrides cfg with every flag the user set.
func applyFlags(cfg *config.File, a translateArgs) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Backend, a.backend)
	set(&cfg.Model, a.model)
	set(&cfg.BaseURL, a.baseURL)
	set(&cfg.Proxy, a.proxy)
	set(&cfg.SourceLang, a.source)
	set(&cfg.TargetLang, a.target)
	set(&cfg.Memory.GamePath, a.game)
	set(&cfg.Glossary, a.glossary)
	set(&cfg.OutputDir, a.out)
	set(&cfg.Prompt, a.prompt)
	if a.timeout > 0 {
		cfg.Timeout = a.timeout
	}
	if a.noMemory {
		cfg.Memory.Disabled = true
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
}

func runTranslate(a translateArgs) error {
	cfg, err := loadConfig(rootDir)
	if err != nil {
		return err
	}
	applyFlags(cfg, a)
	if cfg.Path() != "" {
		logInfo(i18n.T("Using configuration %s"), cfg.Path())
	}

	if strings.EqualFold(langmeta.Folder(cfg.SourceLang), langmeta.Folder(cfg.TargetLang)) {
		return fmt.Errorf(i18n.T("source and target language are the same (%s)"), cfg.TargetLang)
	}

	modPath, err := filepath.Abs(a.mod)
	if err != nil {
		return fmt.Errorf("resolving mod path: %w", err)
	}
	if info, err := os.Stat(modPath); err != nil || !info.IsDir() {
		return fmt.Errorf(i18n.T("mod directory not found: %s"), a.mod)
	}

	var pkg *modpack.Package
	if a.pack || a.zip {
		pkg, err = preparePackage(modPath, cfg.OutputDir, time.Now())
		if err != nil {
			return err
		}
		cfg.OutputDir = pkg.Dir
		logInfo(i18n.T("Translation mod: %s"), pkg.ModFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, stopping after the current entries..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	var gl *glossary.Glossary
	if cfg.Glossary != "" {
		gl, err = glossary.Load(cfg.Glossary)
		if err != nil {
			return err
		}
		logInfo(i18n.T("Glossary: %d term(s) from %s"), gl.Len(), cfg.Glossary)
	}

	backend, reg, err := buildBackend(cfg, a.apiKey, gl, a.verbose)
	if err != nil {
		return err
	}
	if err := checkBackend(ctx, reg.ID, cfg.BaseURL, cfg.Proxy); err != nil {
		return err
	}

	profile := cfg.ProfileFor(reg.ID, reg.Profile).Merge(translate.Profile{
		BatchSize:            a.batchSize,
		MaxConcurrentBatches: a.maxConcurrent,
	})

	retry := cfg.RetryPolicy()
	if a.verbose {
		retry.OnRetry = func(attempt int, wait time.Duration, err error) {
			logWarning(i18n.T("Attempt %d failed, retrying in %s: %v"), attempt, wait.Round(time.Millisecond), err)
		}
	}

	mem, err := loadMemory(ctx, cfg)
	if err != nil {
		return err
	}

	store := task.NewStore()
	p, err := pipeline.New(pipeline.Options{
		Store:      store,
		Translator: translate.WithRetryAndPreservation(backend, guard.New(), gl, retry),
		Profile:    profile,
		Memory:     mem,
		SourceLang: cfg.SourceLang,
		TargetLang: cfg.TargetLang,
		OutputDir:  cfg.OutputDir,
		Verbose:    a.verbose,
		OnLog: func(format string, args ...any) {
			if a.verbose {
				clearProgressLine(os.Stderr)
				logInfo(format, args...)
			}
		},
		OnError: func(format string, args ...any) {
			clearProgressLine(os.Stderr)
			logError(format, args...)
		},
	})
	if err != nil {
		return err
	}

	logInfo(i18n.T("Backend: %s (%s glossary, batch %d x %d)"), reg.Name, reg.Mode, profile.BatchSize, profile.MaxConcurrentBatches)
	logInfo(i18n.T("Translating %s: %s -> %s"), modPath, langmeta.Folder(cfg.SourceLang), langmeta.Folder(cfg.TargetLang))

	id := p.Start(ctx, pipeline.Mod{Path: modPath, Name: filepath.Base(modPath)})
	final := waitForTask(store, id, a.pollInterval, func(t task.Task) {
		renderProgress(os.Stderr, t)
	})
	clearProgressLine(os.Stderr)

	outRoot := cfg.OutputDir
	if outRoot == "" {
		outRoot = modPath
	}
	if err := printSummary(final, filepath.Join(outRoot, report.SidecarName), ctx.Err() != nil); err != nil {
		return err
	}
	if a.zip && final.Status == task.StatusCompleted {
		archive, err := modpack.Zip(pkg.Dir)
		if err != nil {
			return err
		}
		logSuccess(i18n.T("Archive written: %s"), archive)
	}
	return nil
}

// preparePackage lays out a translation mod for the mod at modPath under
// root (default: the directory holding the mod) and writes its descriptors.
func preparePackage(modPath, root string, now time.Time) (*modpack.Package, error) {
	src, err := modpack.ReadDescriptor(modPath)
	if err != nil {
		return nil, err
	}
	if root == "" {
		root = filepath.Dir(modPath)
	}
	pkg := modpack.New(root, src, now)
	w := assetfile.NewWriter()
	w.OnFallback = func(path, strategy string, err error) {
		logWarning(i18n.T("Writing %s via %s failed, trying next method: %v"), path, strategy, err)
	}
	if err := pkg.WriteDescriptors(w); err != nil {
		return nil, err
	}
	return pkg, nil
}

// buildBackend constructs the configured backend. Key, endpoint and model
// fall back to the credential store.
func buildBackend(cfg *config.File, apiKeyFlag string, gl *glossary.Glossary, verbose bool) (translate.Backend, translate.Registration, error) {
	registry := translate.DefaultRegistry()
	reg, ok := registry.Get(cfg.Backend)
	if !ok {
		return nil, reg, fmt.Errorf(i18n.T("unknown backend %q (available: %s)"), cfg.Backend, strings.Join(registry.IDs(), ", "))
	}

	stored := settings.Get(reg.ID)
	if cfg.BaseURL == "" && stored != nil {
		cfg.BaseURL = stored.BaseURL
	}
	if cfg.Model == "" && stored != nil {
		cfg.Model = stored.Model
	}

	key := config.ResolveAPIKey(apiKeyFlag, reg.EnvKey, func() string { return settings.GetAPIKey(reg.ID) })

	b, reg, err := registry.New(reg.ID, translate.Config{
		APIKey:       key,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Proxy:        cfg.Proxy,
		Timeout:      cfg.Timeout,
		SourceLang:   cfg.SourceLang,
		Glossary:     gl,
		SystemPrompt: cfg.Prompt,
		Temperature:  cfg.EffectiveTemperature(),
		Verbose:      verbose,
		OnLog: func(format string, args ...any) {
			clearProgressLine(os.Stderr)
			logWarning(format, args...)
		},
	})
	if err != nil {
		return nil, reg, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = reg.BaseURL
	}
	return b, reg, nil
}

// checkBackend fails fast when a local Ollama server is not reachable.
func checkBackend(ctx context.Context, id, baseURL, proxy string) error {
	if id != translate.BackendOllama {
		return nil
	}
	if err := translate.Ping(ctx, strings.TrimRight(baseURL, "/")+"/api/tags", 2*time.Second, proxy); err != nil {
		return fmt.Errorf("backend 'ollama' requires an Ollama server at %s\n\n"+
			"Start Ollama with: ollama serve\n"+
			"Install from: https://ollama.com\n"+
			"Alternative backends:\n"+
			"  --backend google          (free, no key)\n"+
			"  --backend openai          (requires API key)", baseURL)
	}
	return nil
}

// loadMemory builds the translation memory from the configured game
// directory, reusing the snapshot cache when the corpus is unchanged. It
// returns nil when no game directory is configured.
func loadMemory(ctx context.Context, cfg *config.File) (*memory.Index, error) {
	if cfg.Memory.Disabled || cfg.Memory.GamePath == "" {
		return nil, nil
	}

	cache := openCache(cfg.Memory.Cache)
	if cache != nil {
		defer cache.Close()
	}

	start := time.Now()
	idx, fromCache, err := memory.BuildCached(ctx, cache, memoryOptions(cfg))
	if err != nil {
		if errors.Is(err, memory.ErrCorpusNotFound) {
			logWarning(i18n.T("No translation memory: %v"), err)
			return nil, nil
		}
		return nil, fmt.Errorf("building translation memory: %w", err)
	}

	source := i18n.T("built")
	if fromCache {
		source = i18n.T("cached")
	}
	logInfo(i18n.T("Translation memory: %d entries (%s, %s)"), idx.Len(), source, time.Since(start).Round(time.Millisecond))
	return idx, nil
}

func memoryOptions(cfg *config.File) memory.Options {
	return memory.Options{
		Root:            cfg.Memory.GamePath,
		SourceFolder:    langmeta.Folder(cfg.SourceLang),
		TargetFolder:    langmeta.Folder(cfg.TargetLang),
		MinSourceLength: cfg.Memory.MinLength,
		OnLog:           logWarning,
	}
}

// openCache opens the snapshot cache at path (default: the data dir).
// Failures are logged and yield nil, which disables caching.
func openCache(path string) *memory.Cache {
	if path == "" {
		p, err := settings.MemoryCachePath()
		if err != nil {
			logWarning(i18n.T("Translation memory cache disabled: %v"), err)
			return nil
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		logWarning(i18n.T("Translation memory cache disabled: %v"), err)
		return nil
	}
	c, err := memory.OpenCache(path)
	if err != nil {
		logWarning(i18n.T("Translation memory cache disabled: %v"), err)
		return nil
	}
	return c
}

// ---------------------------------------------------------------------------
// Progress
// ---------------------------------------------------------------------------

// waitForTask polls the store until the task reaches a terminal status,
// calling onTick with every snapshot, and returns the final snapshot.
func waitForTask(store *task.Store, id string, interval time.Duration, onTick func(task.Task)) task.Task {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t, ok := store.Get(id)
		if !ok {
			return task.Task{ID: id, Status: task.StatusError, Error: "task not found"}
		}
		if onTick != nil {
			onTick(t)
		}
		if t.Status.Terminal() {
			return t
		}
		<-ticker.C
	}
}

// progressBar renders a colored bar of the given width followed by the
// percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// progressLine formats one status line for a running task.
func progressLine(t task.Task) string {
	line := fmt.Sprintf("%s  %d/%d %s", progressBar(int(t.Percent), 30), t.ProcessedFiles, t.TotalFiles, i18n.T("files"))
	if t.TotalEntries > 0 {
		line += fmt.Sprintf("  %d/%d", t.CurrentEntry, t.TotalEntries)
	}
	if t.AvgSpeed > 0 {
		line += fmt.Sprintf("  %.1f/s", t.AvgSpeed)
	}
	if t.CurrentFile != "" {
		line += "  " + t.CurrentFile
	}
	return line
}

func renderProgress(w io.Writer, t task.Task) {
	if t.Status != task.StatusRunning {
		return
	}
	fmt.Fprintf(w, "\r\033[K%s", progressLine(t))
}

func clearProgressLine(w io.Writer) {
	fmt.Fprint(w, "\r\033[K")
}

// printSummary reports a finished task and returns the error to exit with.
func printSummary(t task.Task, sidecar string, interrupted bool) error {
	if t.Status == task.StatusError {
		if interrupted {
			logWarning("%s", i18n.T("Translation interrupted, files written so far are kept"))
			return nil
		}
		return fmt.Errorf(i18n.T("translation failed: %s"), t.Error)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Summary"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-20s %d\n", i18n.T("Files:"), t.ProcessedFiles)
	fmt.Fprintf(os.Stderr, "  %-20s %d\n", i18n.T("Entries:"), t.EntriesTranslated)
	if t.AvgSpeed > 0 {
		fmt.Fprintf(os.Stderr, "  %-20s %.1f/s\n", i18n.T("Speed:"), t.AvgSpeed)
	}
	fmt.Fprintf(os.Stderr, "  %-20s %s\n", i18n.T("Output:"), t.OutputPath)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	if _, err := os.Stat(sidecar); err == nil {
		logWarning(i18n.T("Some entries kept their source text, see %s"), sidecar)
	}
	logSuccess("%s", i18n.T("Translation complete!"))
	return nil
}

// ---------------------------------------------------------------------------
// memory
// ---------------------------------------------------------------------------

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: i18n.T("Build and inspect the translation memory"),
	}
	cmd.AddCommand(newMemoryBuildCmd(), newMemoryListCmd())
	return cmd
}

func newMemoryBuildCmd() *cobra.Command {
	var game, source, target string
	cmd := &cobra.Command{
		Use:   "build",
		Short: i18n.T("Index the official translations of a game directory"),
		Long: `Read <game>/localisation/<source>/ and <game>/localisation/<target>/ and
store every string present in both as an exact-match translation memory.
The result is cached in the data directory and rebuilt only when the
game files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootDir)
			if err != nil {
				return err
			}
			applyFlags(cfg, translateArgs{game: game, source: source, target: target})
			if cfg.Memory.GamePath == "" {
				return errors.New(i18n.T("no game directory (use --game or memory.game_path)"))
			}
			cfg.Memory.Disabled = false

			idx, err := loadMemory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if idx == nil {
				return fmt.Errorf(i18n.T("no %s/%s localisation found under %s"),
					langmeta.Folder(cfg.SourceLang), langmeta.Folder(cfg.TargetLang), cfg.Memory.GamePath)
			}
			logSuccess(i18n.N("%d translation pair indexed", "%d translation pairs indexed", idx.Len()), idx.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&game, "game", "", i18n.T("Base game directory"))
	cmd.Flags().StringVar(&source, "source", "", i18n.T("Source language (default: en)"))
	cmd.Flags().StringVar(&target, "target", "", i18n.T("Target language (default: ko)"))
	_ = cmd.MarkFlagDirname("game")
	_ = cmd.RegisterFlagCompletionFunc("target", completeLanguages)
	_ = cmd.RegisterFlagCompletionFunc("source", completeLanguages)
	return cmd
}

func newMemoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   i18n.T("Show cached translation memory snapshots"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootDir)
			if err != nil {
				return err
			}
			cache := openCache(cfg.Memory.Cache)
			if cache == nil {
				return errors.New(i18n.T("translation memory cache unavailable"))
			}
			defer cache.Close()

			snaps, err := cache.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Translation Memory Snapshots"), colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			if len(snaps) == 0 {
				fmt.Fprintf(os.Stderr, "  %s\n\n", i18n.T("none"))
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(os.Stderr, "  %s%s -> %s%s  %d %s  %s\n", colorYellow, s.Source, s.Target, colorReset,
					s.Entries, i18n.T("entries"), s.BuiltAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintf(os.Stderr, "    %s\n", s.Root)
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// backends / models
// ---------------------------------------------------------------------------

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: i18n.T("List translation backends"),
		Run: func(cmd *cobra.Command, args []string) {
			writeBackendTable(os.Stdout, translate.DefaultRegistry())
		},
	}
}

// writeBackendTable prints one row per registered backend.
func writeBackendTable(w io.Writer, r *translate.Registry) {
	fmt.Fprintf(w, "%-14s %-26s %-12s %-8s %s\n", "ID", "NAME", "GLOSSARY", "PROFILE", "DEFAULT MODEL")
	for _, id := range r.IDs() {
		reg, _ := r.Get(id)
		model := reg.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(w, "%-14s %-26s %-12s %-8s %s\n", reg.ID, reg.Name, reg.Mode,
			fmt.Sprintf("%dx%d", reg.Profile.BatchSize, reg.Profile.MaxConcurrentBatches), model)
	}
}

func newModelsCmd() *cobra.Command {
	var backend, apiKey, baseURL string
	cmd := &cobra.Command{
		Use:   "models",
		Short: i18n.T("List models offered by a backend"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootDir)
			if err != nil {
				return err
			}
			applyFlags(cfg, translateArgs{backend: backend, baseURL: baseURL})

			b, reg, err := buildBackend(cfg, apiKey, nil, false)
			if err != nil {
				return err
			}
			lister, ok := b.(translate.ModelLister)
			if !ok {
				return fmt.Errorf(i18n.T("backend %s cannot list models"), reg.ID)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			models, err := lister.Models(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", i18n.T("Translation backend"))
	cmd.Flags().StringVar(&apiKey, "api-key", "", i18n.T("API key (or MODLOC_API_KEY env var)"))
	cmd.Flags().StringVar(&baseURL, "base-url", "", i18n.T("Custom API base URL"))
	_ = cmd.RegisterFlagCompletionFunc("backend", completeBackends)
	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: i18n.T("Manage stored API keys"),
		Long: `Store API keys and endpoints per backend in the data directory
($XDG_DATA_HOME/modloc/auth.json, mode 0600).

Keys are looked up in order: --api-key, MODLOC_API_KEY, the backend's own
variable (OPENAI_API_KEY, ...), then the stored key.`,
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthListCmd(), newAuthRemoveCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var key, baseURL, model string
	cmd := &cobra.Command{
		Use:   "set BACKEND",
		Short: i18n.T("Store an API key or endpoint for a backend"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(args[0])
			if _, ok := translate.DefaultRegistry().Get(id); !ok {
				return fmt.Errorf(i18n.T("unknown backend %q"), id)
			}
			if key == "" && baseURL == "" && model == "" {
				return errors.New(i18n.T("nothing to store (use --key, --base-url or --model)"))
			}
			if key != "" || baseURL != "" {
				if err := settings.SetAPIKey(id, key, baseURL); err != nil {
					return err
				}
			}
			if model != "" {
				c := settings.Get(id)
				if c == nil {
					c = &settings.Credential{Type: "api"}
				}
				c.Model = model
				if err := settings.Set(id, c); err != nil {
					return err
				}
			}
			logSuccess(i18n.T("Stored credentials for %s in %s"), id, settings.FilePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", i18n.T("API key"))
	cmd.Flags().StringVar(&baseURL, "base-url", "", i18n.T("Custom API base URL"))
	cmd.Flags().StringVar(&model, "model", "", i18n.T("Default model"))
	cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return completeBackends(cmd, args, toComplete)
	}
	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove BACKEND",
		Aliases: []string{"rm", "logout"},
		Short:   i18n.T("Remove stored credentials for a backend"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(args[0])
			if settings.Get(id) == nil {
				logWarning(i18n.T("No stored credentials for %s"), id)
				return nil
			}
			if err := settings.Remove(id); err != nil {
				return err
			}
			logSuccess(i18n.T("Removed credentials for %s"), id)
			return nil
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return settings.Load().IDs(), cobra.ShellCompDirectiveNoFileComp
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   i18n.T("Show stored credentials"),
		Run: func(cmd *cobra.Command, args []string) {
			writeCredentials(os.Stderr, translate.DefaultRegistry(), settings.Load())
		},
	}
}

// writeCredentials prints the credential status of every backend.
func writeCredentials(w io.Writer, r *translate.Registry, store settings.Store) {
	fmt.Fprintf(w, "\n%s%s%s\n", colorBlue, i18n.T("Stored Credentials"), colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, id := range r.IDs() {
		reg, _ := r.Get(id)
		entry := store[id]
		var status string
		switch {
		case entry != nil && entry.Key != "":
			status = fmt.Sprintf("%s%s%s (key: %s)", colorGreen, i18n.T("configured"), colorReset, settings.MaskKey(entry.Key))
		case entry != nil && (entry.BaseURL != "" || entry.Model != ""):
			status = fmt.Sprintf("%s%s%s (%s)", colorGreen, i18n.T("configured"), colorReset, i18n.T("no key"))
		case reg.EnvKey != "" && os.Getenv(reg.EnvKey) != "":
			status = fmt.Sprintf("%s%s%s", colorGreen, reg.EnvKey, colorReset)
		case !reg.RequiresKey:
			status = i18n.T("no key needed")
		default:
			status = fmt.Sprintf("%s%s%s", colorRed, i18n.T("not configured"), colorReset)
		}
		fmt.Fprintf(w, "  %-14s %s\n", id, status)
		if entry != nil && entry.BaseURL != "" {
			fmt.Fprintf(w, "  %14s endpoint: %s\n", "", entry.BaseURL)
		}
		if entry != nil && entry.Model != "" {
			fmt.Fprintf(w, "  %14s model:    %s\n", "", entry.Model)
		}
	}

	fmt.Fprintf(w, "\n  %s%s%s\n", colorYellow, i18n.T("Environment Variables"), colorReset)
	if envKey := os.Getenv(config.EnvAPIKey); envKey != "" {
		fmt.Fprintf(w, "  %s: %s%s%s (%s)\n", config.EnvAPIKey, colorGreen, settings.MaskKey(envKey), colorReset, i18n.T("overrides stored keys"))
	} else {
		fmt.Fprintf(w, "  %s: %s%s%s\n", config.EnvAPIKey, colorRed, i18n.T("not set"), colorReset)
	}
	fmt.Fprintln(w)
}

// ---------------------------------------------------------------------------
// Completion helpers
// ---------------------------------------------------------------------------

func completeBackends(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	r := translate.DefaultRegistry()
	var out []string
	for _, id := range r.IDs() {
		reg, _ := r.Get(id)
		out = append(out, id+"\t"+reg.Name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeLanguages(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return langmeta.Codes(), cobra.ShellCompDirectiveNoFileComp
}

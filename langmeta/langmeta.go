// Package langmeta provides the language registry shared by the pipeline,
// the translation memory and the CLI: display names for prompts and the
// folder/tag names the game engine uses for its localisation files.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes one supported game language.
type Meta struct {
	// Name is the English display name, used inside translation prompts.
	Name string
	// Folder is the engine's language identifier. It names both the
	// localisation sub-directory and the l_<folder> file tag.
	Folder string
}

// Registry maps ISO 639-1 codes (plus a few regional variants) to the
// engine language they are shipped as.
var Registry = map[string]Meta{
	"en":    {Name: "English", Folder: "english"},
	"ko":    {Name: "Korean", Folder: "korean"},
	"fr":    {Name: "French", Folder: "french"},
	"de":    {Name: "German", Folder: "german"},
	"es":    {Name: "Spanish", Folder: "spanish"},
	"pt":    {Name: "Brazilian Portuguese", Folder: "braz_por"},
	"pt-BR": {Name: "Brazilian Portuguese", Folder: "braz_por"},
	"pl":    {Name: "Polish", Folder: "polish"},
	"ru":    {Name: "Russian", Folder: "russian"},
	"ja":    {Name: "Japanese", Folder: "japanese"},
	"zh":    {Name: "Simplified Chinese", Folder: "simp_chinese"},
	"zh-CN": {Name: "Simplified Chinese", Folder: "simp_chinese"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort metadata for a language code, supporting
// variants like pt_BR and base-language fallback. Unknown codes resolve to
// themselves for both name and folder, so a caller can still pass an engine
// folder name such as "english" directly.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	for _, m := range Registry {
		if m.Folder == strings.ToLower(strings.TrimSpace(lang)) {
			return m
		}
	}
	return Meta{Name: lang, Folder: strings.ToLower(strings.TrimSpace(lang))}
}

// Folder is shorthand for Resolve(lang).Folder.
func Folder(lang string) string {
	return Resolve(lang).Folder
}

// Tag returns the file/header tag for a language, e.g. "l_korean".
func Tag(lang string) string {
	return "l_" + Folder(lang)
}

// Code returns the shortest registry code for a language or folder name,
// or "" when the language is not registered.
func Code(lang string) string {
	folder := Folder(lang)
	best := ""
	for code, m := range Registry {
		if m.Folder != folder {
			continue
		}
		if best == "" || len(code) < len(best) || (len(code) == len(best) && code < best) {
			best = code
		}
	}
	return best
}

// Codes returns every registry code, sorted, each followed by a tab and
// its display name for shell completion.
func Codes() []string {
	out := make([]string, 0, len(Registry))
	for code, m := range Registry {
		out = append(out, code+"\t"+m.Name)
	}
	sort.Strings(out)
	return out
}

// Package i18n translates the modloc command-line interface.
//
// Catalogs are gettext PO files embedded in the binary and read with
// gotext. The UI language follows LANGUAGE, LC_ALL, LC_MESSAGES and LANG,
// independent of the language a mod is translated into.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Directory structure: locales/{lang}/LC_MESSAGES/modloc.po
//
//go:embed all:locales
var locales embed.FS

const domain = "modloc"

var (
	po   *gotext.Locale
	lang string
)

// Init loads the catalog for lang, or for the language detected from the
// environment when lang is empty. Call it once before T or N.
func Init(language string) {
	if language == "" {
		language = detectLanguage()
	}

	lang = language
	po = gotext.NewLocaleFSWithPath(language, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// T translates msgid, returning it unchanged when no translation exists.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a string with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage picks the UI language the way GNU gettext does.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if val := os.Getenv(env); val != "" {
			// LANGUAGE is a colon-separated list
			if env == "LANGUAGE" {
				parts := strings.SplitN(val, ":", 2)
				val = parts[0]
			}
			// ko_KR.UTF-8 -> ko_KR
			if idx := strings.IndexByte(val, '.'); idx >= 0 {
				val = val[:idx]
			}
			// C and POSIX mean untranslated
			if val == "C" || val == "POSIX" || val == "" {
				continue
			}
			return val
		}
	}
	return "en"
}

// Language returns the loaded catalog language, or "" before Init.
func Language() string {
	return lang
}

// Package i18n localizes kiosk and admin message keys.
//
// Catalogues are nested JSON files, one per language, flattened to dotted
// keys ("kiosk.pin_invalid"). Lookups fall back to the default language and
// then to the key itself, so a missing translation never blanks the screen.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var embedded embed.FS

// DefaultLanguage is used when nothing better matches.
const DefaultLanguage = "it"

// SupportedLanguages lists the catalogues shipped with the server.
// INVARIANT: DefaultLanguage is first, so the matcher falls back to it
var SupportedLanguages = []string{"it", "en"}

var matcher = language.NewMatcher([]language.Tag{language.Italian, language.English})

// Catalog holds every translation, keyed by language then dotted key.
// Read-only after Load, safe for concurrent use.
type Catalog struct {
	messages map[string]map[string]string
}

// Load reads "<lang>.json" for every supported language from fsys.
// PRE: fsys contains one file per supported language
// POST: returns a catalog with flattened keys
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{messages: make(map[string]map[string]string, len(SupportedLanguages))}
	for _, lang := range SupportedLanguages {
		name := lang + ".json"
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read translation file %s: %w", name, err)
		}
		var nested map[string]any
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("failed to parse translation file %s: %w", name, err)
		}
		flat := make(map[string]string)
		flatten("", nested, flat)
		c.messages[lang] = flat
		slog.Debug("i18n_loaded", "lang", lang, "keys", len(flat))
	}
	return c, nil
}

var (
	defaultCatalog *Catalog
	defaultErr     error
	defaultOnce    sync.Once
)

// Default returns the catalog built from the embedded locale files.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "locales")
		if err != nil {
			defaultErr = err
			return
		}
		defaultCatalog, defaultErr = Load(sub)
	})
	return defaultCatalog, defaultErr
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case string:
			out[key] = t
		case map[string]any:
			flatten(key, t, out)
		}
	}
}

// Keys returns the flattened keys of one language.
func (c *Catalog) Keys(lang string) []string {
	keys := make([]string, 0, len(c.messages[lang]))
	for k := range c.messages[lang] {
		keys = append(keys, k)
	}
	return keys
}

// Has reports whether lang defines key.
func (c *Catalog) Has(lang, key string) bool {
	_, ok := c.messages[lang][key]
	return ok
}

// Localizer translates keys for one language.
type Localizer struct {
	lang string
	cat  *Catalog
}

// Localizer returns a translator for lang, or the default for unsupported languages.
func (c *Catalog) Localizer(lang string) *Localizer {
	if _, ok := c.messages[lang]; !ok {
		lang = DefaultLanguage
	}
	return &Localizer{lang: lang, cat: c}
}

// Lang returns the language the localizer resolved to.
func (l *Localizer) Lang() string {
	return l.lang
}

// T returns the message for key.
// POST: falls back to DefaultLanguage, then to key
func (l *Localizer) T(key string) string {
	if msg, ok := l.cat.messages[l.lang][key]; ok {
		return msg
	}
	if msg, ok := l.cat.messages[DefaultLanguage][key]; ok {
		return msg
	}
	return key
}

// TWithParams replaces {{name}} placeholders in the translated message.
func (l *Localizer) TWithParams(key string, params map[string]string) string {
	msg := l.T(key)
	for k, v := range params {
		msg = strings.ReplaceAll(msg, "{{"+k+"}}", v)
	}
	return msg
}

// DetectLanguage picks the best supported language for an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	return SupportedLanguages[idx]
}

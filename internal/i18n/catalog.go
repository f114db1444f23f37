package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const FallbackLocale = "en"

//go:embed locales/*.yml
var localeFiles embed.FS

// Catalog holds the display strings for one locale, with the fallback
// locale's strings behind it.
type Catalog struct {
	locale   string
	strings  map[string]string
	fallback map[string]string
}

// Load returns the catalog for locale. Unknown locales get the fallback
// catalog; region suffixes such as "en-US" are ignored.
func Load(locale string) (*Catalog, error) {
	fallback, err := loadStrings(FallbackLocale)
	if err != nil {
		return nil, err
	}

	locale = normalizeLocale(locale)
	if locale == FallbackLocale {
		return &Catalog{locale: locale, strings: fallback, fallback: fallback}, nil
	}

	strs, err := loadStrings(locale)
	if err != nil {
		return &Catalog{locale: FallbackLocale, strings: fallback, fallback: fallback}, nil
	}

	return &Catalog{locale: locale, strings: strs, fallback: fallback}, nil
}

// MustLoad is Load for catalogs that are known to be embedded. It panics if
// the catalog cannot be parsed.
func MustLoad(locale string) *Catalog {
	c, err := Load(locale)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustLoad(FallbackLocale)

// Default returns the fallback locale's catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Locales lists the embedded locales.
func Locales() []string {
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil
	}

	var locales []string
	for _, entry := range entries {
		locales = append(locales, strings.TrimSuffix(entry.Name(), ".yml"))
	}
	sort.Strings(locales)
	return locales
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_."); i > 0 {
		locale = locale[:i]
	}
	if locale == "" {
		return FallbackLocale
	}
	return locale
}

func loadStrings(locale string) (map[string]string, error) {
	data, err := localeFiles.ReadFile("locales/" + locale + ".yml")
	if err != nil {
		return nil, fmt.Errorf("unknown locale %q: %w", locale, err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse locale %q: %w", locale, err)
	}

	strs := make(map[string]string)
	flatten("", tree, strs)
	return strs, nil
}

// flatten turns nested sections into dotted keys ("messages.unknown_user").
func flatten(prefix string, tree map[string]any, out map[string]string) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case string:
			out[full] = v
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

func (c *Catalog) Locale() string {
	return c.locale
}

// T returns the string for key. Missing keys fall back to the fallback
// locale, then to the key itself.
func (c *Catalog) T(key string) string {
	if s, ok := c.strings[key]; ok {
		return s
	}
	if s, ok := c.fallback[key]; ok {
		return s
	}
	return key
}

// Format is T with {name} placeholders substituted from vars.
func (c *Catalog) Format(key string, vars map[string]string) string {
	s := c.T(key)
	if len(vars) == 0 {
		return s
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

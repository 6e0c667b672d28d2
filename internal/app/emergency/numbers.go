package emergency

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed numbers.yaml
var numbersYAML []byte

// Directory maps regions to emergency numbers.
type Directory struct {
	Fallback string            `yaml:"fallback"`
	Regions  map[string]string `yaml:"regions"`
}

var defaultDirectory = mustLoadDirectory(numbersYAML)

func mustLoadDirectory(raw []byte) Directory {
	d, err := LoadDirectory(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDirectory parses a YAML number table.
func LoadDirectory(raw []byte) (Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Directory{}, fmt.Errorf("parse emergency numbers: %w", err)
	}
	if d.Fallback == "" {
		return Directory{}, fmt.Errorf("parse emergency numbers: fallback is required")
	}
	norm := make(map[string]string, len(d.Regions))
	for region, number := range d.Regions {
		norm[strings.ToUpper(region)] = number
	}
	d.Regions = norm
	return d, nil
}

// Lookup resolves the number for a locale such as "es-PE" or "es_PE.UTF-8".
// Locales without an explicit region dial the fallback.
func (d Directory) Lookup(locale string) string {
	tag, err := language.Parse(normalizeLocale(locale))
	if err != nil {
		return d.Fallback
	}
	region, conf := tag.Region()
	if conf != language.Exact {
		return d.Fallback
	}
	if n, ok := d.Regions[region.String()]; ok {
		return n
	}
	return d.Fallback
}

// NumberForLocale uses the built-in table.
func NumberForLocale(locale string) string {
	return defaultDirectory.Lookup(locale)
}

// normalizeLocale turns POSIX locales (es_PE.UTF-8) into BCP 47 (es-PE).
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	return strings.ReplaceAll(locale, "_", "-")
}

// Package voices loads the voice catalog from the Kokoro-style
// VOICES.md reference file and resolves voice names to language codes.
package voices

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrUnknownVoice is returned when a requested voice is not in the catalog.
var ErrUnknownVoice = errors.New("voice not available")

// Entry maps a voice name to its language code.
type Entry struct {
	Name     string `json:"name"`
	LangCode string `json:"lang_code"`
}

// Catalog is the read-only voice table loaded at startup.
type Catalog struct {
	langs        map[string]string
	order        []string
	defaultVoice string
}

var langMarker = regexp.MustCompile(`lang_code='([a-zA-Z])'`)

// Load reads the catalog file at path. A missing file yields an empty
// catalog; the default voice resolution in New still guarantees at
// least one entry.
func Load(path, defaultVoice, fallbackLang string) (*Catalog, error) {
	c := &Catalog{langs: make(map[string]string)}

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := c.parse(f, fallbackLang); err != nil {
			return nil, fmt.Errorf("parse voice catalog %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open voice catalog: %w", err)
	}

	c.resolveDefault(defaultVoice, fallbackLang)
	return c, nil
}

// New builds a catalog directly from entries, mainly for tests.
func New(entries []Entry, defaultVoice, fallbackLang string) *Catalog {
	c := &Catalog{langs: make(map[string]string)}
	for _, e := range entries {
		c.add(e.Name, e.LangCode)
	}
	c.resolveDefault(defaultVoice, fallbackLang)
	return c
}

func (c *Catalog) parse(r io.Reader, fallbackLang string) error {
	scanner := bufio.NewScanner(r)
	lang := fallbackLang
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch classify(line) {
		case lineLangMarker:
			lang = strings.ToLower(langMarker.FindStringSubmatch(line)[1])
		case lineTableRow:
			if name := voiceName(line); name != "" {
				c.add(name, lang)
			}
		}
	}
	return scanner.Err()
}

type lineKind int

const (
	lineOther lineKind = iota
	lineLangMarker
	lineTableRow
)

// classify decides what a single catalog line contributes. Header and
// horizontal-rule rows of a markdown table are noise.
func classify(line string) lineKind {
	if line == "" {
		return lineOther
	}
	if langMarker.MatchString(line) {
		return lineLangMarker
	}
	if !strings.HasPrefix(line, "|") {
		return lineOther
	}
	if strings.HasPrefix(line, "| Name") || strings.HasPrefix(line, "| ----") {
		return lineOther
	}
	return lineTableRow
}

// voiceName extracts the bare voice identifier from a table row,
// stripping markdown emphasis and escapes ("**af\_heart**" -> "af_heart").
func voiceName(row string) string {
	cells := strings.Split(row, "|")
	if len(cells) < 2 {
		return ""
	}
	name := strings.TrimSpace(cells[1])
	name = strings.NewReplacer("`", "", "*", "", `\_`, "_").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "name") {
		return ""
	}
	return name
}

func (c *Catalog) add(name, lang string) {
	if _, ok := c.langs[name]; !ok {
		c.order = append(c.order, name)
	}
	c.langs[name] = lang
}

// resolveDefault picks the process-wide default voice: the configured
// name when present, else the first catalog entry, else the configured
// name registered under the fallback language.
func (c *Catalog) resolveDefault(configured, fallbackLang string) {
	if _, ok := c.langs[configured]; ok {
		c.defaultVoice = configured
		return
	}
	if len(c.order) > 0 {
		c.defaultVoice = c.order[0]
		return
	}
	c.add(configured, fallbackLang)
	c.defaultVoice = configured
}

// Resolve maps a requested voice (empty means the default) to its
// concrete name and language code. Unknown voices are an error, never
// a fallback.
func (c *Catalog) Resolve(requested string) (name, langCode string, err error) {
	name = strings.TrimSpace(requested)
	if name == "" {
		name = c.defaultVoice
	}
	lang, ok := c.langs[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}
	return name, lang, nil
}

// Default returns the process-wide default voice name.
func (c *Catalog) Default() string { return c.defaultVoice }

// List returns all entries sorted by name.
func (c *Catalog) List() []Entry {
	entries := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		entries = append(entries, Entry{Name: name, LangCode: c.langs[name]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

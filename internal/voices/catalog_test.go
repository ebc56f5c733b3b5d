package voices

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalog = `# Voices

## American English

For American English use lang_code='a' in KPipeline.

| Name | Traits | Quality |
| ---- | ------ | ------- |
| **af\_heart** | F | A |
| af_bella | F | A- |
| ` + "`am_adam`" + ` | M | F+ |

## Japanese

These require lang_code='j':

| Name | Traits |
| ---- | ------ |
| jf_alpha | F |
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "VOICES.md")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadParsesLanguageSections(t *testing.T) {
	c, err := Load(writeCatalog(t), "af_heart", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := map[string]string{
		"af_heart": "a",
		"af_bella": "a",
		"am_adam":  "a",
		"jf_alpha": "j",
	}
	for name, wantLang := range cases {
		resolved, lang, err := c.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		if resolved != name || lang != wantLang {
			t.Fatalf("resolve %s: got (%s, %s), want lang %s", name, resolved, lang, wantLang)
		}
	}
}

func TestResolveUnknownVoice(t *testing.T) {
	c, err := Load(writeCatalog(t), "af_heart", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, _, err := c.Resolve("does_not_exist"); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestResolveEmptyUsesDefault(t *testing.T) {
	c, err := Load(writeCatalog(t), "af_bella", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	name, lang, err := c.Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if name != "af_bella" || lang != "a" {
		t.Fatalf("expected default af_bella/a, got %s/%s", name, lang)
	}
}

func TestDefaultFallsBackToFirstEntry(t *testing.T) {
	c, err := Load(writeCatalog(t), "missing_voice", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Default() != "af_heart" {
		t.Fatalf("expected first catalog entry as default, got %s", c.Default())
	}
}

func TestMissingFileRegistersConfiguredDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.md"), "af_nicole", "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	name, lang, err := c.Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "af_nicole" || lang != "a" {
		t.Fatalf("expected literal default af_nicole/a, got %s/%s", name, lang)
	}
}

func TestClassifyLines(t *testing.T) {
	cases := []struct {
		line string
		want lineKind
	}{
		{"", lineOther},
		{"## American English", lineOther},
		{"For American English use lang_code='a' in KPipeline.", lineLangMarker},
		{"| Name | Traits |", lineOther},
		{"| ---- | ------ |", lineOther},
		{"| af_bella | F |", lineTableRow},
		{"plain prose", lineOther},
	}
	for _, tc := range cases {
		if got := classify(tc.line); got != tc.want {
			t.Fatalf("classify(%q) = %d, want %d", tc.line, got, tc.want)
		}
	}
}

func TestVoiceNameStripping(t *testing.T) {
	cases := map[string]string{
		`| **af\_heart** | F |`:  "af_heart",
		"| `am_adam` | M |":      "am_adam",
		"| af_bella | F |":       "af_bella",
		"| Name | Traits |":      "",
		"|   | empty first cell": "",
	}
	for row, want := range cases {
		if got := voiceName(row); got != want {
			t.Fatalf("voiceName(%q) = %q, want %q", row, got, want)
		}
	}
}

func TestListSorted(t *testing.T) {
	c := New([]Entry{{Name: "zz", LangCode: "a"}, {Name: "aa", LangCode: "b"}}, "zz", "a")
	list := c.List()
	if len(list) != 2 || list[0].Name != "aa" || list[1].Name != "zz" {
		t.Fatalf("expected sorted list, got %v", list)
	}
}

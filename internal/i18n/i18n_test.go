package i18n_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/astra/internal/i18n"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag  string
		want i18n.Language
	}{
		{"en", i18n.English},
		{"zh", i18n.Chinese},
		{"", i18n.English},
		{"fr", i18n.English},
	}
	for _, tt := range tests {
		if got := i18n.Parse(tt.tag); got != tt.want {
			t.Errorf("Parse(%q) = %q; want %q", tt.tag, got, tt.want)
		}
	}
}

func TestLookup_BothLanguagesComplete(t *testing.T) {
	t.Parallel()

	for _, lang := range []i18n.Language{i18n.English, i18n.Chinese} {
		s := i18n.Lookup(lang)
		if s.StatusListening == "" || s.StatusConnecting == "" {
			t.Errorf("%s: status strings missing: %+v", lang, s)
		}
		if s.ErrorMic == "" || s.ErrorConnection == "" {
			t.Errorf("%s: error strings missing", lang)
		}
		if s.StrengthRecorded == "" {
			t.Errorf("%s: StrengthRecorded missing", lang)
		}
	}
}

func TestLookup_UnknownFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	if got := i18n.Lookup(i18n.Language("de")); got != i18n.Lookup(i18n.English) {
		t.Error("unknown language should fall back to English strings")
	}
}

func TestSystemInstruction_MatchesLanguage(t *testing.T) {
	t.Parallel()

	en := i18n.SystemInstruction(i18n.English)
	if !strings.Contains(en, "English Only") {
		t.Error("English instruction should pin the conversation language")
	}
	if !strings.Contains(en, "save_strength") {
		t.Error("English instruction should reference the save_strength tool")
	}

	zh := i18n.SystemInstruction(i18n.Chinese)
	if !strings.Contains(zh, "中文") {
		t.Error("Chinese instruction should pin the conversation language")
	}
	if !strings.Contains(zh, "save_strength") {
		t.Error("Chinese instruction should reference the save_strength tool")
	}
}

func TestSaveStrengthTool_Declaration(t *testing.T) {
	t.Parallel()

	tool := i18n.SaveStrengthTool()
	if tool.Name != "save_strength" {
		t.Errorf("name = %q; want save_strength", tool.Name)
	}
	props, ok := tool.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing properties: %+v", tool.Parameters)
	}
	for _, field := range []string{"title", "description"} {
		if _, ok := props[field]; !ok {
			t.Errorf("properties missing %q", field)
		}
	}
	req, ok := tool.Parameters["required"].([]string)
	if !ok || len(req) != 2 {
		t.Errorf("required = %v; want [title description]", tool.Parameters["required"])
	}
}

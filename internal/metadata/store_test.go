package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStore_BasicLookup(t *testing.T) {
	masterlist := writeTempYAML(t, "masterlist.yaml", `
plugins:
  - name: ModA.esp
    group: core
    tag:
      - Relev
`)
	store, warnings, err := NewStore(masterlist, "", "")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if warnings.ErrorOrNil() != nil {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	meta := store.Lookup("ModA.esp")
	if meta.Group != "core" {
		t.Errorf("expected group 'core', got %q", meta.Group)
	}
	if len(meta.Tags) != 1 || meta.Tags[0].Name != "Relev" || !meta.Tags[0].Addition {
		t.Errorf("expected tag +Relev, got %v", meta.Tags)
	}
}

func TestStore_UserlistOverridesGroup(t *testing.T) {
	masterlist := writeTempYAML(t, "masterlist.yaml", `
plugins:
  - name: ModA.esp
    group: core
    tag: [Relev]
`)
	userlist := writeTempYAML(t, "userlist.yaml", `
plugins:
  - name: ModA.esp
    group: patches
    tag: [Delev]
`)
	store, _, err := NewStore(masterlist, "", userlist)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	meta := store.Lookup("ModA.esp")
	if meta.Group != "patches" {
		t.Errorf("expected group 'patches' (userlist wins), got %q", meta.Group)
	}
	if len(meta.Tags) != 2 {
		t.Fatalf("expected both tags preserved, got %v", meta.Tags)
	}
}

func TestStore_RegexPluginKey(t *testing.T) {
	masterlist := writeTempYAML(t, "masterlist.yaml", `
plugins:
  - name: "Unofficial.*Patch\\.esp"
    group: patches
`)
	store, _, err := NewStore(masterlist, "", "")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	meta := store.Lookup("UnofficialSkyrimPatch.esp")
	if meta.Group != "patches" {
		t.Errorf("expected regex entry to match, got group %q", meta.Group)
	}

	meta2 := store.Lookup("SomethingElse.esp")
	if meta2.Group != "" {
		t.Errorf("expected no match for unrelated plugin, got group %q", meta2.Group)
	}
}

func TestStore_LiteralWinsOverRegex(t *testing.T) {
	masterlist := writeTempYAML(t, "masterlist.yaml", `
plugins:
  - name: ".*\\.esp"
    group: from-regex
  - name: ModA.esp
    group: from-literal
`)
	store, _, err := NewStore(masterlist, "", "")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	meta := store.Lookup("ModA.esp")
	if meta.Group != "from-literal" {
		t.Errorf("expected literal entry to win, got %q", meta.Group)
	}
}

func TestStore_Prelude(t *testing.T) {
	prelude := writeTempYAML(t, "prelude.yaml", `
plugins:
  - name: Shared.esp
    group: shared
`)
	masterlist := writeTempYAML(t, "masterlist.yaml", `
plugins:
  - name: ModA.esp
    group: core
`)
	store, _, err := NewStore(masterlist, prelude, "")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	meta := store.Lookup("Shared.esp")
	if meta.Group != "shared" {
		t.Errorf("expected prelude entry to be visible, got %q", meta.Group)
	}
}

func TestMerge_FileUnionByIdentity(t *testing.T) {
	a := PluginMetadata{LoadAfter: []File{{Name: "Skyrim.esm"}}}
	b := PluginMetadata{LoadAfter: []File{{Name: "skyrim.esm", Display: "Skyrim"}, {Name: "Update.esm"}}}

	merged := Merge(a, b)
	if len(merged.LoadAfter) != 2 {
		t.Fatalf("expected 2 distinct load_after entries, got %d", len(merged.LoadAfter))
	}
	if merged.LoadAfter[0].Display != "Skyrim" {
		t.Errorf("expected the higher layer's entry to win on identity collision, got %+v", merged.LoadAfter[0])
	}
}

func TestLocalizedText_Select(t *testing.T) {
	text := LocalizedText{
		{Text: "hello", Language: "en"},
		{Text: "bonjour", Language: "fr"},
	}
	if got := text.Select("fr_FR"); got != "bonjour" {
		t.Errorf("expected base-language fallback to 'bonjour', got %q", got)
	}
	if got := text.Select("de"); got != "hello" {
		t.Errorf("expected 'en' fallback to 'hello', got %q", got)
	}
}

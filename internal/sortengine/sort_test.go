package sortengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/metadata"
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

func emptyStore(t *testing.T) *metadata.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "masterlist.yaml")
	if err := os.WriteFile(path, []byte("plugins: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, _, err := metadata.NewStore(path, "", "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func storeWithYAML(t *testing.T, masterlistYAML, userlistYAML string) *metadata.Store {
	t.Helper()
	dir := t.TempDir()
	masterlistPath := filepath.Join(dir, "masterlist.yaml")
	if err := os.WriteFile(masterlistPath, []byte(masterlistYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	userlistPath := ""
	if userlistYAML != "" {
		userlistPath = filepath.Join(dir, "userlist.yaml")
		if err := os.WriteFile(userlistPath, []byte(userlistYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, _, err := metadata.NewStore(masterlistPath, "", userlistPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func facts(name string, isMaster bool, masters ...string) *plugin.Facts {
	f := &plugin.Facts{Name: pluginref.Ref(name), IsMaster: isMaster, FormIDs: map[plugin.FormKey]struct{}{}}
	for _, m := range masters {
		f.Masters = append(f.Masters, pluginref.Ref(m))
	}
	return f
}

func skyrimSE() gameid.Table {
	g, err := gameid.Lookup(gameid.SkyrimSE)
	if err != nil {
		panic(err)
	}
	return g
}

func names(refs []pluginref.Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

func TestSort_BasicOrdering(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("Update.esm").Key(): facts("Update.esm", true),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
	}

	result, err := Sort(Input{Game: game, Installed: installed, Metadata: emptyStore(t)})
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	got := names(result.Order)
	want := []string{"Skyrim.esm", "Update.esm", "ModA.esp"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSort_UserLoadAfterWinsOverCurrentOrder(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("Update.esm").Key(): facts("Update.esm", true),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
		pluginref.Ref("ModB.esp").Key():   facts("ModB.esp", false, "Skyrim.esm"),
	}
	current := []pluginref.Ref{"Skyrim.esm", "Update.esm", "ModB.esp", "ModA.esp"}

	store := storeWithYAML(t, "plugins: []\n", `
plugins:
  - name: ModB.esp
    after: [ModA.esp]
`)

	result, err := Sort(Input{Game: game, Installed: installed, Metadata: store, CurrentOrder: current})
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	got := names(result.Order)
	aIdx, bIdx := -1, -1
	for i, n := range got {
		if n == "ModA.esp" {
			aIdx = i
		}
		if n == "ModB.esp" {
			bIdx = i
		}
	}
	if aIdx == -1 || bIdx == -1 || aIdx > bIdx {
		t.Fatalf("expected ModA before ModB despite current order, got %v", got)
	}
}

func TestSort_CycleDetection(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("A.esp").Key():      facts("A.esp", false, "Skyrim.esm"),
		pluginref.Ref("B.esp").Key():      facts("B.esp", false, "Skyrim.esm"),
	}
	store := storeWithYAML(t, `
plugins:
  - name: A.esp
    after: [B.esp]
  - name: B.esp
    after: [A.esp]
`, "")

	_, err := Sort(Input{Game: game, Installed: installed, Metadata: store})
	if err == nil {
		t.Fatal("expected a cyclic interaction error")
	}
	cyc, ok := err.(*CyclicInteraction)
	if !ok {
		t.Fatalf("expected *CyclicInteraction, got %T: %v", err, err)
	}
	if len(cyc.Path) == 0 {
		t.Fatal("expected a non-empty cycle path")
	}
}

func TestSort_StableWhenAlreadyCorrect(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("Update.esm").Key(): facts("Update.esm", true),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
		pluginref.Ref("ModB.esp").Key():   facts("ModB.esp", false, "Skyrim.esm"),
	}
	current := []pluginref.Ref{"Skyrim.esm", "Update.esm", "ModA.esp", "ModB.esp"}

	result, err := Sort(Input{Game: game, Installed: installed, Metadata: emptyStore(t), CurrentOrder: current})
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if got := names(result.Order); !equalStrings(got, names(current)) {
		t.Fatalf("expected stable order %v, got %v", names(current), got)
	}
}

func TestSort_Idempotent(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("Update.esm").Key(): facts("Update.esm", true),
		pluginref.Ref("ModB.esp").Key():   facts("ModB.esp", false, "Skyrim.esm"),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
	}
	current := []pluginref.Ref{"Update.esm", "Skyrim.esm", "ModA.esp", "ModB.esp"}
	store := emptyStore(t)

	first, err := Sort(Input{Game: game, Installed: installed, Metadata: store, CurrentOrder: current})
	if err != nil {
		t.Fatalf("first sort failed: %v", err)
	}
	second, err := Sort(Input{Game: game, Installed: installed, Metadata: store, CurrentOrder: first.Order})
	if err != nil {
		t.Fatalf("second sort failed: %v", err)
	}
	if !equalStrings(names(first.Order), names(second.Order)) {
		t.Fatalf("sort is not idempotent: %v then %v", names(first.Order), names(second.Order))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

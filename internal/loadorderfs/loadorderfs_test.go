package loadorderfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loot-core/loot/internal/gameid"
)

func writePlugin(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func skyrimSE(t *testing.T) gameid.Table {
	t.Helper()
	g, err := gameid.Lookup(gameid.SkyrimSE)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestState_IsAmbiguousWhenSourcesDisagree(t *testing.T) {
	dataDir := t.TempDir()
	localDir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writePlugin(t, dataDir, "A.esp", base)
	writePlugin(t, dataDir, "B.esp", base.Add(time.Minute))

	fs := NewFileFs(localDir)
	if err := fs.WritePluginsList([]Ref{"A.esp", "B.esp"}); err != nil {
		t.Fatal(err)
	}
	// loadorder.txt disagrees with the timestamp-derived order (A before B).
	if err := fs.WriteLoadOrderTxt([]Ref{"B.esp", "A.esp"}); err != nil {
		t.Fatal(err)
	}

	state, err := NewState(fs, skyrimSE(t), dataDir, []Ref{"A.esp", "B.esp"})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if !state.IsAmbiguous() {
		t.Fatal("expected the load order to be reported ambiguous")
	}
}

func TestState_NotAmbiguousWhenSourcesAgree(t *testing.T) {
	dataDir := t.TempDir()
	localDir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writePlugin(t, dataDir, "A.esp", base)
	writePlugin(t, dataDir, "B.esp", base.Add(time.Minute))

	fs := NewFileFs(localDir)
	if err := fs.WritePluginsList([]Ref{"A.esp", "B.esp"}); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteLoadOrderTxt([]Ref{"A.esp", "B.esp"}); err != nil {
		t.Fatal(err)
	}

	state, err := NewState(fs, skyrimSE(t), dataDir, []Ref{"A.esp", "B.esp"})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if state.IsAmbiguous() {
		t.Fatal("expected the load order to be reported unambiguous")
	}
}

func TestSameOrderForCommon(t *testing.T) {
	tests := []struct {
		name string
		a, b []Ref
		want bool
	}{
		{"identical", []Ref{"A.esp", "B.esp"}, []Ref{"A.esp", "B.esp"}, true},
		{"subset preserves order", []Ref{"A.esp", "C.esp"}, []Ref{"A.esp", "B.esp", "C.esp"}, true},
		{"reversed", []Ref{"B.esp", "A.esp"}, []Ref{"A.esp", "B.esp"}, false},
		{"disjoint", []Ref{"A.esp"}, []Ref{"B.esp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameOrderForCommon(tt.a, tt.b); got != tt.want {
				t.Errorf("sameOrderForCommon(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestReconcileWithInstalled_DropsRemovedAppendsNew(t *testing.T) {
	game, err := gameid.Lookup(gameid.Oblivion)
	if err != nil {
		t.Fatal(err)
	}
	order := []Ref{"Oblivion.esm", "A.esp", "Stale.esp"}
	installed := []Ref{"Oblivion.esm", "A.esp", "New.esp"}

	got := reconcileWithInstalled(order, installed, game)

	want := []string{"Oblivion.esm", "A.esp", "New.esp"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, r := range got {
		if r.String() != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWithHardcodedPrefixFirst(t *testing.T) {
	game, err := gameid.Lookup(gameid.Skyrim)
	if err != nil {
		t.Fatal(err)
	}
	order := []Ref{"ModA.esp", "Update.esm", "Skyrim.esm"}
	got := withHardcodedPrefixFirst(order, game)
	want := []string{"Skyrim.esm", "Update.esm", "ModA.esp"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, r := range got {
		if r.String() != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestState_SetLoadOrderClearsAmbiguity(t *testing.T) {
	dataDir := t.TempDir()
	localDir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writePlugin(t, dataDir, "A.esp", base)
	writePlugin(t, dataDir, "B.esp", base.Add(time.Minute))

	fs := NewFileFs(localDir)
	if err := fs.WritePluginsList([]Ref{"A.esp", "B.esp"}); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteLoadOrderTxt([]Ref{"B.esp", "A.esp"}); err != nil {
		t.Fatal(err)
	}

	state, err := NewState(fs, skyrimSE(t), dataDir, []Ref{"A.esp", "B.esp"})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if !state.IsAmbiguous() {
		t.Fatal("expected ambiguous before SetLoadOrder")
	}
	if err := state.SetLoadOrder([]Ref{"A.esp", "B.esp"}); err != nil {
		t.Fatalf("SetLoadOrder: %v", err)
	}
	if state.IsAmbiguous() {
		t.Fatal("expected SetLoadOrder to clear ambiguity")
	}
	if !state.IsActive("A.esp") {
		t.Fatal("expected A.esp to remain active after SetLoadOrder")
	}
}

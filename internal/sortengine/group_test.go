package sortengine

import (
	"testing"

	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

// TestSort_UngroupedPluginUsesImplicitDefaultGroup asserts that a
// plugin without an explicit group is treated as a member of the
// implicit "default" group, so a masterlist group that declares
// "after: [default]" still constrains it.
func TestSort_UngroupedPluginUsesImplicitDefaultGroup(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
		pluginref.Ref("ModB.esp").Key():   facts("ModB.esp", false, "Skyrim.esm"),
	}
	current := []pluginref.Ref{"Skyrim.esm", "ModB.esp", "ModA.esp"}

	store := storeWithYAML(t, `
groups:
  - name: Patches
    after: [default]
plugins:
  - name: ModB.esp
    group: Patches
`, "")

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
		t.Fatalf("expected ungrouped ModA (implicit default group) before Patches-grouped ModB despite current order, got %v", got)
	}
}

// TestSort_UndefinedGroupStillReachesDefault asserts the implicit
// default group exists even when the masterlist never defines a group
// named "default" explicitly.
func TestSort_UndefinedGroupStillReachesDefault(t *testing.T) {
	game := skyrimSE()
	installed := map[string]*plugin.Facts{
		pluginref.Ref("Skyrim.esm").Key(): facts("Skyrim.esm", true),
		pluginref.Ref("ModA.esp").Key():   facts("ModA.esp", false, "Skyrim.esm"),
		pluginref.Ref("ModB.esp").Key():   facts("ModB.esp", false, "Skyrim.esm"),
	}

	store := storeWithYAML(t, `
groups:
  - name: Late
    after: [default]
plugins:
  - name: ModB.esp
    group: Late
`, "")

	if _, ok := store.Group("default"); !ok {
		t.Fatal("expected an implicit \"default\" group to exist even though the masterlist never defines one")
	}

	result, err := Sort(Input{Game: game, Installed: installed, Metadata: store})
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
		t.Fatalf("expected ModA before ModB, got %v", got)
	}
}

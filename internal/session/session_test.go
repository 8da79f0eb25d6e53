package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/plugin"
)

// writeMinimalPlugin builds a minimal valid TES4-family plugin file,
// mirroring internal/plugin's own test fixtures, and writes it to
// dir/name.
func writeMinimalPlugin(t *testing.T, dir, name string, flags uint32, masters ...string) {
	t.Helper()

	var recordData bytes.Buffer
	writeSubrecord(&recordData, plugin.SignatureHEDR, []byte{
		0x9A, 0x99, 0xD9, 0x3F,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	})
	for _, m := range masters {
		writeSubrecord(&recordData, plugin.SignatureMAST, append([]byte(m), 0))
		var sizeData [8]byte
		writeSubrecord(&recordData, plugin.SignatureDATA, sizeData[:])
	}
	recordBytes := recordData.Bytes()

	var buf bytes.Buffer
	buf.WriteString(plugin.SignatureTES4)
	binary.Write(&buf, binary.LittleEndian, uint32(len(recordBytes)))
	binary.Write(&buf, binary.LittleEndian, flags)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(44))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	buf.Write(recordBytes)

	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeSubrecord(buf *bytes.Buffer, signature string, data []byte) {
	buf.WriteString(signature)
	binary.Write(buf, binary.LittleEndian, uint16(len(data)))
	buf.Write(data)
}

func newTestSession(t *testing.T) (*GameSession, string, string) {
	t.Helper()
	dataDir := t.TempDir()
	localDataDir := t.TempDir()

	masterlistPath := filepath.Join(t.TempDir(), "masterlist.yaml")
	if err := os.WriteFile(masterlistPath, []byte("plugins: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	game, err := gameid.Lookup(gameid.SkyrimSE)
	if err != nil {
		t.Fatal(err)
	}

	sess, err := New(Config{
		Game:           game,
		DataDir:        dataDir,
		LocalDataDir:   localDataDir,
		MasterlistPath: masterlistPath,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sess, dataDir, localDataDir
}

func TestGameSession_LoadDataAndSort(t *testing.T) {
	sess, dataDir, _ := newTestSession(t)

	writeMinimalPlugin(t, dataDir, "Skyrim.esm", plugin.FlagMaster)
	writeMinimalPlugin(t, dataDir, "Update.esm", plugin.FlagMaster)
	writeMinimalPlugin(t, dataDir, "ModA.esp", 0, "Skyrim.esm")

	ctx := context.Background()
	if err := sess.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}

	installed := sess.Installed()
	if len(installed) != 3 {
		t.Fatalf("expected 3 installed plugins, got %d", len(installed))
	}

	result, err := sess.Sort()
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if len(result.Order) != 3 {
		t.Fatalf("expected 3 plugins in sorted order, got %d", len(result.Order))
	}
	if result.Order[0].String() != "Skyrim.esm" {
		t.Errorf("expected Skyrim.esm first, got %v", result.Order)
	}
}

func TestGameSession_ApplySortWritesThrough(t *testing.T) {
	sess, dataDir, localDataDir := newTestSession(t)

	writeMinimalPlugin(t, dataDir, "Skyrim.esm", plugin.FlagMaster)
	writeMinimalPlugin(t, dataDir, "ModA.esp", 0, "Skyrim.esm")

	ctx := context.Background()
	if err := sess.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}

	result, err := sess.Sort()
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if err := sess.ApplySort(result); err != nil {
		t.Fatalf("ApplySort: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(localDataDir, "loadorder.txt"))
	if err != nil {
		t.Fatalf("expected loadorder.txt to be written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty loadorder.txt")
	}
}

func TestGameSession_MessagesForMissingMaster(t *testing.T) {
	sess, dataDir, _ := newTestSession(t)

	writeMinimalPlugin(t, dataDir, "ModA.esp", 0, "Missing.esm")

	ctx := context.Background()
	if err := sess.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}

	msgs, err := sess.MessagesFor("ModA.esp")
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}

	found := false
	for _, m := range msgs {
		if m.Text != "" && m.RelatedPlugin.Equal("Missing.esm") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a MissingMaster message referencing Missing.esm, got %+v", msgs)
	}
}

func TestGameSession_ClearCaches(t *testing.T) {
	sess, dataDir, _ := newTestSession(t)
	writeMinimalPlugin(t, dataDir, "Skyrim.esm", plugin.FlagMaster)

	if err := sess.LoadData(context.Background()); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	sess.ClearCaches() // must not panic with a populated evaluator
}

package plugin

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/loot-core/loot/internal/gameid"
)

// createTestPlugin builds a minimal valid TES4-family plugin file in
// memory: a TES4 header record followed by optional top-level records.
func createTestPlugin(t *testing.T, opts testPluginOptions) []byte {
	t.Helper()

	var recordData bytes.Buffer

	writeSubrecord(&recordData, SignatureHEDR, []byte{
		0x9A, 0x99, 0xD9, 0x3F, // 1.7 as float32
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	})

	if opts.author != "" {
		writeSubrecord(&recordData, SignatureCNAM, append([]byte(opts.author), 0))
	}
	if opts.description != "" {
		writeSubrecord(&recordData, SignatureSNAM, append([]byte(opts.description), 0))
	}
	for _, master := range opts.masters {
		writeSubrecord(&recordData, SignatureMAST, append([]byte(master), 0))
		var sizeData [8]byte
		writeSubrecord(&recordData, SignatureDATA, sizeData[:])
	}

	recordBytes := recordData.Bytes()

	var buf bytes.Buffer
	buf.WriteString(SignatureTES4)
	binary.Write(&buf, binary.LittleEndian, uint32(len(recordBytes)))
	binary.Write(&buf, binary.LittleEndian, opts.flags)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(44))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	buf.Write(recordBytes)

	for i, formID := range opts.recordFormIDs {
		writeTopLevelRecord(&buf, "TEST", formID, uint32(i))
	}

	return buf.Bytes()
}

func writeTopLevelRecord(buf *bytes.Buffer, signature string, formID uint32, flags uint32) {
	buf.WriteString(signature)
	binary.Write(buf, binary.LittleEndian, uint32(0)) // dataSize
	binary.Write(buf, binary.LittleEndian, flags)
	binary.Write(buf, binary.LittleEndian, formID)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint16(44))
	binary.Write(buf, binary.LittleEndian, uint16(0))
}

type testPluginOptions struct {
	flags         uint32
	author        string
	description   string
	masters       []string
	recordFormIDs []uint32
}

func writeSubrecord(buf *bytes.Buffer, signature string, data []byte) {
	buf.WriteString(signature)
	binary.Write(buf, binary.LittleEndian, uint16(len(data)))
	buf.Write(data)
}

func skyrimSE(t *testing.T) gameid.Table {
	t.Helper()
	tbl, err := gameid.Lookup(gameid.SkyrimSE)
	if err != nil {
		t.Fatalf("lookup SkyrimSE: %v", err)
	}
	return tbl
}

func TestReader_Read_ESP(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := createTestPlugin(t, testPluginOptions{
		description: "A mod, version 1.2.3",
		masters:     []string{"Skyrim.esm"},
	})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if facts.IsMaster {
		t.Error("expected IsMaster false")
	}
	if len(facts.Masters) != 1 || facts.Masters[0] != "Skyrim.esm" {
		t.Errorf("expected masters [Skyrim.esm], got %v", facts.Masters)
	}
	if facts.VersionString != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %q", facts.VersionString)
	}
}

func TestReader_Read_ESM(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := createTestPlugin(t, testPluginOptions{flags: FlagMaster})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esm")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !facts.IsMaster {
		t.Error("expected IsMaster true")
	}
}

func TestReader_Read_ESL(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := createTestPlugin(t, testPluginOptions{flags: FlagMaster | FlagLight})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esl")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !facts.IsLight {
		t.Error("expected IsLight true")
	}
}

func TestReader_Read_LightUnsupportedForGame(t *testing.T) {
	table, err := gameid.Lookup(gameid.Oblivion)
	if err != nil {
		t.Fatalf("lookup Oblivion: %v", err)
	}
	r := NewReader(table)
	ctx := context.Background()

	data := createTestPlugin(t, testPluginOptions{flags: FlagLight})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if facts.IsLight {
		t.Error("expected IsLight false: Oblivion does not support light plugins")
	}
}

func TestReader_Read_MultipleMasters(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	masters := []string{"Skyrim.esm", "Update.esm", "Dawnguard.esm"}
	data := createTestPlugin(t, testPluginOptions{masters: masters})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(facts.Masters) != 3 {
		t.Fatalf("expected 3 masters, got %d", len(facts.Masters))
	}
	for i, m := range masters {
		if string(facts.Masters[i]) != m {
			t.Errorf("master %d: expected %q, got %q", i, m, facts.Masters[i])
		}
	}
}

func TestReader_Read_NoMasters(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := createTestPlugin(t, testPluginOptions{flags: FlagMaster})

	facts, err := r.Read(ctx, bytes.NewReader(data), "Skyrim.esm")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(facts.Masters) != 0 {
		t.Errorf("expected 0 masters, got %d", len(facts.Masters))
	}
}

func TestReader_Read_FormIDResolution(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	// masterIndex 0 resolves to Skyrim.esm, masterIndex 1 (== len(masters))
	// resolves to the plugin itself.
	data := createTestPlugin(t, testPluginOptions{
		masters:       []string{"Skyrim.esm"},
		recordFormIDs: []uint32{0x00000010, 0x01000020},
	})

	facts, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if _, ok := facts.FormIDs[FormKey{Master: "Skyrim.esm", Object: 0x10}]; !ok {
		t.Error("expected FormID resolved against Skyrim.esm")
	}
	if _, ok := facts.FormIDs[FormKey{Master: "test.esp", Object: 0x20}]; !ok {
		t.Error("expected FormID resolved against the plugin itself")
	}
	if facts.NewObjectCount() != 1 {
		t.Errorf("expected 1 self-authored object, got %d", facts.NewObjectCount())
	}
}

func TestReader_Read_InvalidSignature(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := append([]byte("XXXX"), make([]byte, 20)...)

	_, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err == nil {
		t.Error("expected error for invalid signature")
	}
}

func TestReader_Read_TruncatedFile(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx := context.Background()

	data := append([]byte(SignatureTES4), make([]byte, 6)...)

	_, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err == nil {
		t.Error("expected error for truncated file")
	}
}

func TestReader_Read_ContextCancellation(t *testing.T) {
	r := NewReader(skyrimSE(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := createTestPlugin(t, testPluginOptions{})

	_, err := r.Read(ctx, bytes.NewReader(data), "test.esp")
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsValidAsLight(t *testing.T) {
	facts := &Facts{
		Name: "test.esl",
		FormIDs: map[FormKey]struct{}{
			{Master: "test.esl", Object: 0x800}: {},
			{Master: "test.esl", Object: 0xFFF}: {},
		},
	}
	if !facts.IsValidAsLight() {
		t.Error("expected objects within 0x800-0xFFF to be valid as light")
	}

	facts.FormIDs[FormKey{Master: "test.esl", Object: 0x1000}] = struct{}{}
	if facts.IsValidAsLight() {
		t.Error("expected object 0x1000 to invalidate light plugin status")
	}
}

func TestIsValidAsUpdate(t *testing.T) {
	facts := &Facts{
		Name: "test.esp",
		FormIDs: map[FormKey]struct{}{
			{Master: "Skyrim.esm", Object: 0x10}: {},
		},
	}
	if !facts.IsValidAsUpdate() {
		t.Error("expected plugin with only override records to be valid as an update")
	}

	facts.FormIDs[FormKey{Master: "test.esp", Object: 0x20}] = struct{}{}
	if facts.IsValidAsUpdate() {
		t.Error("expected a self-authored record to invalidate update plugin status")
	}
}

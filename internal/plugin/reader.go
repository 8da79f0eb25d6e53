package plugin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/pluginref"
	"github.com/loot-core/loot/internal/version"
)

// Reader reads and parses plugin file headers. A Reader is pure
// and holds no shared state, so the same instance may be used
// concurrently across worker goroutines.
type Reader struct {
	Game gameid.Table
}

// NewReader creates a Reader bound to game's capability table, which
// determines the expected header magic and which flag bits are
// meaningful.
func NewReader(game gameid.Table) *Reader {
	return &Reader{Game: game}
}

// ReadFile opens path, computes its CRC32 over the whole file, and
// parses its header and FormID set.
func (r *Reader) ReadFile(ctx context.Context, path string) (*Facts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin file: %w", err)
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	tee := io.TeeReader(f, crc)

	facts, err := r.Read(ctx, tee, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	// Drain any remaining bytes past what the header/record walker
	// consumed so the CRC covers the entire file.
	if _, err := io.Copy(crc, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	facts.CRC32 = crc.Sum32()
	return facts, nil
}

// Read parses a plugin header (and its FormID set) from r. filename
// becomes Facts.Name, the plugin that self-authored FormIDs resolve
// to. Read is pure: identical bytes always yield identical Facts.
func (r *Reader) Read(ctx context.Context, rd io.Reader, filename string) (*Facts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	facts := &Facts{
		Name:    Ref(filename),
		Masters: []Ref{},
		FormIDs: make(map[FormKey]struct{}),
	}

	br := bufio.NewReaderSize(rd, 64*1024)

	switch r.Game.HeaderMagic {
	case gameid.MagicTES3:
		return r.readTES3(br, facts)
	case gameid.MagicTES4:
		return r.readTES4(ctx, br, facts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGame, r.Game.ID)
	}
}

// --- TES4 family (Oblivion onward) ---

type tes4RecordHeader struct {
	signature string
	dataSize  uint32
	flags     uint32
	formID    uint32
}

func (r *Reader) readTES4(ctx context.Context, br *bufio.Reader, facts *Facts) (*Facts, error) {
	rh, err := readTES4RecordHeader(br)
	if err != nil {
		return nil, err
	}
	if rh.signature != SignatureTES4 {
		return nil, fmt.Errorf("%w: expected TES4, got %q", ErrNotAPlugin, rh.signature)
	}

	facts.IsMaster = rh.flags&FlagMaster != 0
	facts.IsLight = r.Game.LightSupported && rh.flags&FlagLight != 0
	facts.IsMedium = r.Game.MediumSupported && rh.flags&FlagMedium != 0
	facts.IsUpdate = r.Game.UpdateSupported && rh.flags&FlagUpdate != 0
	facts.IsBlueprint = r.Game.BlueprintSupported && rh.flags&FlagBlueprint != 0

	data := make([]byte, rh.dataSize)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	if err := parseTES4Subrecords(data, facts); err != nil {
		return nil, err
	}

	numRecords := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, ok, err := nextTES4TopLevel(br, facts)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if ok {
			facts.FormIDs[key] = struct{}{}
			numRecords++
		}
	}
	facts.IsEmpty = numRecords == 0

	return facts, nil
}

func readTES4RecordHeader(br *bufio.Reader) (*tes4RecordHeader, error) {
	var buf [24]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}

	signature := string(buf[0:4])
	for _, c := range signature {
		if c < 32 || c > 126 {
			return nil, fmt.Errorf("%w: invalid characters in signature", ErrNotAPlugin)
		}
	}

	return &tes4RecordHeader{
		signature: signature,
		dataSize:  binary.LittleEndian.Uint32(buf[4:8]),
		flags:     binary.LittleEndian.Uint32(buf[8:12]),
		formID:    binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// parseTES4Subrecords walks the TES4 header record's subrecords
// (each a 4-byte signature, a u16 size, and that many body bytes),
// recognizing HEDR/CNAM/SNAM/MAST/DATA/ONAM and skipping anything
// else by its declared size.
func parseTES4Subrecords(data []byte, facts *Facts) error {
	reader := bytes.NewReader(data)

	for reader.Len() > 0 {
		var subHeader [6]byte
		if _, err := io.ReadFull(reader, subHeader[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read subrecord header: %w", err)
		}

		subType := string(subHeader[0:4])
		subSize := binary.LittleEndian.Uint16(subHeader[4:6])

		subData := make([]byte, subSize)
		if _, err := io.ReadFull(reader, subData); err != nil {
			return fmt.Errorf("read subrecord %s data: %w", subType, err)
		}

		switch subType {
		case SignatureHEDR:
			if len(subData) >= 4 {
				v := math.Float32frombits(binary.LittleEndian.Uint32(subData[0:4]))
				facts.HeaderVersion = &v
			}
		case SignatureSNAM:
			desc := readNullString(subData)
			facts.VersionString = version.Extract(desc)
		case SignatureMAST:
			name := readNullString(subData)
			if name != "" {
				facts.Masters = append(facts.Masters, pluginref.Ref(pluginref.TrimGhost(name)))
			}
		case SignatureCNAM, SignatureDATA, SignatureONAM:
			// read but not otherwise needed
		}
	}

	return nil
}

// nextTES4TopLevel reads one top-level record or group and, for a
// plain record, resolves its FormID against facts.Masters. GRUP
// containers are descended into transparently: a GRUP's declared size
// includes its own 24-byte header, so the remaining bytes are
// re-walked as a nested sequence of the same shape.
func nextTES4TopLevel(br *bufio.Reader, facts *Facts) (FormKey, bool, error) {
	var buf [24]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return FormKey{}, false, io.EOF
		}
		return FormKey{}, false, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	signature := string(buf[0:4])
	if signature == SignatureGRUP {
		groupSize := binary.LittleEndian.Uint32(buf[4:8])
		if groupSize < 24 {
			return FormKey{}, false, fmt.Errorf("%w: group size too small", ErrTruncated)
		}
		body := make([]byte, groupSize-24)
		if _, err := io.ReadFull(br, body); err != nil {
			return FormKey{}, false, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		// A GRUP carries no FormID of its own; walkGroupBody
		// recurses into the body and records its children's
		// FormIDs directly.
		return walkGroupBody(body, facts)
	}

	dataSize := binary.LittleEndian.Uint32(buf[4:8])
	formID := binary.LittleEndian.Uint32(buf[12:16])

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(br, data); err != nil {
		return FormKey{}, false, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	return resolveFormID(formID, facts), true, nil
}

// walkGroupBody recurses through a GRUP's nested records/groups,
// inserting every resolved FormID directly into facts and returning
// a zero key with ok=false since the GRUP wrapper itself contributes
// no FormID (the caller's loop continues past it).
func walkGroupBody(body []byte, facts *Facts) (FormKey, bool, error) {
	br := bufio.NewReader(bytes.NewReader(body))
	for {
		key, ok, err := nextTES4TopLevel(br, facts)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return FormKey{}, false, nil
			}
			return FormKey{}, false, err
		}
		if ok {
			facts.FormIDs[key] = struct{}{}
		}
	}
}

// resolveFormID decomposes a raw FormID into (master index, object)
// and resolves the master index against facts.Masters, mapping it to
// the plugin itself when the index equals len(Masters).
func resolveFormID(formID uint32, facts *Facts) FormKey {
	masterIndex := formID >> 24
	object := formID & 0x00FFFFFF

	if int(masterIndex) < len(facts.Masters) {
		return FormKey{Master: facts.Masters[masterIndex], Object: object}
	}
	return FormKey{Master: facts.Name, Object: object}
}

// --- TES3 family (Morrowind) ---

func (r *Reader) readTES3(br *bufio.Reader, facts *Facts) (*Facts, error) {
	var sigBuf [4]byte
	if _, err := io.ReadFull(br, sigBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if string(sigBuf[:]) != SignatureTES3 {
		return nil, fmt.Errorf("%w: expected TES3, got %q", ErrNotAPlugin, string(sigBuf[:]))
	}

	var rest [12]byte
	if _, err := io.ReadFull(br, rest[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	dataSize := binary.LittleEndian.Uint32(rest[0:4])
	flags := binary.LittleEndian.Uint32(rest[8:12])
	facts.IsMaster = flags&FlagMaster != 0

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	reader := bytes.NewReader(data)
	for reader.Len() > 0 {
		var subHeader [8]byte
		if _, err := io.ReadFull(reader, subHeader[:]); err != nil {
			break
		}
		subType := string(subHeader[0:4])
		subSize := binary.LittleEndian.Uint32(subHeader[4:8])
		subData := make([]byte, subSize)
		if _, err := io.ReadFull(reader, subData); err != nil {
			return nil, fmt.Errorf("read subrecord %s data: %w", subType, err)
		}

		switch subType {
		case SignatureHEDR:
			if len(subData) >= 4 {
				v := math.Float32frombits(binary.LittleEndian.Uint32(subData[0:4]))
				facts.HeaderVersion = &v
			}
		case SignatureSNAM:
			facts.VersionString = version.Extract(readNullString(subData))
		case SignatureMAST:
			name := readNullString(subData)
			if name != "" {
				facts.Masters = append(facts.Masters, pluginref.Ref(pluginref.TrimGhost(name)))
			}
		}
	}

	// Morrowind does not embed a byte-indexed master reference in
	// each record the way the TES4 family does; every record it
	// introduces is counted against the plugin itself, enumerated by
	// position.
	recordCount := 0
	objectID := uint32(0)
	for {
		var header [16]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		sz := binary.LittleEndian.Uint32(header[4:8])
		body := make([]byte, sz)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		facts.FormIDs[FormKey{Master: facts.Name, Object: objectID}] = struct{}{}
		objectID++
		recordCount++
	}
	facts.IsEmpty = recordCount == 0

	return facts, nil
}

func readNullString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

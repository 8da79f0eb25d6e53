// Package plugin implements the Plugin Header Reader:
// a pure binary parser over the game's record/field format that
// extracts masters, flags, the record FormID set, CRC32, and header
// version, without mutating or depending on any shared state.
package plugin

import (
	"errors"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/pluginref"
)

// Common errors returned by the reader.
var (
	ErrNotAPlugin      = errors.New("not a plugin file")
	ErrTruncated       = errors.New("plugin file is truncated")
	ErrUnsupportedGame = errors.New("unsupported game")
)

// Ref is the plugin filename type used throughout this package.
type Ref = pluginref.Ref

// FormKey identifies a resolved record: the plugin (or master) that
// introduced it, plus the object portion of its FormID.
type FormKey struct {
	Master Ref
	Object uint32
}

// Facts is the product of reading a plugin header.
type Facts struct {
	Name Ref

	// Masters is ordered; the first plugin named must eventually
	// resolve to the game's own master (Invariant H2).
	Masters []Ref

	IsMaster     bool
	IsLight      bool
	IsMedium     bool
	IsUpdate     bool
	IsBlueprint  bool
	IsEmpty      bool
	LoadsArchive bool

	// HeaderVersion is the HEDR version field, nil if no HEDR subrecord
	// was present.
	HeaderVersion *float32

	// FormIDs is the set of record keys resolved against this
	// plugin's own master list.
	FormIDs map[FormKey]struct{}

	CRC32 uint32

	// VersionString is extracted from the header description field by
	// the ordered regex family in internal/version.
	VersionString string
}

// NewObjectCount returns the number of FormIDs this plugin introduces
// itself, as opposed to records it overrides in an installed master.
func (f *Facts) NewObjectCount() int {
	n := 0
	for k := range f.FormIDs {
		if k.Master.Equal(f.Name) {
			n++
		}
	}
	return n
}

// IsValidAsLight reports whether every new (self-authored) FormID's
// object portion lies in the light plugin's valid range. Override records are exempt.
func (f *Facts) IsValidAsLight() bool {
	r := gameid.LightRange()
	for k := range f.FormIDs {
		if k.Master.Equal(f.Name) && (k.Object < r.Min || k.Object > r.Max) {
			return false
		}
	}
	return true
}

// IsValidAsMedium reports whether every new FormID's object portion
// lies within the medium plugin's valid range.
func (f *Facts) IsValidAsMedium() bool {
	r := gameid.MediumRange()
	for k := range f.FormIDs {
		if k.Master.Equal(f.Name) && (k.Object < r.Min || k.Object > r.Max) {
			return false
		}
	}
	return true
}

// IsValidAsUpdate reports whether the plugin introduces no new
// records at all: every FormID resolves to an existing master record.
func (f *Facts) IsValidAsUpdate() bool {
	for k := range f.FormIDs {
		if k.Master.Equal(f.Name) {
			return false
		}
	}
	return true
}

// Record flag bits. Not every bit is meaningful for every game — see
// gameid.Table.LightSupported/MediumSupported/BlueprintSupported/UpdateSupported.
const (
	FlagMaster    uint32 = 1 << 0
	FlagBlueprint uint32 = 1 << 7
	FlagLight     uint32 = 1 << 9
	FlagMedium    uint32 = 1 << 10
	FlagUpdate    uint32 = 1 << 11
)

// Header record and subrecord signatures.
const (
	SignatureTES3 = "TES3"
	SignatureTES4 = "TES4"
	SignatureHEDR = "HEDR"
	SignatureCNAM = "CNAM"
	SignatureSNAM = "SNAM"
	SignatureMAST = "MAST"
	SignatureDATA = "DATA"
	SignatureONAM = "ONAM"
	SignatureGRUP = "GRUP"
)

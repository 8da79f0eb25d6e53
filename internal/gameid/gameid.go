// Package gameid defines the closed set of supported game titles and
// their per-game capability table (master file, plugin count limits,
// record-ID layout, header version floor).
package gameid

import "fmt"

// ID identifies one of the supported game titles.
type ID string

const (
	Morrowind  ID = "Morrowind"
	OpenMW     ID = "OpenMW"
	Oblivion   ID = "Oblivion"
	Nehrim     ID = "Nehrim"
	Skyrim     ID = "Skyrim"
	SkyrimSE   ID = "SkyrimSE"
	SkyrimVR   ID = "SkyrimVR"
	Enderal    ID = "Enderal"
	EnderalSE  ID = "EnderalSE"
	Fallout3   ID = "Fallout3"
	FalloutNV  ID = "FalloutNV"
	Fallout4   ID = "Fallout4"
	Fallout4VR ID = "Fallout4VR"
	Starfield  ID = "Starfield"
)

// HeaderMagic is the record signature that opens a plugin file for a
// given game family.
type HeaderMagic string

const (
	MagicTES3 HeaderMagic = "TES3"
	MagicTES4 HeaderMagic = "TES4"
)

// LightRange and MediumRange describe the valid object-ID ranges for
// light and medium plugins.
type ObjectRange struct {
	Min uint32
	Max uint32
}

var (
	lightRange  = ObjectRange{Min: 0x800, Max: 0xFFF}
	mediumRange = ObjectRange{Min: 0x000, Max: 0xFFFF}
)

// Table is the per-game capability record.
type Table struct {
	ID ID

	// HeaderMagic is the required first-record signature.
	HeaderMagic HeaderMagic

	// MasterFile is the game's own hard-coded master plugin filename.
	MasterFile string

	// HardcodedPrefix lists plugins (including MasterFile) that are
	// immovable and always load first, in this order.
	HardcodedPrefix []string

	// MaxActiveFull is the maximum number of active full-index plugins.
	MaxActiveFull int

	// MaxActiveLight is the maximum number of active light-index
	// plugins, 0 if unsupported.
	MaxActiveLight int

	// MinHeaderVersion is the lowest header HEDR version LOOT accepts
	// without a HeaderVersionTooLow warning.
	MinHeaderVersion float32

	LightSupported     bool
	MediumSupported    bool
	BlueprintSupported bool
	UpdateSupported    bool

	// RequiresAllMasters is true for games where a missing master is
	// always an error, even on an inactive plugin.
	RequiresAllMasters bool

	// UsesLoadOrderTxt is true for games that persist the full load
	// order explicitly in a loadorder.txt-style file. When false, the full order is derived from plugin
	// file modification timestamps instead.
	UsesLoadOrderTxt bool
}

var tables = map[ID]Table{
	Morrowind: {
		ID:                 Morrowind,
		HeaderMagic:        MagicTES3,
		MasterFile:         "Morrowind.esm",
		HardcodedPrefix:    []string{"Morrowind.esm"},
		MaxActiveFull:      255,
		MinHeaderVersion:   1.2,
		RequiresAllMasters: true,
	},
	OpenMW: {
		ID:                 OpenMW,
		HeaderMagic:        MagicTES3,
		MasterFile:         "Morrowind.esm",
		HardcodedPrefix:    []string{"Morrowind.esm"},
		MaxActiveFull:      255,
		MinHeaderVersion:   1.2,
		RequiresAllMasters: true,
	},
	Oblivion: {
		ID:               Oblivion,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Oblivion.esm",
		HardcodedPrefix:  []string{"Oblivion.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 0.8,
	},
	Nehrim: {
		ID:               Nehrim,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Nehrim.esm",
		HardcodedPrefix:  []string{"Oblivion.esm", "Nehrim.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 0.8,
	},
	Skyrim: {
		ID:               Skyrim,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Skyrim.esm",
		HardcodedPrefix:  []string{"Skyrim.esm", "Update.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 0.94,
	},
	SkyrimSE: {
		ID:                 SkyrimSE,
		HeaderMagic:        MagicTES4,
		MasterFile:         "Skyrim.esm",
		HardcodedPrefix:    []string{"Skyrim.esm", "Update.esm", "Dawnguard.esm", "HearthFires.esm", "Dragonborn.esm"},
		MaxActiveFull:      254,
		MaxActiveLight:     4096,
		MinHeaderVersion:   1.7,
		LightSupported:     true,
		UpdateSupported:    true,
		RequiresAllMasters: false,
		UsesLoadOrderTxt:   true,
	},
	SkyrimVR: {
		ID:               SkyrimVR,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Skyrim.esm",
		HardcodedPrefix:  []string{"Skyrim.esm", "Update.esm", "Dawnguard.esm", "HearthFires.esm", "Dragonborn.esm", "SkyrimVR.esm"},
		MaxActiveFull:    254,
		MaxActiveLight:   4096,
		MinHeaderVersion: 1.7,
		LightSupported:   true,
		UpdateSupported:  true,
		UsesLoadOrderTxt:   true,
	},
	Enderal: {
		ID:               Enderal,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Skyrim.esm",
		HardcodedPrefix:  []string{"Skyrim.esm", "Update.esm", "Enderal - Forgotten Stories.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 0.94,
	},
	EnderalSE: {
		ID:                 EnderalSE,
		HeaderMagic:        MagicTES4,
		MasterFile:         "Skyrim.esm",
		HardcodedPrefix:    []string{"Skyrim.esm", "Update.esm", "Dawnguard.esm", "HearthFires.esm", "Dragonborn.esm", "Enderal - Forgotten Stories.esm"},
		MaxActiveFull:      254,
		MaxActiveLight:     4096,
		MinHeaderVersion:   1.7,
		LightSupported:     true,
		UpdateSupported:    true,
		UsesLoadOrderTxt:   true,
	},
	Fallout3: {
		ID:               Fallout3,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Fallout3.esm",
		HardcodedPrefix:  []string{"Fallout3.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 0.94,
	},
	FalloutNV: {
		ID:               FalloutNV,
		HeaderMagic:      MagicTES4,
		MasterFile:       "FalloutNV.esm",
		HardcodedPrefix:  []string{"FalloutNV.esm"},
		MaxActiveFull:    255,
		MinHeaderVersion: 1.32,
	},
	Fallout4: {
		ID:                 Fallout4,
		HeaderMagic:        MagicTES4,
		MasterFile:         "Fallout4.esm",
		HardcodedPrefix:    []string{"Fallout4.esm", "DLCRobot.esm", "DLCworkshop01.esm", "DLCCoast.esm", "DLCworkshop02.esm", "DLCworkshop03.esm", "DLCNukaWorld.esm"},
		MaxActiveFull:      254,
		MaxActiveLight:     4096,
		MinHeaderVersion:   0.95,
		LightSupported:     true,
		UpdateSupported:    true,
		UsesLoadOrderTxt:   true,
	},
	Fallout4VR: {
		ID:               Fallout4VR,
		HeaderMagic:      MagicTES4,
		MasterFile:       "Fallout4.esm",
		HardcodedPrefix:  []string{"Fallout4.esm", "Fallout4_VR.esm"},
		MaxActiveFull:    254,
		MaxActiveLight:   4096,
		MinHeaderVersion: 0.95,
		LightSupported:   true,
		UpdateSupported:  true,
		UsesLoadOrderTxt:   true,
	},
	Starfield: {
		ID:                 Starfield,
		HeaderMagic:        MagicTES4,
		MasterFile:         "Starfield.esm",
		HardcodedPrefix:    []string{"Starfield.esm", "Constellation.esm", "OldMars.esm", "SFBGS003.esm", "SFBGS004.esm", "SFBGS006.esm", "SFBGS007.esm", "SFBGS008.esm"},
		MaxActiveFull:      253,
		MaxActiveLight:     4096,
		MinHeaderVersion:   0.96,
		LightSupported:     true,
		MediumSupported:    true,
		BlueprintSupported: true,
		UpdateSupported:    true,
		RequiresAllMasters: true,
		UsesLoadOrderTxt:   true,
	},
}

// Lookup returns the capability table for id, or an error if id is not
// one of the closed set of supported games.
func Lookup(id ID) (Table, error) {
	t, ok := tables[id]
	if !ok {
		return Table{}, fmt.Errorf("unsupported game: %q", id)
	}
	return t, nil
}

// LightRange returns the valid object-ID range for light plugins.
func LightRange() ObjectRange { return lightRange }

// MediumRange returns the valid object-ID range for medium plugins.
func MediumRange() ObjectRange { return mediumRange }

// All returns every supported game id, in declaration order.
func All() []ID {
	return []ID{
		Morrowind, OpenMW, Oblivion, Nehrim, Skyrim, SkyrimSE, SkyrimVR,
		Enderal, EnderalSE, Fallout3, FalloutNV, Fallout4, Fallout4VR, Starfield,
	}
}

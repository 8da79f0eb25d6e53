// Package metadata implements the Metadata Store: parsed
// masterlist/userlist/prelude documents, typed per-plugin metadata,
// and the layered merge semantics that combine them into one view per
// plugin.
package metadata

import (
	"strings"

	"golang.org/x/text/language"
)

// LocalizedText is a set of language-tagged strings with at most one
// entry per language.
type LocalizedText []LocalizedString

// LocalizedString is one language's rendering of a piece of text.
type LocalizedString struct {
	Text     string `yaml:"text"`
	Language string `yaml:"lang,omitempty"`
}

// Select applies the selection rule: exact language match, else base
// language match (fr_FR -> fr), else "en", else the first entry.
func (t LocalizedText) Select(language string) string {
	if len(t) == 0 {
		return ""
	}
	base := baseLanguage(language)
	var baseMatch, enMatch string
	haveBase, haveEn := false, false
	for _, s := range t {
		if strings.EqualFold(s.Language, language) {
			return s.Text
		}
		if !haveBase && strings.EqualFold(baseLanguage(s.Language), base) {
			baseMatch, haveBase = s.Text, true
		}
		if !haveEn && strings.EqualFold(s.Language, "en") {
			enMatch, haveEn = s.Text, true
		}
	}
	if haveBase {
		return baseMatch
	}
	if haveEn {
		return enMatch
	}
	return t[0].Text
}

// baseLanguage reduces a BCP-47-ish tag (which masterlist/userlist
// authors write inconsistently, e.g. "fr_FR" as well as "fr-FR") to
// its base language subtag via golang.org/x/text/language, falling
// back to the raw tag if it doesn't parse as a language tag at all.
func baseLanguage(tag string) string {
	normalized := strings.Replace(tag, "_", "-", 1)
	parsed, err := language.Parse(normalized)
	if err != nil {
		return tag
	}
	base, confidence := parsed.Base()
	if confidence == language.No {
		return tag
	}
	return base.String()
}

// File references another plugin by name or regex, optionally
// conditioned.
type File struct {
	Name      string        `yaml:"name"`
	Display   string        `yaml:"display,omitempty"`
	Condition string        `yaml:"condition,omitempty"`
	Detail    LocalizedText `yaml:"detail,omitempty"`
	Constraint string       `yaml:"constraint,omitempty"`
}

// identity is the File's merge-identity per D-MERGE: case-insensitive name.
func (f File) identity() string { return strings.ToLower(f.Name) }

// MessageType is one of the three severities a Message may carry.
type MessageType string

const (
	Say   MessageType = "say"
	Warn  MessageType = "warn"
	Error MessageType = "error"
)

// Message is a conditioned, localized note attached to a plugin or
// emitted globally.
type Message struct {
	Type      MessageType   `yaml:"type"`
	Content   LocalizedText `yaml:"content"`
	Condition string        `yaml:"condition,omitempty"`
}

// Tag is a suggested or removed Bash Tag.
type Tag struct {
	Name      string `yaml:"name"`
	Addition  bool   `yaml:"-"`
	Condition string `yaml:"condition,omitempty"`
}

// identity is the Tag's merge-identity per D-MERGE: (name, addition).
func (t Tag) identity() (string, bool) { return strings.ToLower(t.Name), t.Addition }

// CleaningData records a known-dirty CRC and the utility/result of
// cleaning it.
type CleaningData struct {
	Crc             uint32        `yaml:"crc"`
	Utility         string        `yaml:"util"`
	Itm             uint32        `yaml:"itm,omitempty"`
	DeletedRefs     uint32        `yaml:"udr,omitempty"`
	DeletedNavmeshes uint32       `yaml:"nav,omitempty"`
	Detail          LocalizedText `yaml:"detail,omitempty"`
}

// Location is a download or info URL attached to a plugin.
type Location struct {
	URL  string `yaml:"link"`
	Name string `yaml:"name,omitempty"`
}

func (l Location) identity() string { return l.URL }

// PluginMetadata is one layer's contribution for a single plugin.
type PluginMetadata struct {
	Name              string         `yaml:"name"`
	Group             string         `yaml:"group,omitempty"`
	LoadAfter         []File         `yaml:"after,omitempty"`
	Requirements      []File         `yaml:"req,omitempty"`
	Incompatibilities []File         `yaml:"inc,omitempty"`
	Messages          []Message      `yaml:"msg,omitempty"`
	Tags              []Tag          `yaml:"tag,omitempty"`
	Dirty             []CleaningData `yaml:"dirty,omitempty"`
	Clean             []CleaningData `yaml:"clean,omitempty"`
	Locations         []Location     `yaml:"url,omitempty"`
}

// DefaultGroup is the implicit group every plugin belongs to when
// neither the masterlist nor the userlist assigns it one explicitly.
const DefaultGroup = "default"

// Group is a node in the group DAG.
type Group struct {
	Name        string   `yaml:"name"`
	LoadAfter   []string `yaml:"after,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// Layer is one parsed masterlist/userlist/prelude document.
type Layer struct {
	Plugins        []PluginMetadata
	Groups         []Group
	BashTags       []string
	GlobalMessages []Message
}

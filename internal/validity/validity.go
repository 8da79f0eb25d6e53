// Package validity implements the Validity Checker: a
// per-plugin diagnostic pass combining the plugin header reader, load
// order state, and metadata store into typed, severity-ranked
// messages.
package validity

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/metadata"
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
)

// Severity ranks a Message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeveritySay     Severity = "say"
)

// Kind is the stable machine tag naming which rule produced a Message.
type Kind string

const (
	MissingRequirement        Kind = "MissingRequirement"
	IncompatibilityPresent    Kind = "IncompatibilityPresent"
	MissingMaster             Kind = "MissingMaster"
	InactiveMaster            Kind = "InactiveMaster"
	SelfMaster                Kind = "SelfMaster"
	InvalidLightPlugin        Kind = "InvalidLightPlugin"
	InvalidMediumPlugin       Kind = "InvalidMediumPlugin"
	InvalidUpdatePlugin       Kind = "InvalidUpdatePlugin"
	UnsupportedLightPlugin    Kind = "UnsupportedLightPlugin"
	BlueprintMasterDependency Kind = "BlueprintMasterDependency"
	LightRequiresNonMaster    Kind = "LightRequiresNonMaster"
	HeaderVersionTooLow       Kind = "HeaderVersionTooLow"
	UndefinedGroup            Kind = "UndefinedGroup"
	BashTagsOverride          Kind = "BashTagsOverride"
	Dirty                     Kind = "Dirty"
	TooManyActivePlugins      Kind = "TooManyActivePlugins"
)

// Message is one diagnostic produced for a plugin, or a global
// message not scoped to any single plugin.
type Message struct {
	Kind          Kind
	Severity      Severity
	Plugin        pluginref.Ref
	RelatedPlugin pluginref.Ref
	Text          string
}

// Facts is the subset of plugin.Facts the checker needs, kept as an
// interface-shaped struct so callers can pass the real type directly.
type Facts = plugin.Facts

// OrderView answers the checker's questions about load order without
// depending on loadorderfs directly, keeping the two packages
// decoupled.
type OrderView interface {
	IsActive(name pluginref.Ref) bool
}

// Checker runs the per-plugin diagnostic pass.
type Checker struct {
	Game     gameid.Table
	Metadata *metadata.Store
	Order    OrderView
}

// NewChecker creates a Checker for game, backed by store and order.
func NewChecker(game gameid.Table, store *metadata.Store, order OrderView) *Checker {
	return &Checker{Game: game, Metadata: store, Order: order}
}

// evalFn evaluates a condition string to a bool; the sorting/session
// layer supplies this (backed by internal/condition), keeping this
// package free of a direct dependency on the expression parser.
type evalFn = func(condition string) (bool, error)

// CheckPlugin runs every per-plugin diagnostic rule for P, given the
// full set of installed plugins (by lowercase name) and a condition
// evaluator.
func (c *Checker) CheckPlugin(p *Facts, installed map[string]*Facts, eval evalFn) []Message {
	var msgs []Message
	meta := c.Metadata.Lookup(p.Name)
	active := c.Order.IsActive(p.Name)

	for _, req := range meta.Requirements {
		ok, err := conditionOK(req.Condition, eval)
		if err != nil || !ok {
			continue
		}
		if active && !fileSatisfied(req, installed, eval) {
			msgs = append(msgs, Message{
				Kind: MissingRequirement, Severity: SeverityError, Plugin: p.Name,
				RelatedPlugin: pluginref.Ref(req.Name),
				Text:          fmt.Sprintf("%s requires %q, which is missing or fails its constraint.", p.Name, req.Name),
			})
		}
	}

	for _, inc := range meta.Incompatibilities {
		ok, err := conditionOK(inc.Condition, eval)
		if err != nil || !ok {
			continue
		}
		if active && isActiveOrInstalled(inc, installed, c.Order) {
			msgs = append(msgs, Message{
				Kind: IncompatibilityPresent, Severity: SeverityError, Plugin: p.Name,
				RelatedPlugin: pluginref.Ref(inc.Name),
				Text:          fmt.Sprintf("%s is incompatible with %q, which is present.", p.Name, inc.Name),
			})
		}
	}

	hasFilterTag := false
	for _, tag := range meta.Tags {
		if tag.Name == "Filter" && tag.Addition {
			hasFilterTag = true
		}
	}

	for _, m := range p.Masters {
		master, ok := installed[m.Key()]
		if !ok {
			sev := SeverityWarning
			if active || c.Game.RequiresAllMasters {
				sev = SeverityError
			}
			msgs = append(msgs, Message{
				Kind: MissingMaster, Severity: sev, Plugin: p.Name, RelatedPlugin: m,
				Text: fmt.Sprintf("%s requires master %q, which is not installed.", p.Name, m),
			})
			continue
		}
		_ = master
		if active && !c.Order.IsActive(m) && !hasFilterTag {
			msgs = append(msgs, Message{
				Kind: InactiveMaster, Severity: SeverityError, Plugin: p.Name, RelatedPlugin: m,
				Text: fmt.Sprintf("%s's master %q is installed but not active.", p.Name, m),
			})
		}
	}

	for _, m := range p.Masters {
		if m.Equal(p.Name) {
			msgs = append(msgs, Message{
				Kind: SelfMaster, Severity: SeverityError, Plugin: p.Name,
				Text: fmt.Sprintf("%s lists itself as its own master.", p.Name),
			})
		}
	}

	if p.IsLight {
		if !c.Game.LightSupported {
			sev := SeverityWarning
			msgs = append(msgs, Message{
				Kind: UnsupportedLightPlugin, Severity: sev, Plugin: p.Name,
				Text: fmt.Sprintf("%s is flagged light, but %s does not support light plugins.", p.Name, c.Game.ID),
			})
		} else if !p.IsValidAsLight() {
			msgs = append(msgs, Message{
				Kind: InvalidLightPlugin, Severity: SeverityError, Plugin: p.Name,
				Text: fmt.Sprintf("%s is flagged light but has a FormID outside the light range.", p.Name),
			})
		}
		for _, m := range p.Masters {
			if master, ok := installed[m.Key()]; ok && !master.IsMaster {
				msgs = append(msgs, Message{
					Kind: LightRequiresNonMaster, Severity: SeverityError, Plugin: p.Name, RelatedPlugin: m,
					Text: fmt.Sprintf("%s is light but has non-master %q as a master.", p.Name, m),
				})
			}
		}
	}

	if p.IsMedium && !p.IsValidAsMedium() {
		msgs = append(msgs, Message{
			Kind: InvalidMediumPlugin, Severity: SeverityError, Plugin: p.Name,
			Text: fmt.Sprintf("%s is flagged medium but has a FormID outside the medium range.", p.Name),
		})
	}

	if p.IsUpdate && !p.IsValidAsUpdate() {
		msgs = append(msgs, Message{
			Kind: InvalidUpdatePlugin, Severity: SeverityError, Plugin: p.Name,
			Text: fmt.Sprintf("%s is flagged update but introduces new records.", p.Name),
		})
	}

	if c.Game.BlueprintSupported && !p.IsBlueprint && p.IsMaster {
		for _, m := range p.Masters {
			if master, ok := installed[m.Key()]; ok && master.IsBlueprint {
				msgs = append(msgs, Message{
					Kind: BlueprintMasterDependency, Severity: SeverityWarning, Plugin: p.Name, RelatedPlugin: m,
					Text: fmt.Sprintf("%s is a master that depends on blueprint master %q.", p.Name, m),
				})
			}
		}
	}

	if p.HeaderVersion != nil && *p.HeaderVersion < c.Game.MinHeaderVersion {
		msgs = append(msgs, Message{
			Kind: HeaderVersionTooLow, Severity: SeverityWarning, Plugin: p.Name,
			Text: fmt.Sprintf("%s has header version %.2f, below %s's minimum of %.2f.", p.Name, *p.HeaderVersion, c.Game.ID, c.Game.MinHeaderVersion),
		})
	}

	if meta.Group != "" {
		if _, ok := c.Metadata.Group(meta.Group); !ok {
			msgs = append(msgs, Message{
				Kind: UndefinedGroup, Severity: SeverityError, Plugin: p.Name,
				Text: fmt.Sprintf("%s belongs to group %q, which is not defined.", p.Name, meta.Group),
			})
		}
	}

	for _, d := range meta.Dirty {
		if d.Crc == p.CRC32 {
			msgs = append(msgs, Message{
				Kind: Dirty, Severity: SeverityWarning, Plugin: p.Name,
				Text: fmt.Sprintf("%s matches a known dirty CRC (cleaned with %s; %d ITM, %d deleted references).", p.Name, d.Utility, d.Itm, d.DeletedRefs),
			})
		}
	}

	return msgs
}

func conditionOK(condition string, eval evalFn) (bool, error) {
	if condition == "" || eval == nil {
		return true, nil
	}
	return eval(condition)
}

// fileSatisfied reports whether a requirement's file is both present
// and, if it names a constraint, evaluates that constraint true. A
// constraint that fails to parse or evaluate counts as unsatisfied,
// the same as a missing file.
func fileSatisfied(f metadata.File, installed map[string]*Facts, eval evalFn) bool {
	if _, ok := installed[pluginref.Ref(f.Name).Key()]; !ok {
		return false
	}
	ok, err := conditionOK(f.Constraint, eval)
	return err == nil && ok
}

func isActiveOrInstalled(f metadata.File, installed map[string]*Facts, order OrderView) bool {
	ref := pluginref.Ref(f.Name)
	if _, ok := installed[ref.Key()]; !ok {
		return false
	}
	return order.IsActive(ref)
}

// CheckActivePluginLimits emits global messages when the active
// plugin count for any partition exceeds the game's safe limit.
func CheckActivePluginLimits(game gameid.Table, activeFull, activeLight int) []Message {
	var msgs []Message
	if game.MaxActiveFull > 0 && activeFull > game.MaxActiveFull {
		msgs = append(msgs, Message{
			Kind: TooManyActivePlugins, Severity: SeverityError,
			Text: fmt.Sprintf("%s active full plugins exceeds %s's safe limit of %s.",
				humanize.Comma(int64(activeFull)), game.ID, humanize.Comma(int64(game.MaxActiveFull))),
		})
	}
	if game.MaxActiveLight > 0 && activeLight > game.MaxActiveLight {
		msgs = append(msgs, Message{
			Kind: TooManyActivePlugins, Severity: SeverityError,
			Text: fmt.Sprintf("%s active light plugins exceeds %s's safe limit of %s.",
				humanize.Comma(int64(activeLight)), game.ID, humanize.Comma(int64(game.MaxActiveLight))),
		})
	}
	return msgs
}

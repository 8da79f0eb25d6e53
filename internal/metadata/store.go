package metadata

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/loot-core/loot/internal/pluginref"
)

// Store owns the parsed masterlist+prelude and userlist layers and
// exposes a merged PluginMetadata view per installed plugin.
type Store struct {
	masterlist *Layer
	userlist   *Layer

	masterlistLiteral map[string]PluginMetadata
	masterlistRegex   []regexEntry
	userlistLiteral   map[string]PluginMetadata
	userlistRegex     []regexEntry

	groups map[string]Group
}

type regexEntry struct {
	re   *regexp.Regexp
	meta PluginMetadata
}

// NewStore parses masterlistPath (required) and, if non-empty,
// preludePath and userlistPath, merging the prelude's plugins/groups
// under the masterlist's. Per-entry parse failures inside a document
// are recoverable and collected as a multierror; the document as a
// whole still loads.
func NewStore(masterlistPath, preludePath, userlistPath string) (*Store, *multierror.Error, error) {
	var warnings *multierror.Error

	masterlist, err := loadLayer(masterlistPath)
	if err != nil {
		return nil, warnings, fmt.Errorf("load masterlist: %w", err)
	}

	if preludePath != "" {
		prelude, err := loadLayer(preludePath)
		if err != nil {
			warnings = multierror.Append(warnings, fmt.Errorf("load prelude: %w", err))
		} else {
			masterlist = prependLayer(prelude, masterlist)
		}
	}

	var userlist *Layer
	if userlistPath != "" {
		userlist, err = loadLayer(userlistPath)
		if err != nil {
			warnings = multierror.Append(warnings, fmt.Errorf("load userlist: %w", err))
			userlist = &Layer{}
		}
	} else {
		userlist = &Layer{}
	}

	s := &Store{masterlist: masterlist, userlist: userlist}
	if err := s.index(); err != nil {
		warnings = multierror.Append(warnings, err)
	}
	return s, warnings, nil
}

func loadLayer(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(path, data)
}

// prependLayer merges prelude's groups/plugins/bash_tags beneath
// base's, so base's entries win any literal collisions.
func prependLayer(prelude, base *Layer) *Layer {
	out := &Layer{
		Groups:         append(append([]Group{}, prelude.Groups...), base.Groups...),
		BashTags:       append(append([]string{}, prelude.BashTags...), base.BashTags...),
		GlobalMessages: append(append([]Message{}, prelude.GlobalMessages...), base.GlobalMessages...),
	}
	baseNames := make(map[string]bool, len(base.Plugins))
	for _, p := range base.Plugins {
		baseNames[normalizeKey(p.Name)] = true
	}
	out.Plugins = append(out.Plugins, base.Plugins...)
	for _, p := range prelude.Plugins {
		if !baseNames[normalizeKey(p.Name)] {
			out.Plugins = append(out.Plugins, p)
		}
	}
	return out
}

func (s *Store) index() error {
	s.groups = make(map[string]Group)
	s.groups[DefaultGroup] = Group{Name: DefaultGroup}
	for _, g := range s.masterlist.Groups {
		s.groups[g.Name] = g
	}
	for _, g := range s.userlist.Groups {
		s.groups[g.Name] = g
	}

	var err error
	s.masterlistLiteral, s.masterlistRegex, err = partitionPlugins(s.masterlist.Plugins)
	if err != nil {
		return err
	}
	s.userlistLiteral, s.userlistRegex, err = partitionPlugins(s.userlist.Plugins)
	return err
}

// partitionPlugins splits a layer's plugin entries into literal
// (installable-name) and regex-keyed entries.
func partitionPlugins(plugins []PluginMetadata) (map[string]PluginMetadata, []regexEntry, error) {
	literal := make(map[string]PluginMetadata, len(plugins))
	var regexes []regexEntry
	var errs *multierror.Error

	for _, p := range plugins {
		if isRegexName(p.Name) {
			re, err := regexp.Compile("(?i)^" + p.Name + "$")
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("plugin %q: %w", p.Name, err))
				continue
			}
			regexes = append(regexes, regexEntry{re: re, meta: p})
			continue
		}
		literal[strings.ToLower(p.Name)] = p
	}
	return literal, regexes, errs.ErrorOrNil()
}

// isRegexName reports whether name uses a metacharacter that could
// not appear in a literal Windows filename, marking it as a regex key.
func isRegexName(name string) bool {
	return strings.ContainsAny(name, `:\*?|`)
}

// Lookup returns the merged metadata for plugin per D-MERGE: intrinsic
// (caller-supplied, usually empty) < masterlist+prelude < userlist,
// including every masterlist/userlist regex entry that matches
// plugin's name, literal entries taking precedence over regex ones.
func (s *Store) Lookup(plugin pluginref.Ref) PluginMetadata {
	name := plugin.String()
	key := strings.ToLower(name)

	merged := PluginMetadata{Name: name}
	merged = mergeRegexMatches(merged, s.masterlistRegex, name)
	if m, ok := s.masterlistLiteral[key]; ok {
		merged = Merge(merged, m)
	}
	merged = mergeRegexMatches(merged, s.userlistRegex, name)
	if m, ok := s.userlistLiteral[key]; ok {
		merged = Merge(merged, m)
	}
	merged.Name = name
	return merged
}

// LookupLayered returns the masterlist+prelude view and the userlist
// view separately, so callers that must distinguish the two layers
// (e.g. tagging sort edges MasterlistLoadAfter vs UserLoadAfter) don't
// have to re-merge them themselves.
func (s *Store) LookupLayered(plugin pluginref.Ref) (masterlist, userlist PluginMetadata) {
	name := plugin.String()
	key := strings.ToLower(name)

	masterlist = PluginMetadata{Name: name}
	masterlist = mergeRegexMatches(masterlist, s.masterlistRegex, name)
	if m, ok := s.masterlistLiteral[key]; ok {
		masterlist = Merge(masterlist, m)
	}
	masterlist.Name = name

	userlist = PluginMetadata{Name: name}
	userlist = mergeRegexMatches(userlist, s.userlistRegex, name)
	if m, ok := s.userlistLiteral[key]; ok {
		userlist = Merge(userlist, m)
	}
	userlist.Name = name
	return masterlist, userlist
}

func mergeRegexMatches(acc PluginMetadata, entries []regexEntry, name string) PluginMetadata {
	for _, e := range entries {
		if e.re.MatchString(name) {
			acc = Merge(acc, e.meta)
		}
	}
	return acc
}

// Group returns the named group, if defined in any layer.
func (s *Store) Group(name string) (Group, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// Groups returns every group defined across all layers.
func (s *Store) Groups() []Group {
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

// GlobalMessages returns the masterlist's and userlist's global
// messages, in that order.
func (s *Store) GlobalMessages() []Message {
	out := make([]Message, 0, len(s.masterlist.GlobalMessages)+len(s.userlist.GlobalMessages))
	out = append(out, s.masterlist.GlobalMessages...)
	out = append(out, s.userlist.GlobalMessages...)
	return out
}

// BashTags returns the union of known tag names across all layers,
// for editor autocompletion.
func (s *Store) BashTags() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{s.masterlist.BashTags, s.userlist.BashTags} {
		for _, tag := range list {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out
}

package metadata

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError names the source document and an approximate location of
// a masterlist/userlist/prelude parsing failure.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// wireLayer mirrors the on-disk document shape: a YAML mapping with
// groups/plugins/bash_tags/globals keys, grounded on
// original_source/src/parsers.h's masterlist schema (condition, name,
// after/req/inc, msg, tag fields per plugin entry).
type wireLayer struct {
	Groups   []Group          `yaml:"groups"`
	Plugins  []PluginMetadata `yaml:"plugins"`
	BashTags []string         `yaml:"bash_tags"`
	Globals  []Message        `yaml:"globals"`
}

// ParseDocument parses a single masterlist, userlist or prelude
// document. It does not merge a prelude itself: NewStore does that,
// placing the prelude's plugins/groups/bash_tags beneath the
// masterlist's (see prependLayer).
func ParseDocument(name string, data []byte) (*Layer, error) {
	var wire wireLayer
	if err := yaml.Unmarshal(data, &wire); err != nil {
		// yaml.v3 embeds the line number in err's own message; this
		// wrapper just attaches the source file name.
		return nil, &ParseError{File: name, Err: err}
	}

	layer := &Layer{
		Groups:         wire.Groups,
		BashTags:       wire.BashTags,
		GlobalMessages: wire.Globals,
	}

	seen := make(map[string]bool, len(wire.Plugins))
	for _, p := range wire.Plugins {
		key := normalizeKey(p.Name)
		if seen[key] {
			// Invariant D1 violation: duplicate literal/regex key within
			// one layer. Recoverable: skip the duplicate, keep the first.
			continue
		}
		seen[key] = true
		layer.Plugins = append(layer.Plugins, p)
	}

	return layer, nil
}

// ParsePrelude parses a prelude fragment and returns its groups,
// plugins, and bash tags for inclusion beneath a masterlist.
func ParsePrelude(name string, data []byte) (*Layer, error) {
	return ParseDocument(name, data)
}

func normalizeKey(name string) string {
	return strings.ToLower(name)
}

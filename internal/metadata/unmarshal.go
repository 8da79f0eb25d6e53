package metadata

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a bare scalar ("Skyrim.esm") or a full
// mapping ({name: ..., condition: ...}), matching the masterlist
// schema original_source/src/parsers.h's YAML::convert<boss::File>
// documents for the File node.
func (f *File) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Name = value.Value
		return nil
	}
	type plain File
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = File(p)
	return nil
}

// UnmarshalYAML accepts a bare scalar tag name, optionally prefixed
// with "-" to mark removal (per original_source's "-TagName" userlist
// convention), or a mapping carrying a condition.
func (t *Tag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		name := value.Value
		addition := true
		if strings.HasPrefix(name, "-") {
			addition = false
			name = name[1:]
		}
		t.Name = name
		t.Addition = addition
		return nil
	}

	type wire struct {
		Name      string `yaml:"name"`
		Condition string `yaml:"condition,omitempty"`
	}
	var w wire
	if err := value.Decode(&w); err != nil {
		return err
	}
	addition := true
	name := w.Name
	if strings.HasPrefix(name, "-") {
		addition = false
		name = name[1:]
	}
	t.Name = name
	t.Addition = addition
	t.Condition = w.Condition
	return nil
}

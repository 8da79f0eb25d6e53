package metadata

// Merge combines two PluginMetadata values per D-MERGE: a is
// the lower layer, b the higher. The result favors b's scalar fields
// and unions b's list fields into a's by identity.
func Merge(a, b PluginMetadata) PluginMetadata {
	out := PluginMetadata{
		Name:  a.Name,
		Group: a.Group,
	}
	if b.Group != "" {
		out.Group = b.Group
	}

	out.LoadAfter = mergeFiles(a.LoadAfter, b.LoadAfter)
	out.Requirements = mergeFiles(a.Requirements, b.Requirements)
	out.Incompatibilities = mergeFiles(a.Incompatibilities, b.Incompatibilities)
	out.Locations = mergeLocations(a.Locations, b.Locations)
	out.Tags = mergeTags(a.Tags, b.Tags)
	out.Dirty = mergeCleaning(a.Dirty, b.Dirty)
	out.Clean = mergeCleaning(a.Clean, b.Clean)

	out.Messages = make([]Message, 0, len(a.Messages)+len(b.Messages))
	out.Messages = append(out.Messages, a.Messages...)
	out.Messages = append(out.Messages, b.Messages...)

	return out
}

func mergeFiles(a, b []File) []File {
	out := make([]File, 0, len(a)+len(b))
	seen := make(map[string]int, len(a)+len(b))
	for _, f := range a {
		seen[f.identity()] = len(out)
		out = append(out, f)
	}
	for _, f := range b {
		if idx, ok := seen[f.identity()]; ok {
			out[idx] = f
			continue
		}
		seen[f.identity()] = len(out)
		out = append(out, f)
	}
	return out
}

func mergeLocations(a, b []Location) []Location {
	out := make([]Location, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, l := range append(append([]Location{}, a...), b...) {
		if seen[l.identity()] {
			continue
		}
		seen[l.identity()] = true
		out = append(out, l)
	}
	return out
}

// mergeTags unions by (name, addition); the evaluator resolves
// same-name additions/removals by keeping the last one seen, per
// D-MERGE's "both are preserved and the evaluator keeps the last one
// seen".
func mergeTags(a, b []Tag) []Tag {
	type key struct {
		name     string
		addition bool
	}
	out := make([]Tag, 0, len(a)+len(b))
	index := make(map[key]int, len(a)+len(b))
	for _, t := range append(append([]Tag{}, a...), b...) {
		name, addition := t.identity()
		k := key{name: name, addition: addition}
		if idx, ok := index[k]; ok {
			out[idx] = t
			continue
		}
		index[k] = len(out)
		out = append(out, t)
	}
	return out
}

func mergeCleaning(a, b []CleaningData) []CleaningData {
	out := make([]CleaningData, 0, len(a)+len(b))
	seen := make(map[uint32]bool, len(a)+len(b))
	for _, c := range append(append([]CleaningData{}, a...), b...) {
		if seen[c.Crc] {
			continue
		}
		seen[c.Crc] = true
		out = append(out, c)
	}
	return out
}

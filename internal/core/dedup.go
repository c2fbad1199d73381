package core

// DedupeSources keeps one entry per URI. Each entry stays at the position where its URI
// first appeared and carries the field values of the URI's last occurrence. Sources
// without a URI are dropped.
func DedupeSources(sources []GroundingSource) []GroundingSource {
	if len(sources) == 0 {
		return nil
	}

	index := make(map[string]int, len(sources))
	out := make([]GroundingSource, 0, len(sources))
	for _, src := range sources {
		if src.URI == "" {
			continue
		}
		if i, seen := index[src.URI]; seen {
			out[i] = src
			continue
		}
		index[src.URI] = len(out)
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package jstree

import "sort"

// Edit replaces the byte range [Start, End) of the original source with New.
// An insertion has Start == End; a deletion has len(New) == 0.
type Edit struct {
	Start uint32
	End   uint32
	New   []byte
}

// EditForNode builds an Edit covering node's byte span.
func (ft *FileTree) EditForNode(start, end uint32, text string) Edit {
	return Edit{Start: start, End: end, New: []byte(text)}
}

// ApplyEdits splices edits into src and returns the rewritten source.
// Edits are applied in ascending start order; an edit that overlaps an
// already-applied one is dropped and reported in the second return value.
// Bytes outside every edit span are copied through verbatim, which is what
// gives rewrites their minimal-diff property.
func ApplyEdits(src []byte, edits []Edit) ([]byte, []Edit) {
	if len(edits) == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var out []byte
	var dropped []Edit
	cursor := uint32(0)
	for _, e := range sorted {
		if e.Start < cursor || e.End > uint32(len(src)) || e.End < e.Start {
			dropped = append(dropped, e)
			continue
		}
		out = append(out, src[cursor:e.Start]...)
		out = append(out, e.New...)
		cursor = e.End
	}
	out = append(out, src[cursor:]...)
	return out, dropped
}

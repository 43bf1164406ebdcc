package element

import (
	"fmt"
	"regexp"
	"sort"

	"caseforge/internal/transform"
)

// Element is one user-supplied image layer. Source is a data URI or a
// server-relative upload path and never changes after creation. IDs are
// assigned monotonically and never reused within a session.
type Element struct {
	ID        int             `json:"id"`
	Source    string          `json:"source"`
	Name      string          `json:"name"`
	Transform transform.State `json:"transform"`
}

// Collection is the per-mockup element set plus the shared background color.
// Array order is a storage detail; stacking is governed by LayerIndex.
type Collection struct {
	Elements   []Element `json:"elements"`
	Background string    `json:"background"`
}

// NewCollection returns an empty collection with the default background.
func NewCollection() Collection {
	return Collection{Background: transform.DefaultBackground}
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidBackground reports whether s is a #RRGGBB color.
func ValidBackground(s string) bool {
	return hexColorRe.MatchString(s)
}

// Normalize repairs a collection that came from the wire or from disk:
// clamps every transform into range, re-densifies layer indices and fills
// in a missing background. Invalid entries are repaired, not rejected,
// because persisted state must never brick the editor.
func (c *Collection) Normalize() {
	for i := range c.Elements {
		tr := &c.Elements[i].Transform
		tr.SetPosition(tr.PositionX, tr.PositionY)
		tr.SetRotation(tr.Rotation)
		tr.SetZoom(tr.Zoom)
		if c.Elements[i].Name == "" {
			c.Elements[i].Name = fmt.Sprintf("Element %d", i+1)
		}
	}
	renormalizeLayers(c.Elements)
	if !ValidBackground(c.Background) {
		c.Background = transform.DefaultBackground
	}
}

// ByLayer returns element indices sorted by ascending LayerIndex.
func (c Collection) ByLayer() []int {
	idx := make([]int, len(c.Elements))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return c.Elements[idx[a]].Transform.LayerIndex < c.Elements[idx[b]].Transform.LayerIndex
	})
	return idx
}

// renormalizeLayers reassigns LayerIndex values to the dense permutation
// 0..n-1, preserving the existing stacking order.
func renormalizeLayers(elems []Element) {
	idx := make([]int, len(elems))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return elems[idx[a]].Transform.LayerIndex < elems[idx[b]].Transform.LayerIndex
	})
	for order, i := range idx {
		elems[i].Transform.LayerIndex = order
	}
}

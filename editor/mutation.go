// Package editor holds the page mutation API and the undo/redo history that
// applies it. Mutations are pure: they read a section list and return a new
// one without touching their input.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alimasry/go-page-editor/sanitize"
	"github.com/alimasry/go-page-editor/schema"
)

var (
	// ErrSectionNotFound is returned by element operations whose section is missing.
	ErrSectionNotFound = errors.New("section not found")
	// ErrElementRetype is returned when an update would change an element's kind.
	ErrElementRetype = errors.New("element type cannot change")
	// ErrDuplicateID is returned when replacement elements carry an empty id
	// or one already used on the page.
	ErrDuplicateID = errors.New("duplicate or empty id")
)

// Mutation computes the next section list from the present one.
type Mutation func(secs []schema.Section) ([]schema.Section, error)

// SectionPatch is a partial section update. Nil fields are left alone.
type SectionPatch struct {
	Name     *string               `json:"name,omitempty"`
	Content  map[string]any        `json:"content,omitempty"`
	Styles   *schema.SectionStyles `json:"styles,omitempty"`
	Visible  *bool                 `json:"visible,omitempty"`
	Locked   *bool                 `json:"locked,omitempty"`
	Elements []schema.Element      `json:"elements,omitempty"`
}

// ElementPatch is a partial element update. Content, when set, is a JSON
// object overlaid on the element's current content; Type, when set, must
// match the element's kind.
type ElementPatch struct {
	Type    schema.ElementKind    `json:"type,omitempty"`
	Content json.RawMessage       `json:"content,omitempty"`
	Styles  *schema.ElementStyles `json:"styles,omitempty"`
	Visible *bool                 `json:"visible,omitempty"`
}

// ordered returns a deep copy of secs sorted by order.
func ordered(secs []schema.Section) []schema.Section {
	out := schema.CloneSections(secs)
	schema.SortByOrder(out)
	return out
}

func indexOf(secs []schema.Section, id string) int {
	for i := range secs {
		if secs[i].ID == id {
			return i
		}
	}
	return -1
}

func nextOrder(secs []schema.Section) int {
	next := len(secs)
	for _, s := range secs {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

// AddSection appends a new section of type t and returns its id.
func AddSection(secs []schema.Section, t schema.SectionType, newID schema.IDGenerator) ([]schema.Section, string, error) {
	s, err := schema.NewSection(t, nextOrder(secs), newID)
	if err != nil {
		return schema.CloneSections(secs), "", err
	}
	return append(ordered(secs), s), s.ID, nil
}

// RemoveSection removes the section with id. Locked or unknown sections leave
// the list unchanged.
func RemoveSection(secs []schema.Section, id string) []schema.Section {
	out := schema.CloneSections(secs)
	i := indexOf(out, id)
	if i < 0 || out[i].Locked {
		return out
	}
	return append(out[:i], out[i+1:]...)
}

// UpdateSection merges p into the section with id. Content keys are merged
// shallowly. Every string in the patch is sanitized before it lands. Unknown
// ids are a no-op. Replacement elements keep their relative order, are
// renumbered 0..n-1, and must carry ids unused elsewhere on the page.
func UpdateSection(secs []schema.Section, id string, p SectionPatch) ([]schema.Section, error) {
	out := schema.CloneSections(secs)
	i := indexOf(out, id)
	if i < 0 {
		return out, nil
	}
	s := &out[i]
	if p.Elements != nil {
		els, err := replacementElements(out, i, p.Elements)
		if err != nil {
			return schema.CloneSections(secs), fmt.Errorf("update section: %w", err)
		}
		s.Elements = els
	}
	if p.Name != nil {
		s.Name = sanitize.Text(*p.Name)
	}
	if p.Content != nil {
		for k, v := range sanitize.Content(schema.CloneContent(p.Content)) {
			s.Content[k] = v
		}
	}
	if p.Styles != nil {
		s.Styles = *p.Styles
		s.Styles.BackgroundImage = sanitize.Link(s.Styles.BackgroundImage)
	}
	if p.Visible != nil {
		s.Visible = *p.Visible
	}
	if p.Locked != nil {
		s.Locked = *p.Locked
	}
	return out, nil
}

// replacementElements sanitizes els for section target of secs. Ids held by
// the target's current elements may be reused.
func replacementElements(secs []schema.Section, target int, els []schema.Element) ([]schema.Element, error) {
	taken := make(map[string]bool)
	for j, sec := range secs {
		taken[sec.ID] = true
		if j == target {
			continue
		}
		for _, el := range sec.Elements {
			taken[el.ID] = true
		}
	}

	out := make([]schema.Element, 0, len(els))
	for _, el := range els {
		if el.Content == nil {
			continue
		}
		if el.ID == "" || taken[el.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, el.ID)
		}
		taken[el.ID] = true
		out = append(out, sanitize.Element(el))
	}
	schema.SortElements(out)
	for j := range out {
		out[j].Order = j
	}
	return out, nil
}

// DuplicateSection inserts an unlocked copy of the section with id right
// after it and returns the copy's id. Sections after the source shift down by
// one. Unknown ids are a no-op and return "".
func DuplicateSection(secs []schema.Section, id string, newID schema.IDGenerator) ([]schema.Section, string) {
	out := ordered(secs)
	i := indexOf(out, id)
	if i < 0 {
		return schema.CloneSections(secs), ""
	}
	dup := out[i].Clone()
	dup.ID = newID()
	dup.Name = out[i].Name + " (Copy)"
	dup.Locked = false
	dup.Order = out[i].Order + 1
	for j := range dup.Elements {
		dup.Elements[j].ID = newID()
	}
	for j := i + 1; j < len(out); j++ {
		out[j].Order++
	}

	out = append(out, schema.Section{})
	copy(out[i+2:], out[i+1:])
	out[i+1] = dup
	return out, dup.ID
}

// ReorderSections moves the section at index from to index to and renumbers
// every order 0..n-1. A locked source or an index out of range is a no-op.
func ReorderSections(secs []schema.Section, from, to int) []schema.Section {
	out := ordered(secs)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || out[from].Locked {
		return schema.CloneSections(secs)
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out, schema.Section{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	for i := range out {
		out[i].Order = i
	}
	return out
}

// AddElement appends a default element of kind to a section and returns its
// id. Locked sections accept element edits.
func AddElement(secs []schema.Section, sectionID string, kind schema.ElementKind, newID schema.IDGenerator) ([]schema.Section, string, error) {
	out := schema.CloneSections(secs)
	i := indexOf(out, sectionID)
	if i < 0 {
		return out, "", fmt.Errorf("add element: %w: %q", ErrSectionNotFound, sectionID)
	}
	order := len(out[i].Elements)
	for _, el := range out[i].Elements {
		if el.Order >= order {
			order = el.Order + 1
		}
	}
	el, err := schema.NewElement(kind, order, newID)
	if err != nil {
		return schema.CloneSections(secs), "", fmt.Errorf("add element: %w", err)
	}
	out[i].Elements = append(out[i].Elements, el)
	return out, el.ID, nil
}

func elementIndex(els []schema.Element, id string) int {
	for i := range els {
		if els[i].ID == id {
			return i
		}
	}
	return -1
}

// UpdateElement applies p to one element. An unknown element id is a no-op.
func UpdateElement(secs []schema.Section, sectionID, elementID string, p ElementPatch) ([]schema.Section, error) {
	out := schema.CloneSections(secs)
	i := indexOf(out, sectionID)
	if i < 0 {
		return out, fmt.Errorf("update element: %w: %q", ErrSectionNotFound, sectionID)
	}
	j := elementIndex(out[i].Elements, elementID)
	if j < 0 {
		return out, nil
	}
	el := out[i].Elements[j]
	if p.Type != "" && p.Type != el.Type() {
		return schema.CloneSections(secs), fmt.Errorf("update element %q: %w: %s to %s", elementID, ErrElementRetype, el.Type(), p.Type)
	}
	if len(p.Content) > 0 {
		content, err := schema.PatchContent(el.Content, p.Content)
		if err != nil {
			return schema.CloneSections(secs), fmt.Errorf("update element %q: %w", elementID, err)
		}
		el.Content = content
	}
	if p.Styles != nil {
		el.Styles = *p.Styles
	}
	if p.Visible != nil {
		el.Visible = *p.Visible
	}
	out[i].Elements[j] = sanitize.Element(el)
	return out, nil
}

// RemoveElement drops one element. Unknown element ids are a no-op.
func RemoveElement(secs []schema.Section, sectionID, elementID string) ([]schema.Section, error) {
	out := schema.CloneSections(secs)
	i := indexOf(out, sectionID)
	if i < 0 {
		return out, fmt.Errorf("remove element: %w: %q", ErrSectionNotFound, sectionID)
	}
	if j := elementIndex(out[i].Elements, elementID); j >= 0 {
		els := out[i].Elements
		out[i].Elements = append(els[:j], els[j+1:]...)
	}
	return out, nil
}

// ReorderElements moves an element within its section and renumbers element
// orders 0..n-1. Out-of-range indexes are a no-op.
func ReorderElements(secs []schema.Section, sectionID string, from, to int) ([]schema.Section, error) {
	out := schema.CloneSections(secs)
	i := indexOf(out, sectionID)
	if i < 0 {
		return out, fmt.Errorf("reorder elements: %w: %q", ErrSectionNotFound, sectionID)
	}
	els := out[i].Elements
	schema.SortElements(els)
	if from < 0 || from >= len(els) || to < 0 || to >= len(els) {
		return schema.CloneSections(secs), nil
	}
	moved := els[from]
	els = append(els[:from], els[from+1:]...)
	els = append(els, schema.Element{})
	copy(els[to+1:], els[to:])
	els[to] = moved
	for k := range els {
		els[k].Order = k
	}
	out[i].Elements = els
	return out, nil
}

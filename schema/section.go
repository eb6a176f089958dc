package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SectionType identifies the kind of a top-level page block.
type SectionType string

const (
	SectionHeader       SectionType = "header"
	SectionHero         SectionType = "hero"
	SectionAbout        SectionType = "about"
	SectionServices     SectionType = "services"
	SectionFeatures     SectionType = "features"
	SectionGallery      SectionType = "gallery"
	SectionTestimonials SectionType = "testimonials"
	SectionPricing      SectionType = "pricing"
	SectionTeam         SectionType = "team"
	SectionStats        SectionType = "stats"
	SectionFAQ          SectionType = "faq"
	SectionCTA          SectionType = "cta"
	SectionContact      SectionType = "contact"
	SectionFooter       SectionType = "footer"
)

// ErrUnknownSectionType is returned when a section type is outside the closed set.
var ErrUnknownSectionType = errors.New("unknown section type")

// Section is an independently orderable block of a page.
type Section struct {
	ID       string         `json:"id"`
	Type     SectionType    `json:"type"`
	Name     string         `json:"name"`
	Content  map[string]any `json:"content"`
	Elements []Element      `json:"elements"`
	Styles   SectionStyles  `json:"styles"`
	Visible  bool           `json:"visible"`
	Locked   bool           `json:"locked"`
	Order    int            `json:"order"`
}

type sectionTemplate struct {
	name     string
	content  func() map[string]any
	elements []ElementKind
}

var sectionTemplates = map[SectionType]sectionTemplate{
	SectionHeader: {
		name: "Header",
		content: func() map[string]any {
			return map[string]any{"logoText": "My Business", "logoUrl": "", "links": []any{}}
		},
		elements: []ElementKind{KindButton},
	},
	SectionHero: {
		name: "Hero",
		content: func() map[string]any {
			return map[string]any{
				"title":           "Welcome to our business",
				"subtitle":        "We help you do more.",
				"ctaText":         "Get started",
				"ctaLink":         "#contact",
				"backgroundImage": "",
			}
		},
		elements: []ElementKind{KindHeading, KindParagraph, KindButton},
	},
	SectionAbout: {
		name: "About",
		content: func() map[string]any {
			return map[string]any{"title": "About us", "description": "", "image": ""}
		},
		elements: []ElementKind{KindHeading, KindParagraph, KindImage},
	},
	SectionServices: {
		name: "Services",
		content: func() map[string]any {
			return map[string]any{"title": "Our services", "items": []any{}}
		},
		elements: []ElementKind{KindHeading, KindList},
	},
	SectionFeatures: {
		name: "Features",
		content: func() map[string]any {
			return map[string]any{"title": "Features", "items": []any{}}
		},
		elements: []ElementKind{KindHeading, KindList},
	},
	SectionGallery: {
		name: "Gallery",
		content: func() map[string]any {
			return map[string]any{"title": "Gallery", "images": []any{}}
		},
		elements: []ElementKind{KindHeading, KindImage},
	},
	SectionTestimonials: {
		name: "Testimonials",
		content: func() map[string]any {
			return map[string]any{"title": "What our customers say", "items": []any{}}
		},
		elements: []ElementKind{KindHeading, KindParagraph},
	},
	SectionPricing: {
		name: "Pricing",
		content: func() map[string]any {
			return map[string]any{"title": "Pricing", "plans": []any{}}
		},
		elements: []ElementKind{KindHeading, KindBadge, KindButton},
	},
	SectionTeam: {
		name: "Team",
		content: func() map[string]any {
			return map[string]any{"title": "Meet the team", "members": []any{}}
		},
		elements: []ElementKind{KindHeading, KindImage, KindParagraph},
	},
	SectionStats: {
		name: "Stats",
		content: func() map[string]any {
			return map[string]any{"title": "By the numbers", "items": []any{}}
		},
		elements: []ElementKind{KindHeading, KindList},
	},
	SectionFAQ: {
		name: "FAQ",
		content: func() map[string]any {
			return map[string]any{"title": "Frequently asked questions", "items": []any{}}
		},
		elements: []ElementKind{KindHeading, KindList},
	},
	SectionCTA: {
		name: "Call to Action",
		content: func() map[string]any {
			return map[string]any{"title": "Ready to start?", "buttonText": "Contact us", "buttonLink": "#contact"}
		},
		elements: []ElementKind{KindHeading, KindButton},
	},
	SectionContact: {
		name: "Contact",
		content: func() map[string]any {
			return map[string]any{"title": "Get in touch", "email": "", "phone": "", "address": ""}
		},
		elements: []ElementKind{KindHeading, KindForm, KindMap},
	},
	SectionFooter: {
		name: "Footer",
		content: func() map[string]any {
			return map[string]any{"copyright": "", "links": []any{}}
		},
		elements: []ElementKind{KindParagraph, KindSocialLinks},
	},
}

// SectionTypes lists the closed set of section types in a stable order.
var SectionTypes = []SectionType{
	SectionHeader, SectionHero, SectionAbout, SectionServices, SectionFeatures,
	SectionGallery, SectionTestimonials, SectionPricing, SectionTeam, SectionStats,
	SectionFAQ, SectionCTA, SectionContact, SectionFooter,
}

// Valid reports whether t is in the closed set.
func (t SectionType) Valid() bool {
	_, ok := sectionTemplates[t]
	return ok
}

// NewSection manufactures a section of type t at the given order, with default
// content and elements. Every id comes from newID.
func NewSection(t SectionType, order int, newID IDGenerator) (Section, error) {
	tmpl, ok := sectionTemplates[t]
	if !ok {
		return Section{}, fmt.Errorf("%w: %q", ErrUnknownSectionType, t)
	}
	s := Section{
		ID:       newID(),
		Type:     t,
		Name:     tmpl.name,
		Content:  tmpl.content(),
		Elements: make([]Element, 0, len(tmpl.elements)),
		Styles:   SectionStyles{},
		Visible:  true,
		Locked:   false,
		Order:    order,
	}
	for i, kind := range tmpl.elements {
		el, err := NewElement(kind, i, newID)
		if err != nil {
			return Section{}, err
		}
		s.Elements = append(s.Elements, el)
	}
	return s, nil
}

// Clone returns a deep copy of s.
func (s Section) Clone() Section {
	out := s
	out.Content = CloneContent(s.Content)
	out.Elements = make([]Element, len(s.Elements))
	for i, el := range s.Elements {
		out.Elements[i] = el.Clone()
	}
	return out
}

// CloneSections deep copies a section list. A nil input yields an empty list.
func CloneSections(secs []Section) []Section {
	out := make([]Section, len(secs))
	for i, s := range secs {
		out[i] = s.Clone()
	}
	return out
}

// CloneContent deep copies a JSON-like value tree.
func CloneContent(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneContent(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string{}, t...)
	default:
		return v
	}
}

// SortByOrder sorts sections by their order field, keeping the relative
// position of equal orders.
func SortByOrder(secs []Section) {
	sort.SliceStable(secs, func(i, j int) bool { return secs[i].Order < secs[j].Order })
}

// SortElements sorts elements by their order field.
func SortElements(els []Element) {
	sort.SliceStable(els, func(i, j int) bool { return els[i].Order < els[j].Order })
}

type sectionJSON struct {
	ID       string         `json:"id"`
	Type     SectionType    `json:"type"`
	Name     string         `json:"name"`
	Content  map[string]any `json:"content"`
	Elements []Element      `json:"elements"`
	Styles   SectionStyles  `json:"styles"`
	Visible  *bool          `json:"visible"`
	Locked   bool           `json:"locked"`
	Order    int            `json:"order"`

	// Pre-1.1 envelopes kept headline copy on the section itself.
	Title    *string `json:"title,omitempty"`
	Subtitle *string `json:"subtitle,omitempty"`
}

func (s *Section) UnmarshalJSON(data []byte) error {
	var raw sectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("section %q: %w: %q", raw.ID, ErrUnknownSectionType, raw.Type)
	}
	if raw.Content == nil {
		raw.Content = map[string]any{}
	}
	if raw.Elements == nil {
		raw.Elements = []Element{}
	}
	if raw.Title != nil {
		if _, ok := raw.Content["title"]; !ok {
			raw.Content["title"] = *raw.Title
		}
	}
	if raw.Subtitle != nil {
		if _, ok := raw.Content["subtitle"]; !ok {
			raw.Content["subtitle"] = *raw.Subtitle
		}
	}
	*s = Section{
		ID:       raw.ID,
		Type:     raw.Type,
		Name:     raw.Name,
		Content:  raw.Content,
		Elements: raw.Elements,
		Styles:   raw.Styles,
		Visible:  raw.Visible == nil || *raw.Visible,
		Locked:   raw.Locked,
		Order:    raw.Order,
	}
	return nil
}

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ElementKind is the type tag of an Element.
type ElementKind string

const (
	KindHeading     ElementKind = "heading"
	KindParagraph   ElementKind = "paragraph"
	KindButton      ElementKind = "button"
	KindImage       ElementKind = "image"
	KindVideo       ElementKind = "video"
	KindForm        ElementKind = "form"
	KindDivider     ElementKind = "divider"
	KindSpacer      ElementKind = "spacer"
	KindSocialLinks ElementKind = "socialLinks"
	KindMap         ElementKind = "map"
	KindBadge       ElementKind = "badge"
	KindList        ElementKind = "list"
)

// ElementKinds lists every element kind in declaration order.
var ElementKinds = []ElementKind{
	KindHeading, KindParagraph, KindButton, KindImage, KindVideo, KindForm,
	KindDivider, KindSpacer, KindSocialLinks, KindMap, KindBadge, KindList,
}

// ErrUnknownElementKind is returned for a type tag outside ElementKinds.
var ErrUnknownElementKind = errors.New("unknown element kind")

// ElementContent is the kind-specific payload of an Element. The set of
// implementations is closed to this package.
type ElementContent interface {
	Kind() ElementKind
	Clone() ElementContent
	sealed()
}

// Element is a typed leaf content unit inside a section. Its type is the kind
// of its content and cannot change without replacing the element.
type Element struct {
	ID      string
	Content ElementContent
	Styles  ElementStyles
	Visible bool
	Order   int
}

// Type returns the element's kind.
func (e Element) Type() ElementKind {
	if e.Content == nil {
		return ""
	}
	return e.Content.Kind()
}

// Clone returns a deep copy of e.
func (e Element) Clone() Element {
	out := e
	if e.Content != nil {
		out.Content = e.Content.Clone()
	}
	return out
}

type HeadingContent struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

type ParagraphContent struct {
	Text string `json:"text"`
}

type ButtonContent struct {
	Label        string `json:"label"`
	Link         string `json:"link"`
	Variant      string `json:"variant"`
	OpenInNewTab bool   `json:"openInNewTab"`
}

// ImageContent.Link is optional; empty means the image is not clickable.
type ImageContent struct {
	Src  string `json:"src"`
	Alt  string `json:"alt"`
	Link string `json:"link"`
}

type VideoContent struct {
	URL      string `json:"url"`
	Autoplay bool   `json:"autoplay"`
	Loop     bool   `json:"loop"`
	Muted    bool   `json:"muted"`
}

type FormField struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
	Required    bool   `json:"required"`
}

type FormContent struct {
	Fields         []FormField `json:"fields"`
	SubmitLabel    string      `json:"submitLabel"`
	SuccessMessage string      `json:"successMessage"`
}

type DividerContent struct {
	Style     string `json:"style"`
	Thickness int    `json:"thickness"`
}

type SpacerContent struct {
	Height int `json:"height"`
}

type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type SocialLinksContent struct {
	Links []SocialLink `json:"links"`
}

type MapContent struct {
	Address string `json:"address"`
	Zoom    int    `json:"zoom"`
}

type BadgeContent struct {
	Text    string `json:"text"`
	Variant string `json:"variant"`
}

type ListContent struct {
	Items   []string `json:"items"`
	Ordered bool     `json:"ordered"`
}

func (HeadingContent) Kind() ElementKind     { return KindHeading }
func (ParagraphContent) Kind() ElementKind   { return KindParagraph }
func (ButtonContent) Kind() ElementKind      { return KindButton }
func (ImageContent) Kind() ElementKind       { return KindImage }
func (VideoContent) Kind() ElementKind       { return KindVideo }
func (FormContent) Kind() ElementKind        { return KindForm }
func (DividerContent) Kind() ElementKind     { return KindDivider }
func (SpacerContent) Kind() ElementKind      { return KindSpacer }
func (SocialLinksContent) Kind() ElementKind { return KindSocialLinks }
func (MapContent) Kind() ElementKind         { return KindMap }
func (BadgeContent) Kind() ElementKind       { return KindBadge }
func (ListContent) Kind() ElementKind        { return KindList }

func (c HeadingContent) Clone() ElementContent   { return c }
func (c ParagraphContent) Clone() ElementContent { return c }
func (c ButtonContent) Clone() ElementContent    { return c }
func (c ImageContent) Clone() ElementContent     { return c }
func (c VideoContent) Clone() ElementContent     { return c }
func (c DividerContent) Clone() ElementContent   { return c }
func (c SpacerContent) Clone() ElementContent    { return c }
func (c MapContent) Clone() ElementContent       { return c }
func (c BadgeContent) Clone() ElementContent     { return c }

func (c FormContent) Clone() ElementContent {
	c.Fields = append([]FormField{}, c.Fields...)
	return c
}

func (c SocialLinksContent) Clone() ElementContent {
	c.Links = append([]SocialLink{}, c.Links...)
	return c
}

func (c ListContent) Clone() ElementContent {
	c.Items = append([]string{}, c.Items...)
	return c
}

func (HeadingContent) sealed()     {}
func (ParagraphContent) sealed()   {}
func (ButtonContent) sealed()      {}
func (ImageContent) sealed()       {}
func (VideoContent) sealed()       {}
func (FormContent) sealed()        {}
func (DividerContent) sealed()     {}
func (SpacerContent) sealed()      {}
func (SocialLinksContent) sealed() {}
func (MapContent) sealed()         {}
func (BadgeContent) sealed()       {}
func (ListContent) sealed()        {}

// DefaultContent returns the content a freshly created element of kind starts with.
func DefaultContent(kind ElementKind) (ElementContent, error) {
	switch kind {
	case KindHeading:
		return HeadingContent{Text: "Heading", Level: 2}, nil
	case KindParagraph:
		return ParagraphContent{Text: "Write something about your business."}, nil
	case KindButton:
		return ButtonContent{Label: "Learn more", Link: "#", Variant: "primary"}, nil
	case KindImage:
		return ImageContent{Src: "", Alt: "", Link: ""}, nil
	case KindVideo:
		return VideoContent{URL: "", Muted: true}, nil
	case KindForm:
		return FormContent{
			Fields: []FormField{
				{ID: "name", Label: "Name", Type: "text", Placeholder: "Your name", Required: true},
				{ID: "email", Label: "Email", Type: "email", Placeholder: "you@example.com", Required: true},
				{ID: "message", Label: "Message", Type: "textarea", Placeholder: "How can we help?"},
			},
			SubmitLabel:    "Send",
			SuccessMessage: "Thanks! We'll be in touch.",
		}, nil
	case KindDivider:
		return DividerContent{Style: "solid", Thickness: 1}, nil
	case KindSpacer:
		return SpacerContent{Height: 32}, nil
	case KindSocialLinks:
		return SocialLinksContent{Links: []SocialLink{}}, nil
	case KindMap:
		return MapContent{Address: "", Zoom: 14}, nil
	case KindBadge:
		return BadgeContent{Text: "New", Variant: "default"}, nil
	case KindList:
		return ListContent{Items: []string{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownElementKind, kind)
}

// NewElement builds an element of kind with default content and a fresh id.
func NewElement(kind ElementKind, order int, newID IDGenerator) (Element, error) {
	content, err := DefaultContent(kind)
	if err != nil {
		return Element{}, err
	}
	return Element{
		ID:      newID(),
		Content: content,
		Styles:  ElementStyles{},
		Visible: true,
		Order:   order,
	}, nil
}

type elementJSON struct {
	ID      string          `json:"id"`
	Type    ElementKind     `json:"type"`
	Content json.RawMessage `json:"content"`
	Styles  ElementStyles   `json:"styles"`
	Visible *bool           `json:"visible,omitempty"`
	Order   int             `json:"order"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(e.Content)
	if err != nil {
		return nil, err
	}
	visible := e.Visible
	return json.Marshal(elementJSON{
		ID:      e.ID,
		Type:    e.Type(),
		Content: content,
		Styles:  e.Styles,
		Visible: &visible,
		Order:   e.Order,
	})
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := decodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("element %q: %w", raw.ID, err)
	}
	e.ID = raw.ID
	e.Content = content
	e.Styles = raw.Styles
	e.Visible = raw.Visible == nil || *raw.Visible
	e.Order = raw.Order
	return nil
}

// decodeContent starts from the kind's defaults so fields missing from older
// payloads keep explicit values.
func decodeContent(kind ElementKind, raw json.RawMessage) (ElementContent, error) {
	def, err := DefaultContent(kind)
	if err != nil {
		return nil, err
	}
	return overlayContent(def, raw)
}

// PatchContent overlays the JSON object raw onto a copy of base. Fields absent
// from raw keep base's values; lists present in raw replace base's lists.
func PatchContent(base ElementContent, raw json.RawMessage) (ElementContent, error) {
	if base == nil {
		return nil, ErrUnknownElementKind
	}
	return overlayContent(base.Clone(), raw)
}

func overlayContent(def ElementContent, raw json.RawMessage) (ElementContent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return def, nil
	}
	var err error
	switch c := def.(type) {
	case HeadingContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case ParagraphContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case ButtonContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case ImageContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case VideoContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case FormContent:
		fields := c.Fields
		c.Fields = nil
		err = json.Unmarshal(raw, &c)
		if c.Fields == nil && !hasKey(raw, "fields") {
			c.Fields = fields
		}
		if c.Fields == nil {
			c.Fields = []FormField{}
		}
		def = c
	case DividerContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case SpacerContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case SocialLinksContent:
		err = json.Unmarshal(raw, &c)
		if c.Links == nil {
			c.Links = []SocialLink{}
		}
		def = c
	case MapContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case BadgeContent:
		err = json.Unmarshal(raw, &c)
		def = c
	case ListContent:
		err = json.Unmarshal(raw, &c)
		if c.Items == nil {
			c.Items = []string{}
		}
		def = c
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", def.Kind(), err)
	}
	return def, nil
}

func hasKey(raw json.RawMessage, key string) bool {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

package sanitize

import (
	"strings"

	"github.com/alimasry/go-page-editor/schema"
)

// Element sanitizes exactly the user-controlled text and link fields of el's
// variant. Layout fields pass through.
func Element(el schema.Element) schema.Element {
	out := el.Clone()
	switch c := out.Content.(type) {
	case schema.HeadingContent:
		c.Text = Text(c.Text)
		out.Content = c
	case schema.ParagraphContent:
		c.Text = Text(c.Text)
		out.Content = c
	case schema.ButtonContent:
		c.Label = Text(c.Label)
		c.Link = URLOr(c.Link, Fallback)
		out.Content = c
	case schema.ImageContent:
		c.Alt = Text(c.Alt)
		c.Src = Link(c.Src)
		c.Link = Link(c.Link)
		out.Content = c
	case schema.VideoContent:
		c.URL = Link(c.URL)
		out.Content = c
	case schema.FormContent:
		c.SubmitLabel = Text(c.SubmitLabel)
		c.SuccessMessage = Text(c.SuccessMessage)
		for i, f := range c.Fields {
			f.Label = Text(f.Label)
			f.Placeholder = Text(f.Placeholder)
			c.Fields[i] = f
		}
		out.Content = c
	case schema.DividerContent, schema.SpacerContent:
		// no user text
	case schema.SocialLinksContent:
		for i, l := range c.Links {
			l.Platform = Text(l.Platform)
			l.URL = URLOr(l.URL, Fallback)
			c.Links[i] = l
		}
		out.Content = c
	case schema.MapContent:
		c.Address = Text(c.Address)
		out.Content = c
	case schema.BadgeContent:
		c.Text = Text(c.Text)
		out.Content = c
	case schema.ListContent:
		for i, item := range c.Items {
			c.Items[i] = Text(item)
		}
		out.Content = c
	}
	return out
}

// Section sanitizes the section name, every string in its free-form content,
// its background image, and every element.
func Section(s schema.Section) schema.Section {
	out := s.Clone()
	out.Name = Text(out.Name)
	out.Content = Content(out.Content)
	out.Styles.BackgroundImage = Link(out.Styles.BackgroundImage)
	for i, el := range out.Elements {
		out.Elements[i] = Element(el)
	}
	return out
}

// Sections sanitizes a section list.
func Sections(secs []schema.Section) []schema.Section {
	out := make([]schema.Section, len(secs))
	for i, s := range secs {
		out[i] = Section(s)
	}
	return out
}

// Schema is the gate run before a schema is handed to persistence.
func Schema(cs schema.ContentSchema) schema.ContentSchema {
	out := cs
	out.Sections = Sections(cs.Sections)
	out.Metadata.LastEditedBy = Text(cs.Metadata.LastEditedBy)
	return out
}

// Content sanitizes a free-form content tree. Strings under link-like keys
// (…url, …link, …href, …src, …image) are treated as URLs; all others as text.
func Content(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = contentValue(isLinkKey(k), v)
	}
	return out
}

func contentValue(link bool, v any) any {
	switch t := v.(type) {
	case string:
		if link {
			return Link(t)
		}
		return Text(t)
	case map[string]any:
		return Content(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = contentValue(link, item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = contentValue(link, item).(string)
		}
		return out
	default:
		return v
	}
}

var linkSuffixes = []string{"url", "link", "href", "src", "image", "images"}

func isLinkKey(k string) bool {
	k = strings.ToLower(k)
	for _, suffix := range linkSuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

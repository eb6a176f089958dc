package schema

// ColorTokens are the page palette.
type ColorTokens struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
}

// Typography holds font families and the base size of the type scale.
type Typography struct {
	HeadingFont string `json:"headingFont"`
	BodyFont    string `json:"bodyFont"`
	BaseSize    string `json:"baseSize"`
	Scale       string `json:"scale"`
}

type Spacing struct {
	SectionPadding string `json:"sectionPadding"`
	ElementGap     string `json:"elementGap"`
	ContainerWidth string `json:"containerWidth"`
}

// GlobalStyles are the page-wide style tokens. Values are opaque strings; no
// CSS validation is performed.
type GlobalStyles struct {
	Colors       ColorTokens `json:"colors"`
	Typography   Typography  `json:"typography"`
	Spacing      Spacing     `json:"spacing"`
	BorderRadius string      `json:"borderRadius"`
}

// SectionStyles override global tokens for one section. Empty means inherit.
type SectionStyles struct {
	BackgroundColor string `json:"backgroundColor"`
	BackgroundImage string `json:"backgroundImage"`
	TextColor       string `json:"textColor"`
	Padding         string `json:"padding"`
	Layout          string `json:"layout"`
}

// ElementStyles override section tokens for one element. Empty means inherit.
type ElementStyles struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontSize        string `json:"fontSize"`
	FontWeight      string `json:"fontWeight"`
	TextAlign       string `json:"textAlign"`
	Margin          string `json:"margin"`
	Padding         string `json:"padding"`
	BorderRadius    string `json:"borderRadius"`
	Width           string `json:"width"`
}

// DefaultGlobalStyles returns the tokens a new page starts with.
func DefaultGlobalStyles() GlobalStyles {
	return GlobalStyles{
		Colors: ColorTokens{
			Primary:    "#2563eb",
			Secondary:  "#0f172a",
			Accent:     "#f59e0b",
			Background: "#ffffff",
			Text:       "#1e293b",
		},
		Typography: Typography{
			HeadingFont: "Inter",
			BodyFont:    "Inter",
			BaseSize:    "16px",
			Scale:       "1.25",
		},
		Spacing: Spacing{
			SectionPadding: "64px",
			ElementGap:     "16px",
			ContainerWidth: "1200px",
		},
		BorderRadius: "8px",
	}
}

// Package schema defines the persisted representation of a page: typed
// sections and elements, style tokens, and the versioned envelope around them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope version written by this package.
const CurrentVersion = "1.1.0"

// legacyVersion is assumed for envelopes written before the version field existed.
const legacyVersion = "1.0.0"

// IDGenerator produces unique identifiers for sections and elements.
type IDGenerator func() string

// NewID is the default generator: time-sortable UUIDv7 strings.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Metadata records who touched the schema last and when (unix milliseconds).
type Metadata struct {
	LastEditedAt int64  `json:"lastEditedAt"`
	LastEditedBy string `json:"lastEditedBy"`
}

// ContentSchema is the root persisted value of a page.
type ContentSchema struct {
	Version      string       `json:"version"`
	Sections     []Section    `json:"sections"`
	GlobalStyles GlobalStyles `json:"globalStyles"`
	Metadata     Metadata     `json:"metadata"`
}

// New returns an empty schema at CurrentVersion.
func New() ContentSchema {
	return ContentSchema{
		Version:      CurrentVersion,
		Sections:     []Section{},
		GlobalStyles: DefaultGlobalStyles(),
	}
}

// Clone returns a deep copy of cs.
func (cs ContentSchema) Clone() ContentSchema {
	out := cs
	out.Sections = CloneSections(cs.Sections)
	return out
}

// Touch stamps the metadata with the editor and time of the last edit.
func (cs *ContentSchema) Touch(by string, at time.Time) {
	cs.Metadata.LastEditedAt = at.UnixMilli()
	cs.Metadata.LastEditedBy = by
}

// Encode serializes cs.
func (cs ContentSchema) Encode() ([]byte, error) {
	return json.Marshal(cs)
}

type schemaJSON struct {
	Version      string          `json:"version"`
	Sections     []Section       `json:"sections"`
	GlobalStyles json.RawMessage `json:"globalStyles"`
	Metadata     Metadata        `json:"metadata"`
}

// Decode parses a persisted schema, accepting envelopes written by older
// versions. The result is always at CurrentVersion.
func Decode(data []byte) (ContentSchema, error) {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ContentSchema{}, fmt.Errorf("decode schema: %w", err)
	}
	version := raw.Version
	if version == "" {
		version = legacyVersion
	}
	if major := strings.SplitN(version, ".", 2)[0]; major != "0" && major != "1" {
		return ContentSchema{}, fmt.Errorf("decode schema: unsupported version %q", version)
	}

	styles := DefaultGlobalStyles()
	if len(raw.GlobalStyles) > 0 && string(raw.GlobalStyles) != "null" {
		if err := json.Unmarshal(raw.GlobalStyles, &styles); err != nil {
			return ContentSchema{}, fmt.Errorf("decode global styles: %w", err)
		}
	}
	if raw.Sections == nil {
		raw.Sections = []Section{}
	}
	SortByOrder(raw.Sections)
	for i := range raw.Sections {
		SortElements(raw.Sections[i].Elements)
	}
	return ContentSchema{
		Version:      CurrentVersion,
		Sections:     raw.Sections,
		GlobalStyles: styles,
		Metadata:     raw.Metadata,
	}, nil
}

// Export is the read-only download snapshot of a page. It is not an import
// format.
type Export struct {
	Sections     []Section    `json:"sections"`
	GlobalStyles GlobalStyles `json:"globalStyles"`
	ExportedAt   int64        `json:"exportedAt"`
}

// NewExport snapshots sections and styles at time now.
func NewExport(sections []Section, styles GlobalStyles, now time.Time) Export {
	return Export{
		Sections:     CloneSections(sections),
		GlobalStyles: styles,
		ExportedAt:   now.UnixMilli(),
	}
}

package server

import (
	"encoding/json"

	"github.com/alimasry/go-page-editor/editor"
	"github.com/alimasry/go-page-editor/schema"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin  = "join"
	MsgLeave = "leave"
	MsgState = "state"
	MsgError = "error"

	MsgAddSection         = "addSection"
	MsgRemoveSection      = "removeSection"
	MsgUpdateSection      = "updateSection"
	MsgDuplicateSection   = "duplicateSection"
	MsgReorderSections    = "reorderSections"
	MsgAddElement         = "addElement"
	MsgUpdateElement      = "updateElement"
	MsgRemoveElement      = "removeElement"
	MsgReorderElements    = "reorderElements"
	MsgUpdateGlobalStyles = "updateGlobalStyles"
	MsgUndo               = "undo"
	MsgRedo               = "redo"
	MsgSelect             = "select"
	MsgReload             = "reload"
	MsgForceSave          = "forceSave"
)

// Roles. Only the editor may change the page.
const (
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Error messages sent to clients.
const (
	errRateLimited = "rate limit exceeded"
	errReadOnly    = "read-only: another client is editing this page"
	errConflict    = "page was changed elsewhere: reload or forceSave"
	errSaveFailed  = "failed to save page"
)

// ClientMessage is a message from client to server. Which fields are read
// depends on Type.
type ClientMessage struct {
	Type   string `json:"type"`
	PageID string `json:"pageId,omitempty"`
	Name   string `json:"name,omitempty"`

	SectionID    string               `json:"sectionId,omitempty"`
	ElementID    string               `json:"elementId,omitempty"`
	SectionType  schema.SectionType   `json:"sectionType,omitempty"`
	ElementType  schema.ElementKind   `json:"elementType,omitempty"`
	From         int                  `json:"from"`
	To           int                  `json:"to"`
	Section      *editor.SectionPatch `json:"section,omitempty"`
	Element      *editor.ElementPatch `json:"element,omitempty"`
	GlobalStyles *schema.GlobalStyles `json:"globalStyles,omitempty"`
}

// Selection is the section or element the editor is focused on.
type Selection struct {
	SectionID string `json:"sectionId,omitempty"`
	ElementID string `json:"elementId,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type      string                `json:"type"`
	PageID    string                `json:"pageId,omitempty"`
	Schema    *schema.ContentSchema `json:"schema,omitempty"`
	Revision  int64                 `json:"revision,omitempty"`
	CanUndo   bool                  `json:"canUndo"`
	CanRedo   bool                  `json:"canRedo"`
	Conflict  bool                  `json:"conflict,omitempty"`
	Selection *Selection            `json:"selection,omitempty"`
	Role      string                `json:"role,omitempty"`
	ClientID  string                `json:"clientId,omitempty"`
	Name      string                `json:"name,omitempty"`
	Color     string                `json:"color,omitempty"`
	Message   string                `json:"message,omitempty"`
	Clients   []ClientInfo          `json:"clients,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Role  string `json:"role"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

// editorOnly reports whether a message type needs the editor role.
func editorOnly(t string) bool {
	switch t {
	case MsgAddSection, MsgRemoveSection, MsgUpdateSection, MsgDuplicateSection,
		MsgReorderSections, MsgAddElement, MsgUpdateElement, MsgRemoveElement,
		MsgReorderElements, MsgUpdateGlobalStyles, MsgUndo, MsgRedo,
		MsgSelect, MsgReload, MsgForceSave:
		return true
	}
	return false
}

package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/editor"
	"github.com/alimasry/go-page-editor/sanitize"
	"github.com/alimasry/go-page-editor/schema"
	"github.com/alimasry/go-page-editor/store"
)

type editMessage struct {
	client *Client
	msg    ClientMessage
}

// Session manages editing of a single page.
// All operations are serialized through a single goroutine.
//
// Clients are kept in join order. The first one is the editor; the rest watch
// read-only and are promoted in order when the editor leaves.
type Session struct {
	pageID    string
	hub       *Hub
	history   *editor.History
	revision  int64 // durable revision the history's last save was based on
	meta      schema.Metadata
	conflict  bool
	selection Selection
	clients   []*Client

	incoming chan editMessage
	join     chan joinRequest
	leave    chan *Client
	stop     chan struct{}
}

func newSession(pageID string, page *store.Page, h *Hub) *Session {
	return &Session{
		pageID:   pageID,
		hub:      h,
		history:  editor.NewHistory(snapshotOf(page.Schema), h.historyOpts...),
		revision: page.Revision,
		meta:     page.Schema.Metadata,
		incoming: make(chan editMessage, 64),
		join:     make(chan joinRequest, 16),
		leave:    make(chan *Client, 16),
		stop:     make(chan struct{}),
	}
}

func snapshotOf(cs schema.ContentSchema) editor.Snapshot {
	return editor.Snapshot{Sections: cs.Sections, GlobalStyles: cs.GlobalStyles}
}

// Run is the session's main loop. It serializes all operations.
func (s *Session) Run() {
	for {
		select {
		case req := <-s.join:
			s.handleJoin(req)
		case c := <-s.leave:
			s.handleLeave(c)
		case em := <-s.incoming:
			s.handleEdit(em)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleJoin(req joinRequest) {
	c := req.client
	if !c.attach(s) {
		c.sendError("already joined to a page")
		s.hub.release(s.pageID)
		return
	}
	if req.name != "" {
		c.Name = req.name
	}
	s.clients = append(s.clients, c)
	c.sendMsg(s.stateFor(c))

	// Notify other clients about the new user.
	for _, other := range s.clients {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoin,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
				Role:     s.role(c),
			})
		}
	}
}

func (s *Session) handleLeave(c *Client) {
	i := s.indexOf(c)
	if i < 0 {
		return
	}
	s.clients = append(s.clients[:i], s.clients[i+1:]...)
	c.mu.Lock()
	c.session = nil
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	// Notify others.
	for _, other := range s.clients {
		other.sendMsg(ServerMessage{
			Type:     MsgLeave,
			ClientID: c.ID,
		})
	}
	if i == 0 && len(s.clients) > 0 {
		// The editor left: the next client in join order takes over.
		s.selection = Selection{}
		s.broadcastState()
	}
	s.hub.release(s.pageID)
}

func (s *Session) handleEdit(em editMessage) {
	c, msg := em.client, em.msg
	if s.role(c) != RoleEditor {
		s.hub.metrics.RecordMutation(msg.Type, "denied")
		c.sendError(errReadOnly)
		return
	}

	changed, err := s.apply(c, msg)
	if err != nil {
		s.hub.metrics.RecordMutation(msg.Type, "error")
		c.sendError(err.Error())
		return
	}
	s.hub.metrics.RecordMutation(msg.Type, "ok")
	if changed {
		s.persist(c)
	}
	s.broadcastState()
}

// apply runs one editing message against the history. It reports whether the
// page content changed and so needs saving.
func (s *Session) apply(c *Client, msg ClientMessage) (bool, error) {
	h := s.history
	before := h.Version()
	newID := s.hub.newID

	var err error
	switch msg.Type {
	case MsgAddSection:
		var id string
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			next, added, err := editor.AddSection(secs, msg.SectionType, newID)
			id = added
			return next, err
		})
		if err == nil {
			s.selection = Selection{SectionID: id}
		}
	case MsgRemoveSection:
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			return editor.RemoveSection(secs, msg.SectionID), nil
		})
	case MsgUpdateSection:
		if msg.Section == nil {
			return false, errors.New("updateSection: section is required")
		}
		patch := *msg.Section
		err = h.ApplyCoalesced(sectionKey(msg.SectionID, patch), func(secs []schema.Section) ([]schema.Section, error) {
			return editor.UpdateSection(secs, msg.SectionID, patch)
		})
	case MsgDuplicateSection:
		var id string
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			next, dup := editor.DuplicateSection(secs, msg.SectionID, newID)
			id = dup
			return next, nil
		})
		if err == nil && id != "" {
			s.selection = Selection{SectionID: id}
		}
	case MsgReorderSections:
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			return editor.ReorderSections(secs, msg.From, msg.To), nil
		})
	case MsgAddElement:
		var id string
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			next, added, err := editor.AddElement(secs, msg.SectionID, msg.ElementType, newID)
			id = added
			return next, err
		})
		if err == nil {
			s.selection = Selection{SectionID: msg.SectionID, ElementID: id}
		}
	case MsgUpdateElement:
		if msg.Element == nil {
			return false, errors.New("updateElement: element is required")
		}
		patch := *msg.Element
		err = h.ApplyCoalesced(elementKey(msg.SectionID, msg.ElementID, patch), func(secs []schema.Section) ([]schema.Section, error) {
			return editor.UpdateElement(secs, msg.SectionID, msg.ElementID, patch)
		})
	case MsgRemoveElement:
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			return editor.RemoveElement(secs, msg.SectionID, msg.ElementID)
		})
	case MsgReorderElements:
		err = h.Apply(func(secs []schema.Section) ([]schema.Section, error) {
			return editor.ReorderElements(secs, msg.SectionID, msg.From, msg.To)
		})
	case MsgUpdateGlobalStyles:
		if msg.GlobalStyles == nil {
			return false, errors.New("updateGlobalStyles: globalStyles is required")
		}
		h.SetGlobalStyles(*msg.GlobalStyles)
	case MsgUndo:
		h.Undo()
	case MsgRedo:
		h.Redo()
	case MsgSelect:
		s.selection = Selection{SectionID: msg.SectionID, ElementID: msg.ElementID}
	case MsgReload:
		err = s.reload()
	case MsgForceSave:
		err = s.forceSave(c)
	default:
		return false, fmt.Errorf("unknown message type: %s", msg.Type)
	}
	if err != nil {
		return false, err
	}
	s.fixSelection()
	changed := h.Version() != before
	return changed && msg.Type != MsgReload, nil
}

// sectionKey groups text edits to the same fields of one section into a
// single undo step. Structural patches never coalesce.
func sectionKey(id string, p editor.SectionPatch) string {
	if p.Styles != nil || p.Visible != nil || p.Locked != nil || p.Elements != nil {
		return ""
	}
	fields := make([]string, 0, len(p.Content)+1)
	if p.Name != nil {
		fields = append(fields, "name")
	}
	for k := range p.Content {
		fields = append(fields, "content."+k)
	}
	if len(fields) == 0 {
		return ""
	}
	sort.Strings(fields)
	return "section:" + id + ":" + strings.Join(fields, ",")
}

func elementKey(sectionID, elementID string, p editor.ElementPatch) string {
	if p.Styles != nil || p.Visible != nil || len(p.Content) == 0 {
		return ""
	}
	return "element:" + sectionID + ":" + elementID
}

// fixSelection clears a selection whose section or element no longer exists,
// e.g. after an undo removed it.
func (s *Session) fixSelection() {
	if s.selection.SectionID == "" {
		return
	}
	for _, sec := range s.history.Present().Sections {
		if sec.ID != s.selection.SectionID {
			continue
		}
		if s.selection.ElementID == "" {
			return
		}
		for _, el := range sec.Elements {
			if el.ID == s.selection.ElementID {
				return
			}
		}
		s.selection.ElementID = ""
		return
	}
	s.selection = Selection{}
}

// current builds the persisted form of the present snapshot.
func (s *Session) current() schema.ContentSchema {
	p := s.history.Present()
	cs := schema.New()
	cs.Sections = p.Sections
	cs.GlobalStyles = p.GlobalStyles
	cs.Metadata = s.meta
	return cs
}

// persist saves the present through the sanitizer gate. While a conflict is
// unresolved nothing is written.
func (s *Session) persist(c *Client) {
	if s.conflict {
		return
	}
	cs := s.current()
	cs.Touch(c.Name, s.hub.now())
	cs = sanitize.Schema(cs)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	start := time.Now()
	rev, err := s.hub.store.Save(ctx, s.pageID, cs, s.revision)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		s.revision = rev
		s.meta = cs.Metadata
		s.hub.metrics.RecordSave("ok", elapsed)
	case errors.Is(err, store.ErrConflict):
		s.conflict = true
		s.hub.metrics.RecordSave("conflict", elapsed)
		s.hub.log.Info("save conflict", zap.String("page", s.pageID), zap.Int64("revision", s.revision))
		c.sendError(errConflict)
	default:
		s.hub.metrics.RecordSave("error", elapsed)
		s.hub.log.Error("save failed", zap.String("page", s.pageID), zap.Error(err))
		c.sendError(errSaveFailed)
	}
}

// reload discards local history and starts over from the durable copy.
func (s *Session) reload() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	page, err := s.hub.store.Load(ctx, s.pageID)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	s.history.Reset(snapshotOf(page.Schema))
	s.revision = page.Revision
	s.meta = page.Schema.Metadata
	s.conflict = false
	return nil
}

// forceSave overwrites the durable copy with the present, whatever revision
// it is at.
func (s *Session) forceSave(c *Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	page, err := s.hub.store.Load(ctx, s.pageID)
	if err != nil {
		return fmt.Errorf("force save: %w", err)
	}
	s.hub.log.Info("force save", zap.String("page", s.pageID),
		zap.Int64("from", s.revision), zap.Int64("over", page.Revision))
	s.revision = page.Revision
	s.conflict = false
	s.persist(c)
	return nil
}

func (s *Session) indexOf(c *Client) int {
	for i, other := range s.clients {
		if other == c {
			return i
		}
	}
	return -1
}

func (s *Session) role(c *Client) string {
	if len(s.clients) > 0 && s.clients[0] == c {
		return RoleEditor
	}
	return RoleViewer
}

func (s *Session) stateFor(c *Client) ServerMessage {
	msg := s.stateMessage()
	msg.Role = s.role(c)
	return msg
}

func (s *Session) stateMessage() ServerMessage {
	cs := s.current()
	sel := s.selection
	return ServerMessage{
		Type:      MsgState,
		PageID:    s.pageID,
		Schema:    &cs,
		Revision:  s.revision,
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
		Conflict:  s.conflict,
		Selection: &sel,
		Clients:   s.clientInfos(),
	}
}

func (s *Session) broadcastState() {
	msg := s.stateMessage()
	for _, c := range s.clients {
		msg.Role = s.role(c)
		c.sendMsg(msg)
	}
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		infos = append(infos, c.Info(s.role(c)))
	}
	return infos
}

package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alimasry/go-page-editor/schema"
	"github.com/alimasry/go-page-editor/store"
)

func runHub(t *testing.T, st store.PageStore, opts ...HubOption) *Hub {
	t.Helper()
	hub := NewHub(st, opts...)
	runCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(runCtx)
	t.Cleanup(cancel)
	return hub
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_CreatePageOnJoin(t *testing.T) {
	st := store.NewMemoryStore()
	hub := runHub(t, st)

	c := mockClient("c1")
	c.hub = hub
	hub.joinPage <- joinRequest{client: c, pageID: "new-page"}

	msg := expectType(t, c, MsgState)
	if msg.PageID != "new-page" {
		t.Errorf("pageId = %q, want %q", msg.PageID, "new-page")
	}
	if hub.GetSession("new-page") == nil {
		t.Error("session not created")
	}
	page, err := st.Load(ctx(), "new-page")
	if err != nil {
		t.Fatalf("page not created: %v", err)
	}
	if page.Revision != 1 || page.Status != store.StatusDraft {
		t.Errorf("revision=%d status=%q", page.Revision, page.Status)
	}
}

func TestHub_JoinExistingPage(t *testing.T) {
	st := store.NewMemoryStore()
	cs := schema.New()
	hero, err := schema.NewSection(schema.SectionHero, 0, seqIDs())
	if err != nil {
		t.Fatal(err)
	}
	cs.Sections = append(cs.Sections, hero)
	if err := st.Create(ctx(), "existing", cs); err != nil {
		t.Fatal(err)
	}
	hub := runHub(t, st)

	c := mockClient("c1")
	hub.joinPage <- joinRequest{client: c, pageID: "existing"}

	msg := expectType(t, c, MsgState)
	if len(msg.Schema.Sections) != 1 || msg.Schema.Sections[0].ID != hero.ID {
		t.Errorf("sections = %+v", msg.Schema.Sections)
	}
}

func TestHub_SameSessionForSamePage(t *testing.T) {
	hub := runHub(t, store.NewMemoryStore())
	c1, c2 := mockClient("c1"), mockClient("c2")

	hub.joinPage <- joinRequest{client: c1, pageID: "p"}
	expectType(t, c1, MsgState)
	hub.joinPage <- joinRequest{client: c2, pageID: "p"}
	if got := expectType(t, c2, MsgState).Role; got != RoleViewer {
		t.Errorf("second client role = %q, want viewer", got)
	}
	if c1.currentSession() != c2.currentSession() {
		t.Error("clients of one page should share a session")
	}
}

func TestHub_SessionClosedWhenLastClientLeaves(t *testing.T) {
	hub := runHub(t, store.NewMemoryStore())
	c := mockClient("c1")
	hub.joinPage <- joinRequest{client: c, pageID: "p"}
	expectType(t, c, MsgState)

	s := hub.GetSession("p")
	s.leave <- c
	eventually(t, func() bool { return hub.GetSession("p") == nil }, "session not closed after last client left")

	select {
	case <-s.stop:
	default:
		t.Error("session loop not stopped")
	}

	// A later join opens a fresh session.
	c2 := mockClient("c2")
	hub.joinPage <- joinRequest{client: c2, pageID: "p"}
	if got := expectType(t, c2, MsgState).Role; got != RoleEditor {
		t.Errorf("role = %q, want editor", got)
	}
}

func TestHub_DisconnectedBeforeJoin(t *testing.T) {
	hub := runHub(t, store.NewMemoryStore())
	c := mockClient("c1")
	c.disconnect()

	hub.joinPage <- joinRequest{client: c, pageID: "p"}

	// Joins are handled in order, so once other sees its state the first
	// join has been routed.
	other := mockClient("c2")
	hub.joinPage <- joinRequest{client: other, pageID: "q"}
	expectType(t, other, MsgState)
	eventually(t, func() bool { return hub.GetSession("p") == nil }, "session kept for a client that never attached")
}

type failingStore struct{ store.PageStore }

func (failingStore) Load(context.Context, string) (*store.Page, error) {
	return nil, errors.New("backend down")
}

func TestHub_StoreFailure(t *testing.T) {
	hub := runHub(t, failingStore{})
	c := mockClient("c1")
	hub.joinPage <- joinRequest{client: c, pageID: "p"}

	msg := expectType(t, c, MsgError)
	if msg.Message != "failed to load page" {
		t.Errorf("message = %q", msg.Message)
	}
	if hub.GetSession("p") != nil {
		t.Error("no session should be opened for a page that failed to load")
	}
}

func TestHub_RunStopsSessions(t *testing.T) {
	hub := NewHub(store.NewMemoryStore())
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(runCtx)
		close(done)
	}()

	c := mockClient("c1")
	hub.joinPage <- joinRequest{client: c, pageID: "p"}
	expectType(t, c, MsgState)
	s := hub.GetSession("p")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	select {
	case <-s.stop:
	default:
		t.Error("session not stopped on shutdown")
	}
}

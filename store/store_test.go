package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alimasry/go-page-editor/schema"
)

func testSchema(by string) schema.ContentSchema {
	cs := schema.New()
	n := 0
	hero, err := schema.NewSection(schema.SectionHero, 0, func() string { n++; return by + "-" + string(rune('a'+n)) })
	if err != nil {
		panic(err)
	}
	cs.Sections = append(cs.Sections, hero)
	cs.Metadata.LastEditedBy = by
	return cs
}

// testPageStore exercises the PageStore contract. prefix keeps ids unique for
// stores shared between runs.
func testPageStore(t *testing.T, s PageStore, prefix string) {
	ctx := context.Background()
	id := prefix + "page"

	t.Run("create and load", func(t *testing.T) {
		if err := s.Create(ctx, id, testSchema("alice")); err != nil {
			t.Fatal(err)
		}
		p, err := s.Load(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.ID != id || p.Revision != 1 || p.Status != StatusDraft {
			t.Errorf("unexpected page: id=%q rev=%d status=%q", p.ID, p.Revision, p.Status)
		}
		if len(p.Schema.Sections) != 1 || p.Schema.Metadata.LastEditedBy != "alice" {
			t.Errorf("schema not round-tripped: %+v", p.Schema.Metadata)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		if err := s.Create(ctx, id, schema.New()); !errors.Is(err, ErrExists) {
			t.Errorf("err = %v, want ErrExists", err)
		}
	})

	t.Run("load missing", func(t *testing.T) {
		if _, err := s.Load(ctx, prefix+"missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("save compare and swap", func(t *testing.T) {
		cs := testSchema("bob")
		rev, err := s.Save(ctx, id, cs, 1)
		if err != nil {
			t.Fatal(err)
		}
		if rev != 2 {
			t.Errorf("revision = %d, want 2", rev)
		}
		if _, err := s.Save(ctx, id, cs, 1); !errors.Is(err, ErrConflict) {
			t.Errorf("stale save err = %v, want ErrConflict", err)
		}
		p, err := s.Load(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.Revision != 2 || p.Schema.Metadata.LastEditedBy != "bob" {
			t.Errorf("after save: rev=%d by=%q", p.Revision, p.Schema.Metadata.LastEditedBy)
		}
	})

	t.Run("save missing", func(t *testing.T) {
		if _, err := s.Save(ctx, prefix+"missing", schema.New(), 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		pages, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, info := range pages {
			if info.ID == id {
				if info.LastEditedBy != "bob" {
					t.Errorf("list lastEditedBy = %q", info.LastEditedBy)
				}
				return
			}
		}
		t.Errorf("page %q not listed", id)
	})
}

// Package fixture builds document trees on an in-memory store for tests.
package fixture

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/internal/ddbtest"
	"github.com/jacentio/grove/store"
)

// SpaceID is the space every fixture document belongs to.
const SpaceID int64 = 7

// CreatorID is the creator stamped on fixture entities.
const CreatorID int64 = 42

// Now is the fixed clock used by fixtures and engines under test.
var Now = time.Unix(1_700_000_000, 0)

// Clock returns Now.
func Clock() time.Time { return Now }

// IDs returns a generator of ids "<prefix>1", "<prefix>2", ...
func IDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

// Builder writes fixture entities through the store, one transaction each.
type Builder struct {
	t     testing.TB
	Fake  *ddbtest.Fake
	Store *store.Store
}

// New returns a Builder over an empty fake with the content registry.
func New(t testing.TB) *Builder {
	t.Helper()
	fake := ddbtest.New()
	return &Builder{
		t:     t,
		Fake:  fake,
		Store: store.NewWithRegistry(fake, store.DefaultConfig(), content.NewRegistry()),
	}
}

func (b *Builder) write(fn func(ctx context.Context, r *content.Repo) error) {
	b.t.Helper()
	err := b.Store.RunInTx(context.Background(), func(tx *store.Tx) error {
		return fn(context.Background(), content.NewRepo(tx, nil))
	})
	if err != nil {
		b.t.Fatalf("fixture write: %v", err)
	}
}

// Doc creates a document. An empty parentID makes it a root of SpaceID.
func (b *Builder) Doc(id, parentID string, index int) content.Document {
	b.t.Helper()
	space := SpaceID
	d := content.Document{
		ID:        id,
		Title:     "Doc " + id,
		Index:     index,
		SpaceID:   &space,
		CreatorID: CreatorID,
		IconType:  "emoji",
		IconValue: ":notebook:",
		CreatedAt: Now.Unix() - 3600,
		UpdatedAt: Now.Unix() - 3600,
	}
	if parentID != "" {
		d.ParentID = &parentID
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreateDocument(ctx, &d)
	})
	return d
}

// Page creates a page of documentID.
func (b *Builder) Page(id, documentID string, index int) content.Page {
	b.t.Helper()
	p := content.Page{
		ID:          id,
		DocumentID:  documentID,
		Index:       index,
		Title:       "Page " + id,
		Layout:      "single",
		CreatedByID: CreatorID,
		CreatedAt:   Now.Unix() - 3600,
		UpdatedAt:   Now.Unix() - 3600,
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreatePage(ctx, &p)
	})
	return p
}

// Content creates a page content with the given JSON body.
func (b *Builder) Content(id, pageID string, index int, body string) content.PageContent {
	b.t.Helper()
	c := content.PageContent{
		ID:        id,
		PageID:    pageID,
		Index:     index,
		Body:      []byte(body),
		CreatedAt: Now.Unix() - 3600,
		UpdatedAt: Now.Unix() - 3600,
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreatePageContent(ctx, &c)
	})
	return c
}

// Block creates a writing block of pageContentID.
func (b *Builder) Block(id, pageContentID string, createdAt int64) content.WritingBlock {
	b.t.Helper()
	w := content.WritingBlock{
		ID:            id,
		PageContentID: pageContentID,
		CreatorID:     CreatorID,
		Content:       []byte(`{"text":"block ` + id + `"}`),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreateWritingBlock(ctx, &w)
	})
	return w
}

// Assignment attaches an assignment to documentID.
func (b *Builder) Assignment(id, documentID string) content.Assignment {
	b.t.Helper()
	due := Now.Unix() + 86400
	a := content.Assignment{
		ID:           id,
		DocumentID:   documentID,
		Instructions: "Answer every question",
		DueAt:        &due,
		CreatedAt:    Now.Unix() - 3600,
		UpdatedAt:    Now.Unix() - 3600,
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreateAssignment(ctx, &a)
	})
	return a
}

// Submission attaches a submitted submission to documentID.
func (b *Builder) Submission(id, documentID string) content.Submission {
	b.t.Helper()
	sub := content.Submission{
		ID:         id,
		DocumentID: documentID,
		Status:     "submitted",
		CreatedAt:  Now.Unix() - 3600,
		UpdatedAt:  Now.Unix() - 3600,
	}
	b.write(func(ctx context.Context, r *content.Repo) error {
		return r.CreateSubmission(ctx, &sub)
	})
	return sub
}

// SoftDelete stamps deleted_at on a document.
func (b *Builder) SoftDelete(id string, at int64) {
	b.t.Helper()
	b.update(id, func(d *content.Document) { d.DeletedAt = &at })
}

// Reparent moves a document under parentID.
func (b *Builder) Reparent(id, parentID string) {
	b.t.Helper()
	b.update(id, func(d *content.Document) { d.ParentID = &parentID })
}

func (b *Builder) update(id string, mutate func(*content.Document)) {
	b.t.Helper()
	b.write(func(ctx context.Context, r *content.Repo) error {
		prev, err := r.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		next := *prev
		mutate(&next)
		return r.ReplaceDocument(ctx, prev, &next)
	})
}

// Document reads a document back.
func (b *Builder) Document(id string) content.Document {
	b.t.Helper()
	var d *content.Document
	b.write(func(ctx context.Context, r *content.Repo) error {
		var err error
		d, err = r.GetDocument(ctx, id)
		return err
	})
	return *d
}

// Read runs fn against a read-only transaction.
func (b *Builder) Read(fn func(ctx context.Context, r *content.Repo) error) {
	b.t.Helper()
	b.write(fn)
}

// Rows returns the total number of items across all grove tables.
func (b *Builder) Rows() int {
	n := b.Fake.Len(b.Store.Config().RelationshipTable)
	for _, table := range []string{
		content.DocumentsTable,
		content.PagesTable,
		content.PageContentsTable,
		content.WritingBlocksTable,
		content.AssignmentsTable,
		content.SubmissionsTable,
	} {
		n += b.Fake.Len(table)
	}
	return n
}

package clone_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/goccy/go-json"

	"github.com/jacentio/grove/cascade"
	"github.com/jacentio/grove/clone"
	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/internal/fixture"
	"github.com/jacentio/grove/store"
)

func newEngine(b *fixture.Builder) *clone.Engine {
	return clone.New(b.Store, clone.Config{NewID: fixture.IDs("n"), Now: fixture.Clock})
}

func policy() clone.Policy {
	p := clone.DefaultPolicy(99)
	space := fixture.SpaceID
	p.SpaceID = &space
	return p
}

func ptr[T any](v T) *T { return &v }

func TestDeepClone_EndToEnd(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()

	b.Doc("D1", "", 1)
	b.Page("P1", "D1", 1)
	const body = `{"type":"doc","content":[{"type":"writingBlock","writingBlockId":"B1"},{"type":"paragraph","text":"keep <me> & you","size":12.50}],"attrs":{"z":1,"a":2}}`
	b.Content("C1", "P1", 3, body)
	b.Block("B1", "C1", 100)
	b.Doc("D2", "D1", 1)
	b.Doc("D3", "D1", 2)
	b.SoftDelete("D3", 1_600_000_000)

	root, err := newEngine(b).DeepClone(ctx, "D1", policy())
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	if root.ID == "D1" {
		t.Fatal("expected a new document id")
	}
	if root.Title != "Doc D1" || root.Index != 1 || root.CreatorID != 99 || root.Pending || root.Version != 1 {
		t.Errorf("unexpected clone %+v", root)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		pages, err := r.ActivePages(ctx, root.ID)
		if err != nil {
			return err
		}
		if len(pages) != 1 || pages[0].ID == "P1" || pages[0].CreatedByID != root.CreatorID {
			t.Fatalf("expected one new page, got %+v", pages)
		}

		contents, err := r.PageContents(ctx, pages[0].ID)
		if err != nil {
			return err
		}
		if len(contents) != 1 || contents[0].ID == "C1" || contents[0].Index != 3 {
			t.Fatalf("expected one new page content with index 3, got %+v", contents)
		}

		blocks, err := r.WritingBlocks(ctx, contents[0].ID)
		if err != nil {
			return err
		}
		if len(blocks) != 1 || blocks[0].ID == "B1" || blocks[0].CreatorID != 99 {
			t.Fatalf("expected one new writing block, got %+v", blocks)
		}
		if !bytes.Equal(blocks[0].Content, []byte(`{"text":"block B1"}`)) {
			t.Errorf("expected block content copied, got %s", blocks[0].Content)
		}

		want := strings.Replace(body, `"B1"`, `"`+blocks[0].ID+`"`, 1)
		if got := string(contents[0].Body); got != want {
			t.Errorf("expected body\n%s\ngot\n%s", want, got)
		}

		children, err := r.ChildDocuments(ctx, root.ID)
		if err != nil {
			return err
		}
		if len(children) != 1 || children[0].Title != "Doc D2" || children[0].ID == "D2" {
			t.Fatalf("expected only D2 to be cloned, got %+v", children)
		}
		if children[0].SpaceID == nil || *children[0].SpaceID != fixture.SpaceID {
			t.Errorf("expected child in space %d", fixture.SpaceID)
		}
		return nil
	})

	ids, err := cascade.NewCollector(b.Store, nil).CollectDescendants(ctx, root.ID)
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected one descendant, got %v", ids)
	}

	if d3 := b.Document("D3"); d3.DeletedAt == nil || *d3.DeletedAt != 1_600_000_000 {
		t.Error("expected D3 untouched")
	}
}

func TestDeepClone_RecurseCounts(t *testing.T) {
	tests := []struct {
		name    string
		recurse bool
		want    int
	}{
		{"recurse", true, 3},
		{"no recurse", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fixture.New(t)
			b.Doc("R", "", 1)
			b.Doc("A", "R", 1)
			b.Doc("B", "R", 2)
			b.Doc("A1", "A", 1)
			b.Doc("X", "R", 3)
			b.SoftDelete("X", 1_600_000_000)
			before := b.Fake.Len(content.DocumentsTable)

			p := policy()
			p.Recurse = tt.recurse
			if _, err := newEngine(b).DeepClone(context.Background(), "R", p); err != nil {
				t.Fatalf("DeepClone failed: %v", err)
			}

			if got := b.Fake.Len(content.DocumentsTable) - before - 1; got != tt.want {
				t.Errorf("expected %d cloned descendants, got %d", tt.want, got)
			}
		})
	}
}

func TestDeepClone_PageContentFieldsPreserved(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)
	b.Page("P", "D", 4)
	src := b.Content("C", "P", 9, `{"type":"paragraph","text":"plain"}`)

	root, err := newEngine(b).DeepClone(context.Background(), "D", policy())
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		pages, err := r.Pages(ctx, root.ID)
		if err != nil {
			return err
		}
		if len(pages) != 1 || pages[0].Index != 4 || pages[0].Layout != "single" || pages[0].Title != "Page P" {
			t.Fatalf("expected page scalars copied, got %+v", pages)
		}
		contents, err := r.PageContents(ctx, pages[0].ID)
		if err != nil {
			return err
		}
		got := contents[0]
		if got.ID == src.ID {
			t.Error("expected a new page content id")
		}
		if got.Index != src.Index || !bytes.Equal(got.Body, src.Body) {
			t.Errorf("expected index and body preserved, got %d %s", got.Index, got.Body)
		}
		if got.CreatedAt != fixture.Now.Unix() {
			t.Errorf("expected fresh timestamp, got %d", got.CreatedAt)
		}
		return nil
	})
}

func TestDeepClone_RepeatedReferences(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)
	b.Page("P", "D", 1)
	b.Content("C", "P", 1, `{"content":[{"type":"writingBlock","attrs":{"writingBlockId":"B1"}},{"type":"writingBlock","writingBlockId":"B1"},{"type":"writingBlock","writingBlockId":"EXT"}]}`)
	b.Block("B1", "C", 1)

	root, err := newEngine(b).DeepClone(context.Background(), "D", policy())
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		pages, _ := r.Pages(ctx, root.ID)
		contents, _ := r.PageContents(ctx, pages[0].ID)
		blocks, _ := r.WritingBlocks(ctx, contents[0].ID)

		var body struct {
			Content []struct {
				Type           string            `json:"type"`
				WritingBlockID string            `json:"writingBlockId"`
				Attrs          map[string]string `json:"attrs"`
			} `json:"content"`
		}
		if err := json.Unmarshal(contents[0].Body, &body); err != nil {
			return err
		}
		newID := blocks[0].ID
		if body.Content[0].Attrs["writingBlockId"] != newID || body.Content[1].WritingBlockID != newID {
			t.Errorf("expected both references to point at %s, got %s", newID, contents[0].Body)
		}
		if body.Content[2].WritingBlockID != "EXT" {
			t.Errorf("expected unknown reference kept, got %s", body.Content[2].WritingBlockID)
		}
		return nil
	})
}

func TestDeepClone_ReplaceTargetKeepsIdentity(t *testing.T) {
	b := fixture.New(t)
	b.Doc("S", "", 1)
	b.Page("PS", "S", 1)
	b.Doc("T", "", 2)
	b.Page("PT", "T", 1)
	before := b.Fake.Len(content.DocumentsTable)

	p := policy()
	p.TitlePrefix = "Synced: "
	p.ReplaceTargetID = ptr("T")
	p.Recurse = false

	doc, err := newEngine(b).DeepClone(context.Background(), "S", p)
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	if doc.ID != "T" {
		t.Fatalf("expected target id T, got %s", doc.ID)
	}
	if b.Fake.Len(content.DocumentsTable) != before {
		t.Error("expected no new document")
	}

	got := b.Document("T")
	if got.Title != "Synced: Doc S" || got.Index != 2 || got.Version != 2 {
		t.Errorf("unexpected target after replace: %+v", got)
	}
	b.Read(func(ctx context.Context, r *content.Repo) error {
		pages, err := r.Pages(ctx, "T")
		if len(pages) != 2 {
			t.Errorf("expected existing and cloned page on target, got %d", len(pages))
		}
		return err
	})
}

func TestDeepClone_TypeAttachment(t *testing.T) {
	tests := []struct {
		name string
		keep bool
		want int
	}{
		{"kept", true, 2},
		{"dropped", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fixture.New(t)
			b.Doc("D", "", 1)
			b.Assignment("A", "D")

			p := policy()
			p.KeepTypeAttachment = tt.keep
			root, err := newEngine(b).DeepClone(context.Background(), "D", p)
			if err != nil {
				t.Fatalf("DeepClone failed: %v", err)
			}

			if got := b.Fake.Len(content.AssignmentsTable); got != tt.want {
				t.Errorf("expected %d assignments, got %d", tt.want, got)
			}
			if !tt.keep {
				return
			}
			b.Read(func(ctx context.Context, r *content.Repo) error {
				a, err := r.Assignment(ctx, root.ID)
				if err != nil {
					return err
				}
				if a == nil || a.ID == "A" || a.Instructions != "Answer every question" {
					t.Errorf("expected copied assignment, got %+v", a)
				}
				return nil
			})
		})
	}
}

func TestDeepClone_NoTypeAttachmentIsFine(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)

	if _, err := newEngine(b).DeepClone(context.Background(), "D", policy()); err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
}

// smallBatches returns an engine whose store commits at most n operations
// per transaction.
func smallBatches(b *fixture.Builder, n int) *clone.Engine {
	cfg := store.DefaultConfig()
	cfg.MaxTransactItems = n
	s := store.NewWithRegistry(b.Fake, cfg, content.NewRegistry())
	return clone.New(s, clone.Config{NewID: fixture.IDs("n"), Now: fixture.Clock})
}

func TestDeepClone_FailedBatchDiscardsStagedRows(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	for _, id := range []string{"C1", "C2", "C3", "C4", "C5"} {
		b.Doc(id, "R", int(id[1]-'0'))
	}
	before := b.Rows()

	calls := 0
	b.Fake.BeforeTransactWrite = func(*dynamodb.TransactWriteItemsInput) error {
		calls++
		if calls == 2 {
			return errors.New("InternalServerError")
		}
		return nil
	}

	_, err := smallBatches(b, 7).DeepClone(context.Background(), "R", policy())
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if calls < 3 {
		t.Fatalf("expected the first batch to commit and be discarded, got %d calls", calls)
	}
	if b.Rows() != before {
		t.Errorf("expected %d rows after failed clone, got %d", before, b.Rows())
	}
}

func TestDeepClone_LargeTree(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Doc("D", "", 1)
	for p := 0; p < 3; p++ {
		pageID := fmt.Sprintf("P%d", p)
		b.Page(pageID, "D", p)
		for c := 0; c < 10; c++ {
			contentID := fmt.Sprintf("%s-C%d", pageID, c)
			blockID := contentID + "-B"
			b.Content(contentID, pageID, c, `{"type":"writingBlock","writingBlockId":"`+blockID+`"}`)
			b.Block(blockID, contentID, 1)
		}
	}
	for i := 0; i < 40; i++ {
		b.Doc(fmt.Sprintf("K%02d", i), "D", i)
	}
	calls := b.Fake.TransactCalls()

	root, err := newEngine(b).DeepClone(ctx, "D", policy())
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	if root.Pending {
		t.Error("expected the root to be published")
	}
	if got := b.Fake.TransactCalls() - calls; got < 3 {
		t.Errorf("expected the clone to span several batches, got %d", got)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		children, err := r.ActiveChildDocuments(ctx, root.ID)
		if err != nil {
			return err
		}
		if len(children) != 40 {
			t.Errorf("expected 40 cloned children, got %d", len(children))
		}
		pages, err := r.ActivePages(ctx, root.ID)
		if err != nil {
			return err
		}
		if len(pages) != 3 {
			t.Fatalf("expected 3 pages, got %d", len(pages))
		}
		for _, page := range pages {
			contents, err := r.PageContents(ctx, page.ID)
			if err != nil {
				return err
			}
			if len(contents) != 10 {
				t.Fatalf("expected 10 contents on %s, got %d", page.ID, len(contents))
			}
			for _, c := range contents {
				blocks, err := r.WritingBlocks(ctx, c.ID)
				if err != nil {
					return err
				}
				want := `{"type":"writingBlock","writingBlockId":"` + blocks[0].ID + `"}`
				if len(blocks) != 1 || string(c.Body) != want {
					t.Errorf("expected %s, got %s", want, c.Body)
				}
			}
		}
		return nil
	})
}

func TestDeepClone_StagedTreeHiddenUntilPublished(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Doc("R", "", 1)
	for i := 0; i < 8; i++ {
		b.Doc(fmt.Sprintf("C%d", i), "R", i)
	}
	space := fixture.SpaceID

	lastIndex := func() int {
		var last int
		b.Read(func(ctx context.Context, r *content.Repo) error {
			var err error
			last, err = r.LastIndex(ctx, &space, nil)
			return err
		})
		return last
	}

	batches := 0
	b.Fake.BeforeTransactWrite = func(*dynamodb.TransactWriteItemsInput) error {
		batches++
		if got := lastIndex(); got != 1 {
			t.Errorf("batch %d: clone visible before publish, last index %d", batches, got)
		}
		return nil
	}

	p := policy()
	p.Index = 50
	root, err := smallBatches(b, 6).DeepClone(ctx, "R", p)
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	b.Fake.BeforeTransactWrite = nil

	if batches < 3 {
		t.Errorf("expected several batches, got %d", batches)
	}
	if got := lastIndex(); got != 50 {
		t.Errorf("expected the published clone at index 50, got %d", got)
	}
	if root.Version != 2 {
		t.Errorf("expected the root rewritten once by publish, got version %d", root.Version)
	}
	ids, err := cascade.NewCollector(b.Store, nil).CollectDescendants(ctx, root.ID)
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	if len(ids) != 8 {
		t.Errorf("expected 8 descendants, got %d", len(ids))
	}
}

func TestDeepClone_ReplaceStagesNewPages(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Doc("S", "", 1)
	for i := 0; i < 6; i++ {
		b.Page(fmt.Sprintf("PS%d", i), "S", i)
	}
	b.Doc("T", "", 2)
	b.Page("PT", "T", 1)

	b.Fake.BeforeTransactWrite = func(*dynamodb.TransactWriteItemsInput) error {
		b.Read(func(ctx context.Context, r *content.Repo) error {
			pages, err := r.ActivePages(ctx, "T")
			if len(pages) != 1 {
				t.Errorf("expected only the original page visible before publish, got %d", len(pages))
			}
			return err
		})
		return nil
	}

	p := policy()
	p.ReplaceTargetID = ptr("T")
	p.Recurse = false
	if _, err := smallBatches(b, 12).DeepClone(ctx, "S", p); err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	b.Fake.BeforeTransactWrite = nil

	b.Read(func(ctx context.Context, r *content.Repo) error {
		pages, err := r.ActivePages(ctx, "T")
		if len(pages) != 7 {
			t.Errorf("expected 7 pages after publish, got %d", len(pages))
		}
		return err
	})
}

func TestDeepClone_ReplaceSwapsAttachmentKind(t *testing.T) {
	b := fixture.New(t)
	b.Doc("S", "", 1)
	b.Submission("SUB1", "S")
	b.Doc("T", "", 2)
	b.Assignment("A1", "T")

	p := policy()
	p.ReplaceTargetID = ptr("T")
	if _, err := newEngine(b).DeepClone(context.Background(), "S", p); err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		a, err := r.Assignment(ctx, "T")
		if err != nil {
			return err
		}
		sub, err := r.Submission(ctx, "T")
		if err != nil {
			return err
		}
		if a != nil {
			t.Errorf("expected the assignment of T removed, got %+v", a)
		}
		if sub == nil || sub.ID == "SUB1" || sub.Status != "submitted" {
			t.Errorf("expected a copied submission on T, got %+v", sub)
		}
		return nil
	})
	if b.Fake.Len(content.AssignmentsTable) != 0 {
		t.Errorf("expected no assignment rows, got %d", b.Fake.Len(content.AssignmentsTable))
	}
}

func TestDeepClone_ReplaceKeepsAttachmentID(t *testing.T) {
	b := fixture.New(t)
	b.Doc("S", "", 1)
	b.Assignment("AS", "S")
	b.Doc("T", "", 2)
	b.Assignment("AT", "T")

	p := policy()
	p.ReplaceTargetID = ptr("T")
	if _, err := newEngine(b).DeepClone(context.Background(), "S", p); err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}

	b.Read(func(ctx context.Context, r *content.Repo) error {
		a, err := r.Assignment(ctx, "T")
		if err != nil {
			return err
		}
		if a == nil || a.ID != "AT" || a.Version != 2 {
			t.Errorf("expected AT overwritten in place, got %+v", a)
		}
		return nil
	})
}

func TestDeepClone_AtomicOnCommitFailure(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	b.Doc("C1", "R", 1)
	before := b.Rows()

	b.Fake.BeforeTransactWrite = func(*dynamodb.TransactWriteItemsInput) error {
		return errors.New("InternalServerError")
	}

	_, err := newEngine(b).DeepClone(context.Background(), "R", policy())
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if b.Rows() != before {
		t.Errorf("expected %d rows, got %d", before, b.Rows())
	}
}

func TestDeepClone_InvalidRequests(t *testing.T) {
	b := fixture.New(t)
	b.Doc("S", "", 1)
	b.Doc("S1", "S", 1)
	b.Doc("T", "", 2)
	b.Doc("U", "T", 1)

	tests := []struct {
		name   string
		source string
		mutate func(*clone.Policy)
		want   error
	}{
		{"missing creator", "S", func(p *clone.Policy) { p.CreatorID = 0 }, store.ErrInvalidRequest},
		{"negative index", "S", func(p *clone.Policy) { p.Index = -1 }, store.ErrInvalidRequest},
		{"empty source", "", func(p *clone.Policy) {}, store.ErrInvalidRequest},
		{"replace itself", "S", func(p *clone.Policy) { p.ReplaceTargetID = ptr("S") }, store.ErrInvalidRequest},
		{"replace target under other parent", "S", func(p *clone.Policy) {
			p.ReplaceTargetID = ptr("U")
			p.ParentID = ptr("S")
		}, store.ErrInvalidRequest},
		{"replace target inside source", "S", func(p *clone.Policy) { p.ReplaceTargetID = ptr("S1") }, store.ErrInvalidRequest},
		{"missing source", "nope", func(p *clone.Policy) {}, store.ErrNotFound},
		{"missing replace target", "S", func(p *clone.Policy) { p.ReplaceTargetID = ptr("nope") }, store.ErrNotFound},
		{"missing parent", "S", func(p *clone.Policy) { p.ParentID = ptr("nope") }, store.ErrParentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := b.Rows()
			p := policy()
			tt.mutate(&p)

			_, err := newEngine(b).DeepClone(context.Background(), tt.source, p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if b.Rows() != before {
				t.Error("expected nothing to be written")
			}
		})
	}
}

func TestDeepClone_SoftDeletedSourceAllowed(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)
	b.SoftDelete("D", 1_600_000_000)

	root, err := newEngine(b).DeepClone(context.Background(), "D", policy())
	if err != nil {
		t.Fatalf("DeepClone failed: %v", err)
	}
	if root.DeletedAt != nil {
		t.Error("expected the clone to be active")
	}
}

func TestDeepClone_MalformedBody(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)
	b.Page("P", "D", 1)
	b.Content("C", "P", 1, `{"type":"doc",`)
	b.Block("B", "C", 1)
	before := b.Rows()

	_, err := newEngine(b).DeepClone(context.Background(), "D", policy())
	if !errors.Is(err, store.ErrCorruption) {
		t.Fatalf("expected ErrCorruption, got %v", err)
	}
	if b.Rows() != before {
		t.Error("expected nothing to be written")
	}
}

func TestDuplicate(t *testing.T) {
	b := fixture.New(t)
	b.Doc("F", "", 1)
	b.Doc("D", "F", 1)
	b.Doc("E", "F", 5)
	b.Doc("D1", "D", 1)
	b.Doc("D2", "D", 2)

	docs, err := newEngine(b).Duplicate(context.Background(), fixture.SpaceID, "D", 99)
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected copy and 2 descendants, got %d", len(docs))
	}

	copyDoc := docs[0]
	if copyDoc.Title != "Copy of Doc D" || copyDoc.Index != 6 {
		t.Errorf("unexpected copy %+v", copyDoc)
	}
	if copyDoc.ParentID == nil || *copyDoc.ParentID != "F" {
		t.Errorf("expected copy under F")
	}
	if docs[1].Title != "Doc D1" || docs[2].Title != "Doc D2" {
		t.Errorf("expected descendants in order, got %s, %s", docs[1].Title, docs[2].Title)
	}
	for _, d := range docs[1:] {
		if d.ParentID == nil || *d.ParentID != copyDoc.ID {
			t.Errorf("expected %s under the copy", d.ID)
		}
	}
}

func TestDuplicate_Refusals(t *testing.T) {
	b := fixture.New(t)
	b.Doc("D", "", 1)
	b.Doc("X", "", 2)
	b.SoftDelete("X", 1_600_000_000)

	e := newEngine(b)
	if _, err := e.Duplicate(context.Background(), fixture.SpaceID, "X", 99); !errors.Is(err, store.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for deleted source, got %v", err)
	}
	if _, err := e.Duplicate(context.Background(), fixture.SpaceID+1, "D", 99); !errors.Is(err, store.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for wrong space, got %v", err)
	}
	if _, err := e.Duplicate(context.Background(), fixture.SpaceID, "D", 0); !errors.Is(err, store.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest without creator, got %v", err)
	}
}

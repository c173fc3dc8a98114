package content

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/store"
)

// Repo reads and writes grove entities inside a single transaction.
type Repo struct {
	tx     *store.Tx
	logger *slog.Logger
}

// NewRepo returns a Repo bound to tx. A nil logger uses slog.Default().
func NewRepo(tx *store.Tx, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{tx: tx, logger: logger}
}

// GetDocument returns a document, including soft-deleted ones.
func (r *Repo) GetDocument(ctx context.Context, id string) (*Document, error) {
	return get[Document](ctx, r.tx, DocumentsTable, idKey(id))
}

// ChildDocuments returns the child documents of parentID ordered by (index, id),
// including soft-deleted ones.
func (r *Repo) ChildDocuments(ctx context.Context, parentID string) ([]Document, error) {
	docs, err := children[Document](ctx, r, store.Ref(TypeDocument, parentID), DocumentsTable)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, func(a, b Document) int {
		return cmp.Or(cmp.Compare(a.Index, b.Index), strings.Compare(a.ID, b.ID))
	})
	return docs, nil
}

// ActiveChildDocuments is ChildDocuments without soft-deleted and pending
// documents.
func (r *Repo) ActiveChildDocuments(ctx context.Context, parentID string) ([]Document, error) {
	docs, err := r.ChildDocuments(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(docs, func(d Document) bool { return !d.Active() }), nil
}

// Pages returns every page of a document ordered by (index, id).
func (r *Repo) Pages(ctx context.Context, documentID string) ([]Page, error) {
	pages, err := children[Page](ctx, r, store.Ref(TypeDocument, documentID), PagesTable)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(pages, func(a, b Page) int {
		return cmp.Or(cmp.Compare(a.Index, b.Index), strings.Compare(a.ID, b.ID))
	})
	return pages, nil
}

// ActivePages is Pages without soft-deleted and pending pages.
func (r *Repo) ActivePages(ctx context.Context, documentID string) ([]Page, error) {
	pages, err := r.Pages(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(pages, func(p Page) bool { return p.DeletedAt != nil || p.Pending }), nil
}

// PageContents returns the contents of a page ordered by (index, id).
func (r *Repo) PageContents(ctx context.Context, pageID string) ([]PageContent, error) {
	contents, err := children[PageContent](ctx, r, store.Ref(TypePage, pageID), PageContentsTable)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(contents, func(a, b PageContent) int {
		return cmp.Or(cmp.Compare(a.Index, b.Index), strings.Compare(a.ID, b.ID))
	})
	return contents, nil
}

// WritingBlocks returns the writing blocks of a page content ordered by
// (created_at, id).
func (r *Repo) WritingBlocks(ctx context.Context, pageContentID string) ([]WritingBlock, error) {
	blocks, err := children[WritingBlock](ctx, r, store.Ref(TypePageContent, pageContentID), WritingBlocksTable)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(blocks, func(a, b WritingBlock) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return blocks, nil
}

// Assignment returns the assignment attached to a document, or nil.
func (r *Repo) Assignment(ctx context.Context, documentID string) (*Assignment, error) {
	return attachment[Assignment](ctx, r, documentID, AssignmentsTable)
}

// Submission returns the submission attached to a document, or nil.
func (r *Repo) Submission(ctx context.Context, documentID string) (*Submission, error) {
	return attachment[Submission](ctx, r, documentID, SubmissionsTable)
}

// LastIndex returns the highest index among the active children of parentID,
// or among the active root documents of spaceID when parentID is nil.
// It returns 0 when there are none.
func (r *Repo) LastIndex(ctx context.Context, spaceID *int64, parentID *string) (int, error) {
	var parentRef string
	switch {
	case parentID != nil:
		parentRef = store.Ref(TypeDocument, *parentID)
	case spaceID != nil:
		parentRef = SpaceRef(*spaceID)
	default:
		return 0, fmt.Errorf("%w: a space or a parent document is required", store.ErrInvalidRequest)
	}

	docs, err := children[Document](ctx, r, parentRef, DocumentsTable)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, d := range docs {
		if d.Active() && d.Index > last {
			last = d.Index
		}
	}
	return last, nil
}

func (r *Repo) CreateDocument(ctx context.Context, d *Document) error {
	return create(ctx, r.tx, *d)
}

func (r *Repo) CreatePage(ctx context.Context, p *Page) error {
	return create(ctx, r.tx, *p)
}

func (r *Repo) CreatePageContent(ctx context.Context, c *PageContent) error {
	return create(ctx, r.tx, *c)
}

func (r *Repo) CreateWritingBlock(ctx context.Context, b *WritingBlock) error {
	return create(ctx, r.tx, *b)
}

func (r *Repo) CreateAssignment(ctx context.Context, a *Assignment) error {
	return create(ctx, r.tx, *a)
}

func (r *Repo) CreateSubmission(ctx context.Context, s *Submission) error {
	return create(ctx, r.tx, *s)
}

// ReplaceDocument writes next over prev. The write is conditioned on the
// version prev was read at.
func (r *Repo) ReplaceDocument(ctx context.Context, prev, next *Document) error {
	return replace(ctx, r.tx, *next, prev.Version, prev.ParentRef())
}

func (r *Repo) ReplacePage(ctx context.Context, prev, next *Page) error {
	return replace(ctx, r.tx, *next, prev.Version, prev.ParentRef())
}

func (r *Repo) ReplaceAssignment(ctx context.Context, prev, next *Assignment) error {
	return replace(ctx, r.tx, *next, prev.Version, prev.ParentRef())
}

func (r *Repo) ReplaceSubmission(ctx context.Context, prev, next *Submission) error {
	return replace(ctx, r.tx, *next, prev.Version, prev.ParentRef())
}

// SavePageContent writes c over its current image in the transaction.
func (r *Repo) SavePageContent(ctx context.Context, c *PageContent) error {
	prev, err := r.tx.Get(ctx, PageContentsTable, c.GetKey())
	if err != nil {
		return err
	}
	item, err := marshal(c)
	if err != nil {
		return err
	}
	return r.tx.Replace(ctx, *c, item, prev)
}

func (r *Repo) DeleteDocument(ctx context.Context, d *Document) error {
	return r.tx.Delete(ctx, *d)
}

func (r *Repo) DeleteAssignment(ctx context.Context, a *Assignment) error {
	return r.tx.Delete(ctx, *a)
}

func (r *Repo) DeleteSubmission(ctx context.Context, s *Submission) error {
	return r.tx.Delete(ctx, *s)
}

type entity interface {
	store.Entity
	ParentRef() string
}

func get[T any](ctx context.Context, tx *store.Tx, table string, key store.PK) (*T, error) {
	item, err := tx.Get(ctx, table, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := attributevalue.UnmarshalMap(item.Raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", store.ErrCorruption, item.EntityRef, err)
	}
	return &v, nil
}

// children loads the entities of table listed under parentRef. Relationship
// records whose entity is gone, or no longer names parentRef as its parent,
// are stale and skipped.
func children[T any](ctx context.Context, r *Repo, parentRef, table string) ([]T, error) {
	refs, err := r.tx.Children(ctx, parentRef)
	if err != nil {
		return nil, err
	}

	var out []T
	for _, ref := range refs {
		if ref.TableName != table {
			continue
		}
		v, err := get[T](ctx, r.tx, table, ref.Key)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("skipping relationship to missing entity", "parentRef", parentRef, "childRef", ref.Ref)
			continue
		}
		if err != nil {
			return nil, err
		}
		if e, ok := any(*v).(entity); ok && e.ParentRef() != parentRef {
			r.logger.Warn("skipping stale relationship", "parentRef", parentRef, "childRef", ref.Ref, "actualParentRef", e.ParentRef())
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func attachment[T any](ctx context.Context, r *Repo, documentID, table string) (*T, error) {
	found, err := children[T](ctx, r, store.Ref(TypeDocument, documentID), table)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("%w: document %s has %d %s", store.ErrCorruption, documentID, len(found), table)
}

func create(ctx context.Context, tx *store.Tx, e store.Entity) error {
	item, err := marshal(e)
	if err != nil {
		return err
	}
	return tx.Create(ctx, e, item)
}

func replace(ctx context.Context, tx *store.Tx, next store.Entity, version int64, parentRef string) error {
	item, err := marshal(next)
	if err != nil {
		return err
	}
	return tx.Replace(ctx, next, item, &store.Item{Version: version, EntityRef: next.EntityRef(), ParentRef: parentRef})
}

func marshal(e store.Entity) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", store.ErrInvalidRequest, e.EntityRef(), err)
	}
	return item, nil
}

package clone

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/payload"
	"github.com/jacentio/grove/store"
)

// run holds the state of one clone call. It is discarded with the transaction.
type run struct {
	engine  *Engine
	tx      *store.Tx
	repo    *content.Repo
	now     int64
	visited map[string]bool

	// targetID is the replace target, once loaded.
	targetID string

	// steps make the staged tree visible. They run after everything else.
	steps []step

	// documents lists the written documents in traversal order.
	documents []content.Document
	counts    map[string]int
}

// step is a deferred write. ops bounds the item operations it buffers.
type step struct {
	ops   int
	apply func(ctx context.Context) error
}

func (r *run) newID() string {
	return r.engine.config.NewID()
}

func (r *run) later(ops int, apply func(ctx context.Context) error) {
	r.steps = append(r.steps, step{ops: ops, apply: apply})
}

// publish runs the deferred steps, in one batch when they fit in one, and
// reloads the documents they changed.
func (r *run) publish(ctx context.Context) error {
	ops := 0
	for _, st := range r.steps {
		ops += st.ops
	}
	if err := r.tx.Reserve(ops); err != nil {
		return err
	}
	for _, st := range r.steps {
		if err := st.apply(ctx); err != nil {
			return err
		}
	}

	for i, d := range r.documents {
		if !d.Pending && d.ID != r.targetID {
			continue
		}
		fresh, err := r.repo.GetDocument(ctx, d.ID)
		if err != nil {
			return err
		}
		r.documents[i] = *fresh
	}
	return nil
}

// cloneDocument writes the copy of src described by policy, then copies its
// pages and type attachment. Child documents are left to the caller.
//
// A copy hung under a document that already exists is created pending. In
// replace mode the target itself is only rewritten when the run publishes.
func (r *run) cloneDocument(ctx context.Context, src content.Document, policy Policy) (*content.Document, error) {
	var doc content.Document
	replacing := policy.ReplaceTargetID != nil

	if replacing {
		target, err := r.repo.GetDocument(ctx, *policy.ReplaceTargetID)
		if err != nil {
			return nil, fmt.Errorf("replace target %s: %w", *policy.ReplaceTargetID, err)
		}
		r.targetID = target.ID
		doc = *target
		copyFields(&doc, src, policy)
		doc.UpdatedAt = r.now
		if policy.SpaceID != nil {
			doc.SpaceID = policy.SpaceID
		}
		next := doc
		// A root moved to another space also moves its relationship record.
		r.later(4, func(ctx context.Context) error {
			return r.repo.ReplaceDocument(ctx, target, &next)
		})
	} else {
		doc = content.Document{
			ID:        r.newID(),
			ParentID:  policy.ParentID,
			Index:     policy.Index,
			SpaceID:   policy.SpaceID,
			CreatorID: policy.CreatorID,
			CreatedAt: r.now,
			UpdatedAt: r.now,
		}
		doc.Pending = len(r.documents) == 0 || (policy.ParentID != nil && *policy.ParentID == r.targetID)
		copyFields(&doc, src, policy)
		if err := r.repo.CreateDocument(ctx, &doc); err != nil {
			return nil, err
		}
		doc.Version = 1
		if doc.Pending {
			staged := doc
			r.later(1, func(ctx context.Context) error {
				next := staged
				next.Pending = false
				return r.repo.ReplaceDocument(ctx, &staged, &next)
			})
		}
	}
	r.documents = append(r.documents, doc)
	r.counts[content.TypeDocument]++
	r.engine.logger.Debug("cloned document", "sourceID", src.ID, "documentID", doc.ID, "replaced", replacing, "pending", doc.Pending)

	pages, err := r.repo.ActivePages(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if err := r.clonePage(ctx, page, &doc, policy.CreatorID, replacing); err != nil {
			return nil, err
		}
	}

	if policy.KeepTypeAttachment {
		if err := r.cloneTypeAttachment(ctx, src, &doc, replacing); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func copyFields(doc *content.Document, src content.Document, policy Policy) {
	doc.Title = policy.TitlePrefix + src.Title
	doc.CoverPhotoID = src.CoverPhotoID
	doc.IconType = src.IconType
	doc.IconValue = src.IconValue
	doc.IsPrivate = src.IsPrivate
	doc.IsDefaultFolderPrivate = src.IsDefaultFolderPrivate
}

// clonePage copies src onto doc. Pages added to a replace target stay pending
// until the run publishes.
func (r *run) clonePage(ctx context.Context, src content.Page, doc *content.Document, creatorID int64, staged bool) error {
	page := src
	page.ID = r.newID()
	page.DocumentID = doc.ID
	page.CreatedByID = doc.CreatorID
	page.CreatedAt = r.now
	page.UpdatedAt = r.now
	page.Pending = staged
	page.Version = 0
	if err := r.repo.CreatePage(ctx, &page); err != nil {
		return err
	}
	r.counts[content.TypePage]++
	if staged {
		prev := page
		prev.Version = 1
		r.later(1, func(ctx context.Context) error {
			next := prev
			next.Pending = false
			return r.repo.ReplacePage(ctx, &prev, &next)
		})
	}

	contents, err := r.repo.PageContents(ctx, src.ID)
	if err != nil {
		return err
	}
	for _, c := range contents {
		if err := r.clonePageContent(ctx, c, page.ID, creatorID); err != nil {
			return err
		}
	}
	return nil
}

// clonePageContent writes the content in two steps: the skeleton with the
// source body first, then the body rewritten to the cloned writing blocks.
func (r *run) clonePageContent(ctx context.Context, src content.PageContent, pageID string, creatorID int64) error {
	c := content.PageContent{
		ID:        r.newID(),
		PageID:    pageID,
		Index:     src.Index,
		Body:      src.Body,
		CreatedAt: r.now,
		UpdatedAt: r.now,
	}
	if err := r.repo.CreatePageContent(ctx, &c); err != nil {
		return err
	}
	r.counts[content.TypePageContent]++

	blocks, err := r.repo.WritingBlocks(ctx, src.ID)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	rules := payload.Rules{}
	for _, b := range blocks {
		id, err := r.cloneWritingBlock(ctx, b, c.ID, creatorID)
		if err != nil {
			return err
		}
		rules.Add(r.engine.config.WritingBlockTag, b.ID, id)
	}

	body, n, err := payload.Rewrite(c.Body, rules)
	if errors.Is(err, payload.ErrMalformed) {
		return fmt.Errorf("%w: page content %s: %w", store.ErrCorruption, src.ID, err)
	}
	if err != nil {
		return err
	}
	c.Body = body
	if err := r.repo.SavePageContent(ctx, &c); err != nil {
		return err
	}
	r.engine.logger.Debug("cloned page content", "sourceID", src.ID, "pageContentID", c.ID, "blocks", len(blocks), "references", n)
	return nil
}

func (r *run) cloneWritingBlock(ctx context.Context, src content.WritingBlock, pageContentID string, creatorID int64) (string, error) {
	b := src
	b.ID = r.newID()
	b.PageContentID = pageContentID
	b.CreatorID = creatorID
	b.Version = 0
	if err := r.repo.CreateWritingBlock(ctx, &b); err != nil {
		return "", err
	}
	r.counts[content.TypeWritingBlock]++
	return b.ID, nil
}

// cloneTypeAttachment copies the assignment or submission of src onto doc.
// In replace mode the write waits for publish and leaves the target with the
// source's attachment only: one of the same kind is overwritten and keeps its
// id, one of the other kind is deleted.
func (r *run) cloneTypeAttachment(ctx context.Context, src content.Document, doc *content.Document, replacing bool) error {
	assignment, err := r.repo.Assignment(ctx, src.ID)
	if err != nil {
		return err
	}
	submission, err := r.repo.Submission(ctx, src.ID)
	if err != nil {
		return err
	}
	if assignment == nil && submission == nil {
		return nil
	}
	if !replacing {
		return r.attach(ctx, doc.ID, assignment, submission, nil, nil)
	}

	curAssignment, err := r.repo.Assignment(ctx, doc.ID)
	if err != nil {
		return err
	}
	curSubmission, err := r.repo.Submission(ctx, doc.ID)
	if err != nil {
		return err
	}
	documentID := doc.ID
	r.later(5, func(ctx context.Context) error {
		return r.attach(ctx, documentID, assignment, submission, curAssignment, curSubmission)
	})
	return nil
}

// attach writes assignment and submission onto documentID. cur* are the
// attachments the document has now.
func (r *run) attach(ctx context.Context, documentID string, assignment *content.Assignment, submission *content.Submission, curAssignment *content.Assignment, curSubmission *content.Submission) error {
	switch {
	case assignment != nil:
		next := *assignment
		next.DocumentID = documentID
		next.CreatedAt = r.now
		next.UpdatedAt = r.now

		var err error
		if curAssignment != nil {
			next.ID = curAssignment.ID
			err = r.repo.ReplaceAssignment(ctx, curAssignment, &next)
		} else {
			next.ID = r.newID()
			next.Version = 0
			err = r.repo.CreateAssignment(ctx, &next)
		}
		if err != nil {
			return err
		}
		r.counts[content.TypeAssignment]++
	case curAssignment != nil:
		if err := r.repo.DeleteAssignment(ctx, curAssignment); err != nil {
			return err
		}
	}

	switch {
	case submission != nil:
		next := *submission
		next.DocumentID = documentID
		next.CreatedAt = r.now
		next.UpdatedAt = r.now

		var err error
		if curSubmission != nil {
			next.ID = curSubmission.ID
			err = r.repo.ReplaceSubmission(ctx, curSubmission, &next)
		} else {
			next.ID = r.newID()
			next.Version = 0
			err = r.repo.CreateSubmission(ctx, &next)
		}
		if err != nil {
			return err
		}
		r.counts[content.TypeSubmission]++
	case curSubmission != nil:
		if err := r.repo.DeleteSubmission(ctx, curSubmission); err != nil {
			return err
		}
	}
	return nil
}

package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

// Config holds the collaborators of an Executor.
type Config struct {
	// TrashRetention is how long soft-deleted documents are kept. When set,
	// soft deletion also stamps a ttl so DynamoDB expires the document.
	// Default: 0 (kept until restored or hard deleted)
	TrashRetention time.Duration

	// Now stamps deleted_at. Default: time.Now
	Now func() time.Time

	// Logger receives operation logs. Default: slog.Default()
	Logger *slog.Logger

	// Registerer receives the executor metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Executor applies deletion state changes to documents.
type Executor struct {
	store     *store.Store
	collector *Collector
	config    Config
	logger    *slog.Logger
	metrics   *metrics
}

// NewExecutor creates an Executor. The store needs the content registry for
// HardDelete and Purge.
func NewExecutor(s *store.Store, config Config) *Executor {
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:     s,
		collector: NewCollector(s, logger),
		config:    config,
		logger:    logger,
		metrics:   newMetrics(config.Registerer),
	}
}

// Collector returns the collector used to expand soft deletes.
func (e *Executor) Collector() *Collector {
	return e.collector
}

// SoftDelete marks id, and with includeChildren every active descendant, as
// deleted. All affected documents get the same timestamp. Documents that are
// already deleted, the root included, keep their original timestamp.
//
// The stamps are written in batches when the tree does not fit in one
// transaction, descendants deepest first and the root last. If a batch fails
// the documents stamped by earlier batches are restored.
func (e *Executor) SoftDelete(ctx context.Context, id string, includeChildren bool) error {
	var docs []content.Document
	err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
		repo := content.NewRepo(tx, e.logger)
		root, err := repo.GetDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		docs = nil
		if includeChildren {
			descendants, err := e.collector.collect(ctx, repo, id)
			if err != nil {
				return err
			}
			slices.Reverse(descendants)
			if docs, err = load(ctx, repo, descendants); err != nil {
				return err
			}
		}
		docs = append(docs, *root)
		return nil
	})
	if err == nil {
		docs = slices.DeleteFunc(docs, content.Document.Deleted)
		err = e.apply(ctx, "soft_delete", docs, e.stamp())
	}

	e.metrics.observe("soft_delete", len(docs), err)
	if err != nil {
		return err
	}
	e.logger.Info("soft deleted documents", "documentID", id, "includeChildren", includeChildren, "count", len(docs))
	return nil
}

// SoftDeleteMany marks exactly the given documents as deleted. Descendants
// are not expanded and documents already deleted are left alone. A missing
// document fails the whole call with ErrNotFound.
func (e *Executor) SoftDeleteMany(ctx context.Context, ids []string) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	docs, err := e.read(ctx, ids)
	if err == nil {
		docs = slices.DeleteFunc(docs, content.Document.Deleted)
		err = e.apply(ctx, "soft_delete_many", docs, e.stamp())
	}

	e.metrics.observe("soft_delete_many", len(docs), err)
	if err != nil {
		return err
	}
	e.logger.Info("soft deleted documents", "requested", len(ids), "count", len(docs))
	return nil
}

// Restore clears the deletion marker of exactly the given documents. Callers
// that soft deleted a subtree restore it by passing the same ids. A missing
// document fails the whole call with ErrNotFound.
func (e *Executor) Restore(ctx context.Context, ids []string) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	docs, err := e.read(ctx, ids)
	if err == nil {
		docs = slices.DeleteFunc(docs, func(d content.Document) bool { return !d.Deleted() })
		err = e.apply(ctx, "restore", docs, func(d *content.Document) {
			d.DeletedAt = nil
			d.TTL = nil
		})
	}

	e.metrics.observe("restore", len(docs), err)
	if err != nil {
		return err
	}
	e.logger.Info("restored documents", "requested", len(ids), "restored", len(docs))
	return nil
}

// HardDelete removes a document with its pages, page contents and writing
// blocks. Documents that still have child documents, deleted or not, are
// refused with ErrHasChildren. Type attachments are left to their owners.
//
// Owned entities are removed deepest first and the document last, in as many
// transactions as they need. A hard delete that fails halfway leaves the
// document in place and can be run again.
func (e *Executor) HardDelete(ctx context.Context, id string) error {
	var owned []ownedChild
	_, err := e.store.RunInBatches(ctx, func(tx *store.Tx) error {
		repo := content.NewRepo(tx, e.logger)
		doc, err := repo.GetDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}

		children, err := repo.ChildDocuments(ctx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: %w: document %s has %d child documents", store.ErrInvalidRequest, store.ErrHasChildren, id, len(children))
		}

		if owned, err = ownedTree(ctx, tx, doc.EntityRef()); err != nil {
			return err
		}
		if err := deleteOwned(ctx, tx, owned); err != nil {
			return err
		}
		return repo.DeleteDocument(ctx, doc)
	})

	e.metrics.observe("hard_delete", 1, err)
	if err != nil {
		return err
	}
	e.metrics.removed.Add(float64(len(owned)))
	e.logger.Info("hard deleted document", "documentID", id, "owned", len(owned))
	return nil
}

// Purge removes what is left of a soft-deleted document: the document item if
// it still exists, its owned entities and its relationship record. parentRef
// is used when the document item is already gone, as after TTL expiry.
//
// Purge is idempotent but not atomic. Owned entities are removed deepest
// first in transactions of at most Config.MaxTransactItems operations, so an
// interrupted purge can be run again. It returns the number of owned entities
// removed.
func (e *Executor) Purge(ctx context.Context, id, parentRef string) (int, error) {
	n, err := e.purge(ctx, id, parentRef)
	e.metrics.observe("purge", 1, err)
	e.metrics.removed.Add(float64(n))
	if err != nil {
		return n, err
	}
	e.logger.Info("purged document", "documentID", id, "owned", n)
	return n, nil
}

func (e *Executor) purge(ctx context.Context, id, parentRef string) (int, error) {
	ref := store.Ref(content.TypeDocument, id)
	exists := false

	var owned []ownedChild
	err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
		doc, err := content.NewRepo(tx, e.logger).GetDocument(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case !doc.Deleted():
			return fmt.Errorf("%w: document %s is not deleted", store.ErrInvalidRequest, id)
		default:
			exists = true
			parentRef = doc.ParentRef()
		}
		owned, err = ownedTree(ctx, tx, ref)
		return err
	})
	if err != nil {
		return 0, err
	}

	batch := max(1, e.store.Config().MaxTransactItems/2)
	removed := 0
	for end := len(owned); end > 0; end -= batch {
		chunk := owned[max(0, end-batch):end]
		err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
			return deleteOwned(ctx, tx, chunk)
		})
		if err != nil {
			return removed, err
		}
		removed += len(chunk)
	}

	err = e.store.RunInTx(ctx, func(tx *store.Tx) error {
		if exists {
			if err := tx.DeleteKey(content.DocumentsTable, content.DocumentKey(id)); err != nil {
				return err
			}
		}
		if parentRef != "" {
			return tx.DeleteRelationship(parentRef, ref)
		}
		return nil
	})
	return removed, err
}

// stamp returns the mutation of a soft delete made now.
func (e *Executor) stamp() func(*content.Document) {
	at := e.config.Now().Unix()
	var ttl *int64
	if e.config.TrashRetention > 0 {
		expiry := at + int64(e.config.TrashRetention/time.Second)
		ttl = &expiry
	}
	return func(d *content.Document) {
		d.DeletedAt = &at
		d.TTL = ttl
	}
}

// read loads the documents ids in one read-only transaction.
func (e *Executor) read(ctx context.Context, ids []string) ([]content.Document, error) {
	var docs []content.Document
	err := e.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		docs, err = load(ctx, content.NewRepo(tx, e.logger), ids)
		return err
	})
	return docs, err
}

func load(ctx context.Context, repo *content.Repo, ids []string) ([]content.Document, error) {
	docs := make([]content.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := repo.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// apply rewrites docs, in order, with their deletion fields changed by set.
// docs are images read earlier and every write is conditioned on their
// version. When a batch fails after others committed, the committed
// documents get their previous deletion fields back.
func (e *Executor) apply(ctx context.Context, op string, docs []content.Document, set func(*content.Document)) error {
	if len(docs) == 0 {
		return nil
	}
	written, err := e.store.RunInBatches(ctx, func(tx *store.Tx) error {
		repo := content.NewRepo(tx, e.logger)
		for i := range docs {
			next := docs[i]
			set(&next)
			if err := repo.ReplaceDocument(ctx, &docs[i], &next); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && len(written) > 0 {
		e.revert(ctx, op, docs, written)
	}
	return err
}

func (e *Executor) revert(ctx context.Context, op string, docs []content.Document, written []store.Written) {
	prev := make(map[string]content.Document, len(docs))
	for _, d := range docs {
		prev[d.EntityRef()] = d
	}

	ctx = context.WithoutCancel(ctx)
	reverted := 0
	_, err := e.store.RunInBatches(ctx, func(tx *store.Tx) error {
		repo := content.NewRepo(tx, e.logger)
		for _, w := range written {
			orig, ok := prev[w.EntityRef]
			if !ok {
				continue
			}
			cur, err := repo.GetDocument(ctx, orig.ID)
			if err != nil {
				return fmt.Errorf("document %s: %w", orig.ID, err)
			}
			next := *cur
			next.DeletedAt = orig.DeletedAt
			next.TTL = orig.TTL
			if err := repo.ReplaceDocument(ctx, cur, &next); err != nil {
				return err
			}
			reverted++
		}
		return nil
	})
	if err != nil {
		e.logger.Error("reverting partial update failed", "op", op, "documents", reverted, "error", err)
		return
	}
	e.logger.Warn("reverted partial update", "op", op, "documents", reverted)
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Package clone duplicates document trees.
//
// A clone copies a document with its pages, page contents and writing blocks,
// optionally its assignment or submission, and optionally every active child
// document. Writing block references inside page content bodies are rewritten
// to the new blocks.
//
// Trees of any size are written in batches. The entities hung under an
// existing parent carry a pending marker that hides them from traversal until
// the last batch clears it, and a clone that fails after some batches
// committed deletes what they wrote.
package clone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

// DuplicatePrefix is prepended to the title of documents copied by Duplicate.
const DuplicatePrefix = "Copy of "

// Config holds the collaborators of an Engine.
type Config struct {
	// WritingBlockTag is the type tag of writing block references in page
	// content bodies. Default: "writingBlock"
	WritingBlockTag string

	// NewID allocates entity ids. Default: uuid.NewString
	NewID func() string

	// Now stamps created_at and updated_at. Default: time.Now
	Now func() time.Time

	// Logger receives operation logs. Default: slog.Default()
	Logger *slog.Logger

	// Registerer receives the engine metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		WritingBlockTag: "writingBlock",
		NewID:           uuid.NewString,
		Now:             time.Now,
	}
}

// Engine clones document trees.
type Engine struct {
	store   *store.Store
	config  Config
	logger  *slog.Logger
	metrics *metrics
}

// New creates an Engine. Unset Config fields take their defaults.
func New(s *store.Store, config Config) *Engine {
	defaults := DefaultConfig()
	if config.WritingBlockTag == "" {
		config.WritingBlockTag = defaults.WritingBlockTag
	}
	if config.NewID == nil {
		config.NewID = defaults.NewID
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		config:  config,
		logger:  logger,
		metrics: newMetrics(config.Registerer),
	}
}

// DeepClone copies the document sourceID as directed by policy and returns the
// new document, or the replaced target in replace mode. Nothing becomes
// visible unless the whole tree is copied.
//
// A soft-deleted source is cloned like any other; its soft-deleted children
// and pages are not.
func (e *Engine) DeepClone(ctx context.Context, sourceID string, policy Policy) (*content.Document, error) {
	mode := "new"
	if policy.ReplaceTargetID != nil {
		mode = "replace"
	}
	if err := policy.check(sourceID); err != nil {
		e.metrics.operations.WithLabelValues(mode, "error").Inc()
		return nil, err
	}

	docs, err := e.execute(ctx, sourceID, mode, func(ctx context.Context, r *run, source *content.Document) (Policy, error) {
		if policy.ReplaceTargetID != nil {
			if err := r.checkTarget(ctx, source, policy); err != nil {
				return Policy{}, err
			}
		}
		return policy, nil
	})
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// Duplicate copies an active document of a space next to the original, with
// all its active descendants. The copy is titled with DuplicatePrefix and
// placed after the last sibling. It returns the copy followed by its
// descendants in traversal order.
func (e *Engine) Duplicate(ctx context.Context, spaceID int64, documentID string, creatorID int64) ([]content.Document, error) {
	policy := DefaultPolicy(creatorID)
	policy.TitlePrefix = DuplicatePrefix
	policy.SpaceID = &spaceID
	if err := policy.check(documentID); err != nil {
		e.metrics.operations.WithLabelValues("duplicate", "error").Inc()
		return nil, err
	}

	return e.execute(ctx, documentID, "duplicate", func(ctx context.Context, r *run, source *content.Document) (Policy, error) {
		if !source.Active() {
			return Policy{}, fmt.Errorf("%w: cannot duplicate deleted or pending document %s", store.ErrInvalidRequest, source.ID)
		}
		if source.SpaceID == nil || *source.SpaceID != spaceID {
			return Policy{}, fmt.Errorf("%w: document %s does not belong to space %d", store.ErrInvalidRequest, source.ID, spaceID)
		}
		last, err := r.repo.LastIndex(ctx, &spaceID, source.ParentID)
		if err != nil {
			return Policy{}, err
		}
		policy.ParentID = source.ParentID
		policy.Index = last + 1
		return policy, nil
	})
}

type prepareFunc func(ctx context.Context, r *run, source *content.Document) (Policy, error)

// execute loads the source, lets prepare settle the policy, stages the tree
// and publishes it.
func (e *Engine) execute(ctx context.Context, sourceID, mode string, prepare prepareFunc) ([]content.Document, error) {
	start := time.Now()

	var r *run
	written, err := e.store.RunInBatches(ctx, func(tx *store.Tx) error {
		r = e.newRun(tx)
		source, err := r.repo.GetDocument(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("source document %s: %w", sourceID, err)
		}
		policy, err := prepare(ctx, r, source)
		if err != nil {
			return err
		}
		if err := r.cloneTree(ctx, source, policy); err != nil {
			return err
		}
		return r.publish(ctx)
	})

	e.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.operations.WithLabelValues(mode, "error").Inc()
		e.logger.Error("clone failed", "sourceID", sourceID, "mode", mode, "committed", len(written), "error", err)
		e.discard(ctx, sourceID, written)
		return nil, err
	}

	e.metrics.operations.WithLabelValues(mode, "success").Inc()
	for entity, n := range r.counts {
		e.metrics.cloned.WithLabelValues(entity).Add(float64(n))
	}
	e.logger.Info("cloned document tree",
		"sourceID", sourceID,
		"documentID", r.documents[0].ID,
		"mode", mode,
		"documents", len(r.documents),
		"items", len(written),
	)
	return r.documents, nil
}

// discard deletes the rows staged by the committed batches of a failed clone.
// Rows left behind by a failed discard stay pending and out of sight.
func (e *Engine) discard(ctx context.Context, sourceID string, written []store.Written) {
	if len(written) == 0 {
		return
	}
	if err := e.store.Discard(context.WithoutCancel(ctx), written); err != nil {
		e.logger.Error("discarding staged clone failed", "sourceID", sourceID, "items", len(written), "error", err)
		return
	}
	e.logger.Warn("discarded staged clone", "sourceID", sourceID, "items", len(written))
}

func (e *Engine) newRun(tx *store.Tx) *run {
	return &run{
		engine:  e,
		tx:      tx,
		repo:    content.NewRepo(tx, e.logger),
		now:     e.config.Now().Unix(),
		visited: make(map[string]bool),
		counts:  make(map[string]int),
	}
}

// frame is one pending document of the work list.
type frame struct {
	source content.Document
	policy Policy
}

// cloneTree clones source and, when the policy recurses, its active
// descendants in pre-order. Siblings are visited in (index, id) order.
func (r *run) cloneTree(ctx context.Context, source *content.Document, policy Policy) error {
	stack := []frame{{source: *source, policy: policy}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if r.visited[f.source.ID] {
			return fmt.Errorf("%w: document %s reached twice while cloning", store.ErrCorruption, f.source.ID)
		}
		r.visited[f.source.ID] = true

		doc, err := r.cloneDocument(ctx, f.source, f.policy)
		if err != nil {
			return err
		}
		if !f.policy.Recurse {
			continue
		}

		children, err := r.repo.ActiveChildDocuments(ctx, f.source.ID)
		if err != nil {
			return err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{source: children[i], policy: f.policy.child(children[i], doc)})
		}
	}
	return nil
}

// checkTarget enforces the replace mode rules that depend on stored data.
func (r *run) checkTarget(ctx context.Context, source *content.Document, policy Policy) error {
	target, err := r.repo.GetDocument(ctx, *policy.ReplaceTargetID)
	if err != nil {
		return fmt.Errorf("replace target %s: %w", *policy.ReplaceTargetID, err)
	}

	if policy.ParentID != nil && (target.ParentID == nil || *target.ParentID != *policy.ParentID) {
		return fmt.Errorf("%w: replace target %s is not a child of %s", store.ErrInvalidRequest, target.ID, *policy.ParentID)
	}
	if !policy.Recurse {
		return nil
	}

	seen := map[string]bool{target.ID: true}
	for id := target.ParentID; id != nil; {
		if *id == source.ID {
			return fmt.Errorf("%w: replace target %s lies inside the tree of %s", store.ErrInvalidRequest, target.ID, source.ID)
		}
		if seen[*id] {
			return fmt.Errorf("%w: cycle above document %s", store.ErrCorruption, target.ID)
		}
		seen[*id] = true

		ancestor, err := r.repo.GetDocument(ctx, *id)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return fmt.Errorf("ancestor %s of replace target: %w", *id, err)
		}
		id = ancestor.ParentID
	}
	return nil
}

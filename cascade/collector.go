// Package cascade soft-deletes, restores and removes documents together with
// what hangs below them.
package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

// Collector enumerates the active descendants of a document.
type Collector struct {
	store  *store.Store
	logger *slog.Logger
}

// NewCollector creates a Collector. A nil logger uses slog.Default().
func NewCollector(s *store.Store, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: s, logger: logger}
}

// CollectDescendants returns the ids of every active descendant of id in
// depth-first pre-order, siblings ordered by (index, id). Soft-deleted
// documents and everything below them are left out. id itself is not
// included. A document reached twice means the tree has a cycle and yields
// ErrCorruption.
func (c *Collector) CollectDescendants(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := c.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = c.collect(ctx, content.NewRepo(tx, c.logger), id)
		return err
	})
	return ids, err
}

func (c *Collector) collect(ctx context.Context, repo *content.Repo, id string) ([]string, error) {
	if _, err := repo.GetDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	visited := map[string]bool{id: true}
	var out []string
	stack := []string{id}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current != id {
			out = append(out, current)
		}

		children, err := repo.ActiveChildDocuments(ctx, current)
		if err != nil {
			return nil, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i].ID
			if visited[child] {
				return nil, fmt.Errorf("%w: document %s reached twice below %s", store.ErrCorruption, child, id)
			}
			visited[child] = true
			stack = append(stack, child)
		}
	}

	c.logger.Debug("collected descendants", "documentID", id, "count", len(out))
	return out, nil
}

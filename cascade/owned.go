package cascade

import (
	"context"
	"fmt"

	"github.com/jacentio/grove/store"
)

// ownedChild is a child found through the relationship table together with
// the parent it is listed under.
type ownedChild struct {
	parentRef string
	child     store.ChildRef
}

// ownedTree returns every entity owned, directly or transitively, by rootRef
// in pre-order. Ownership comes from the registry; children whose
// relationship is not owned, such as child documents and type attachments,
// are not followed.
func ownedTree(ctx context.Context, tx *store.Tx, rootRef string) ([]ownedChild, error) {
	registry := tx.Registry()
	if registry == nil {
		return nil, fmt.Errorf("%w: store has no relationship registry", store.ErrInvalidRequest)
	}

	var out []ownedChild
	stack := []string{rootRef}
	visited := map[string]bool{rootRef: true}

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parentType, _ := store.SplitRef(ref)
		if len(registry.OwnedChildrenOf(parentType)) == 0 {
			continue
		}

		children, err := tx.Children(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			rel, ok := registry.Lookup(parentType, child.TableName)
			if !ok || !rel.Owned {
				continue
			}
			if visited[child.Ref] {
				return nil, fmt.Errorf("%w: %s is owned twice below %s", store.ErrCorruption, child.Ref, rootRef)
			}
			visited[child.Ref] = true
			out = append(out, ownedChild{parentRef: ref, child: child})
			stack = append(stack, child.Ref)
		}
	}
	return out, nil
}

// deleteOwned buffers the removal of owned entities, deepest first.
func deleteOwned(ctx context.Context, tx *store.Tx, owned []ownedChild) error {
	for i := len(owned) - 1; i >= 0; i-- {
		if err := tx.DeleteChild(ctx, owned[i].parentRef, owned[i].child); err != nil {
			return err
		}
	}
	return nil
}

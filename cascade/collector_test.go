package cascade_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/cascade"
	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/internal/fixture"
	"github.com/jacentio/grove/internal/shard"
	"github.com/jacentio/grove/store"
)

func TestCollectDescendants_PreOrder(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	b.Doc("A", "R", 2)
	b.Doc("B", "R", 1)
	b.Doc("A1", "A", 1)
	b.Doc("B1", "B", 1)
	b.Doc("B2", "B", 1)

	got, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "R")
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	want := []string{"B", "B1", "B2", "A", "A1"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCollectDescendants_SkipsDeletedSubtrees(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	b.Doc("A", "R", 1)
	b.Doc("B", "R", 2)
	b.Doc("B1", "B", 1)
	b.SoftDelete("B", 1_600_000_000)

	got, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "R")
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	if !slices.Equal(got, []string{"A"}) {
		t.Errorf("expected [A], got %v", got)
	}
}

func TestCollectDescendants_NoChildren(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)

	got, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "R")
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no descendants, got %v", got)
	}
}

func TestCollectDescendants_Missing(t *testing.T) {
	b := fixture.New(t)

	_, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCollectDescendants_Cycle(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	b.Doc("A", "R", 1)
	b.Doc("B", "A", 1)
	// A -> B -> A
	b.Reparent("A", "B")

	_, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "A")
	if !errors.Is(err, store.ErrCorruption) {
		t.Errorf("expected ErrCorruption, got %v", err)
	}
}

func TestCollectDescendants_StaleRelationship(t *testing.T) {
	b := fixture.New(t)
	b.Doc("R", "", 1)
	b.Doc("S", "", 2)
	b.Doc("A", "S", 1)
	// A lives under S but R still lists it.
	seedRelationship(t, b, "R", "A")

	got, err := cascade.NewCollector(b.Store, nil).CollectDescendants(context.Background(), "R")
	if err != nil {
		t.Fatalf("CollectDescendants failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected stale relationship to be skipped, got %v", got)
	}
}

// seedRelationship writes a relationship record directly, bypassing the
// consistency the store maintains.
func seedRelationship(t *testing.T, b *fixture.Builder, parentID, childID string) {
	t.Helper()
	parentRef := store.Ref(content.TypeDocument, parentID)
	childRef := store.Ref(content.TypeDocument, childID)
	b.Fake.Seed(b.Store.Config().RelationshipTable, map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: shard.RelationshipPK(parentRef, childRef, b.Store.Config().NumShards)},
		"child_ref":   &types.AttributeValueMemberS{Value: childRef},
		"parent_ref":  &types.AttributeValueMemberS{Value: parentRef},
		"child_table": &types.AttributeValueMemberS{Value: content.DocumentsTable},
		"child_key":   &types.AttributeValueMemberM{Value: content.DocumentKey(childID)},
	})
}

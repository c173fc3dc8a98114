package clone

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Policy controls one DeepClone call and the calls derived from it for child
// documents. The zero value is not valid; start from DefaultPolicy.
type Policy struct {
	// TitlePrefix is prepended to the source title.
	TitlePrefix string `validate:"max=128"`

	// ParentID is the parent of the clone. Nil places it at the root of SpaceID.
	ParentID *string `validate:"omitempty,min=1"`

	// SpaceID is the space of the clone.
	SpaceID *int64 `validate:"omitempty,gt=0"`

	// Index is the sibling position of the clone.
	Index int `validate:"gte=0"`

	// CreatorID is the acting user, stamped on every created entity.
	CreatorID int64 `validate:"gt=0"`

	// Recurse clones active child documents as well.
	Recurse bool

	// ReplaceTargetID selects in-place mode: the target document is
	// overwritten and keeps its id, parent and index.
	ReplaceTargetID *string `validate:"omitempty,min=1"`

	// KeepTypeAttachment copies the source's assignment or submission.
	KeepTypeAttachment bool
}

// DefaultPolicy returns the policy used when the caller only names the
// acting creator.
func DefaultPolicy(creatorID int64) Policy {
	return Policy{
		Index:              1,
		CreatorID:          creatorID,
		Recurse:            true,
		KeepTypeAttachment: true,
	}
}

// check validates the policy for cloning sourceID. Rules that need stored
// data are checked by the engine.
func (p Policy) check(sourceID string) error {
	if sourceID == "" {
		return fmt.Errorf("%w: source document id is required", store.ErrInvalidRequest)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidRequest, err)
	}
	if p.ReplaceTargetID != nil && *p.ReplaceTargetID == sourceID {
		return fmt.Errorf("%w: document %s cannot replace itself", store.ErrInvalidRequest, sourceID)
	}
	return nil
}

// child derives the policy for a child of source cloned under parent.
func (p Policy) child(source content.Document, parent *content.Document) Policy {
	parentID := parent.ID
	return Policy{
		ParentID:           &parentID,
		SpaceID:            parent.SpaceID,
		Index:              source.Index,
		CreatorID:          p.CreatorID,
		Recurse:            p.Recurse,
		KeepTypeAttachment: p.KeepTypeAttachment,
	}
}

package store

// Relationship defines a parent-child relationship between entity types.
type Relationship struct {
	// ParentType is the parent entity type (e.g., "document").
	ParentType string

	// ChildType is the child entity type (e.g., "page").
	ChildType string

	// ChildTableName is the DynamoDB table name for the child (e.g., "pages").
	ChildTableName string

	// ParentKeyAttr is the attribute name in child that references parent (e.g., "document_id").
	ParentKeyAttr string

	// Owned marks children whose lifetime is bound to the parent. Hard deleting
	// the parent removes owned children; other children are left to their owners.
	Owned bool
}

// Registry holds all known entity relationships for cascade operations.
type Registry struct {
	byParent map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{byParent: make(map[string][]Relationship)}
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
}

// ChildrenOf returns all child relationships for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent[parentType]
}

// Lookup returns the relationship between parentType and children stored in childTable.
func (r *Registry) Lookup(parentType, childTable string) (Relationship, bool) {
	for _, rel := range r.byParent[parentType] {
		if rel.ChildTableName == childTable {
			return rel, true
		}
	}
	return Relationship{}, false
}

// OwnedChildrenOf returns the relationships of parentType whose children are owned.
func (r *Registry) OwnedChildrenOf(parentType string) []Relationship {
	var owned []Relationship
	for _, rel := range r.ChildrenOf(parentType) {
		if rel.Owned {
			owned = append(owned, rel)
		}
	}
	return owned
}

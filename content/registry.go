package content

import "github.com/jacentio/grove/store"

// NewRegistry returns the relationships between grove entity types. Pages,
// page contents and writing blocks are owned by their parent; child documents
// and type attachments are not.
func NewRegistry() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{ParentType: TypeSpace, ChildType: TypeDocument, ChildTableName: DocumentsTable, ParentKeyAttr: "space_id"})
	r.Register(store.Relationship{ParentType: TypeDocument, ChildType: TypeDocument, ChildTableName: DocumentsTable, ParentKeyAttr: "parent_id"})
	r.Register(store.Relationship{ParentType: TypeDocument, ChildType: TypePage, ChildTableName: PagesTable, ParentKeyAttr: "document_id", Owned: true})
	r.Register(store.Relationship{ParentType: TypeDocument, ChildType: TypeAssignment, ChildTableName: AssignmentsTable, ParentKeyAttr: "document_id"})
	r.Register(store.Relationship{ParentType: TypeDocument, ChildType: TypeSubmission, ChildTableName: SubmissionsTable, ParentKeyAttr: "document_id"})
	r.Register(store.Relationship{ParentType: TypePage, ChildType: TypePageContent, ChildTableName: PageContentsTable, ParentKeyAttr: "page_id", Owned: true})
	r.Register(store.Relationship{ParentType: TypePageContent, ChildType: TypeWritingBlock, ChildTableName: WritingBlocksTable, ParentKeyAttr: "page_content_id", Owned: true})
	return r
}

package content

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/store"
)

// Table names.
const (
	DocumentsTable     = "grove_documents"
	PagesTable         = "grove_pages"
	PageContentsTable  = "grove_page_contents"
	WritingBlocksTable = "grove_writing_blocks"
	AssignmentsTable   = "grove_assignments"
	SubmissionsTable   = "grove_submissions"
)

// Entity types, used as the prefix of entity references.
const (
	TypeSpace        = "space"
	TypeDocument     = "document"
	TypePage         = "page"
	TypePageContent  = "page_content"
	TypeWritingBlock = "writing_block"
	TypeAssignment   = "assignment"
	TypeSubmission   = "submission"
)

// Document is a node of the document tree. A document without a parent is a
// root of its space.
type Document struct {
	ID                     string  `dynamodbav:"id"`
	Title                  string  `dynamodbav:"title"`
	ParentID               *string `dynamodbav:"parent_id,omitempty"`
	Index                  int     `dynamodbav:"index"`
	SpaceID                *int64  `dynamodbav:"space_id,omitempty"`
	CreatorID              int64   `dynamodbav:"creator_id"`
	CoverPhotoID           *string `dynamodbav:"cover_photo_id,omitempty"`
	IconType               string  `dynamodbav:"icon_type,omitempty"`
	IconValue              string  `dynamodbav:"icon_value,omitempty"`
	IsPrivate              bool    `dynamodbav:"is_private"`
	IsDefaultFolderPrivate bool    `dynamodbav:"is_default_folder_private"`
	Pending                bool    `dynamodbav:"pending,omitempty"`
	DeletedAt              *int64  `dynamodbav:"deleted_at,omitempty"`
	TTL                    *int64  `dynamodbav:"ttl,omitempty"`
	CreatedAt              int64   `dynamodbav:"created_at"`
	UpdatedAt              int64   `dynamodbav:"updated_at"`
	Version                int64   `dynamodbav:"version"`
}

func (d Document) TableName() string  { return DocumentsTable }
func (d Document) EntityRef() string  { return store.Ref(TypeDocument, d.ID) }
func (d Document) EntityType() string { return TypeDocument }
func (d Document) GetKey() store.PK   { return idKey(d.ID) }

// ParentRef returns the parent document, or the space for root documents.
func (d Document) ParentRef() string {
	switch {
	case d.ParentID != nil:
		return store.Ref(TypeDocument, *d.ParentID)
	case d.SpaceID != nil:
		return SpaceRef(*d.SpaceID)
	}
	return ""
}

// ParentCheck validates the parent document. Spaces are not stored in grove,
// so root documents are not checked.
func (d Document) ParentCheck() *store.ConditionCheck {
	if d.ParentID == nil {
		return nil
	}
	return &store.ConditionCheck{TableName: DocumentsTable, Key: idKey(*d.ParentID)}
}

// Deleted reports whether the document carries a soft-delete marker.
func (d Document) Deleted() bool { return d.DeletedAt != nil }

// Active reports whether the document is visible in the tree: not deleted and
// not staged by a clone that has yet to publish it.
func (d Document) Active() bool { return !d.Deleted() && !d.Pending }

// Page is an ordered container of content inside a document.
type Page struct {
	ID          string `dynamodbav:"id"`
	DocumentID  string `dynamodbav:"document_id"`
	Index       int    `dynamodbav:"index"`
	Title       string `dynamodbav:"title,omitempty"`
	Layout      string `dynamodbav:"layout,omitempty"`
	CreatedByID int64  `dynamodbav:"created_by_id"`
	Pending     bool   `dynamodbav:"pending,omitempty"`
	DeletedAt   *int64 `dynamodbav:"deleted_at,omitempty"`
	CreatedAt   int64  `dynamodbav:"created_at"`
	UpdatedAt   int64  `dynamodbav:"updated_at"`
	Version     int64  `dynamodbav:"version"`
}

func (p Page) TableName() string  { return PagesTable }
func (p Page) EntityRef() string  { return store.Ref(TypePage, p.ID) }
func (p Page) EntityType() string { return TypePage }
func (p Page) GetKey() store.PK   { return idKey(p.ID) }
func (p Page) ParentRef() string  { return store.Ref(TypeDocument, p.DocumentID) }
func (p Page) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{TableName: DocumentsTable, Key: idKey(p.DocumentID)}
}

// PageContent is a unit of content on a page. Body is a JSON document that
// may reference writing blocks by id.
type PageContent struct {
	ID        string `dynamodbav:"id"`
	PageID    string `dynamodbav:"page_id"`
	Index     int    `dynamodbav:"index"`
	Body      []byte `dynamodbav:"body"`
	CreatedAt int64  `dynamodbav:"created_at"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
	Version   int64  `dynamodbav:"version"`
}

func (c PageContent) TableName() string  { return PageContentsTable }
func (c PageContent) EntityRef() string  { return store.Ref(TypePageContent, c.ID) }
func (c PageContent) EntityType() string { return TypePageContent }
func (c PageContent) GetKey() store.PK   { return idKey(c.ID) }
func (c PageContent) ParentRef() string  { return store.Ref(TypePage, c.PageID) }
func (c PageContent) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{TableName: PagesTable, Key: idKey(c.PageID), ConditionExpr: "attribute_exists(id)"}
}

// WritingBlock is a leaf attachment embedded in a page content body.
type WritingBlock struct {
	ID            string `dynamodbav:"id"`
	PageContentID string `dynamodbav:"page_content_id"`
	CreatorID     int64  `dynamodbav:"creator_id"`
	Content       []byte `dynamodbav:"content"`
	CreatedAt     int64  `dynamodbav:"created_at"`
	UpdatedAt     int64  `dynamodbav:"updated_at"`
	Version       int64  `dynamodbav:"version"`
}

func (b WritingBlock) TableName() string  { return WritingBlocksTable }
func (b WritingBlock) EntityRef() string  { return store.Ref(TypeWritingBlock, b.ID) }
func (b WritingBlock) EntityType() string { return TypeWritingBlock }
func (b WritingBlock) GetKey() store.PK   { return idKey(b.ID) }
func (b WritingBlock) ParentRef() string  { return store.Ref(TypePageContent, b.PageContentID) }
func (b WritingBlock) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{TableName: PageContentsTable, Key: idKey(b.PageContentID), ConditionExpr: "attribute_exists(id)"}
}

// Assignment turns a document into a task. A document has at most one.
type Assignment struct {
	ID           string `dynamodbav:"id"`
	DocumentID   string `dynamodbav:"document_id"`
	Instructions string `dynamodbav:"instructions,omitempty"`
	DueAt        *int64 `dynamodbav:"due_at,omitempty"`
	CreatedAt    int64  `dynamodbav:"created_at"`
	UpdatedAt    int64  `dynamodbav:"updated_at"`
	Version      int64  `dynamodbav:"version"`
}

func (a Assignment) TableName() string  { return AssignmentsTable }
func (a Assignment) EntityRef() string  { return store.Ref(TypeAssignment, a.ID) }
func (a Assignment) EntityType() string { return TypeAssignment }
func (a Assignment) GetKey() store.PK   { return idKey(a.ID) }
func (a Assignment) ParentRef() string  { return store.Ref(TypeDocument, a.DocumentID) }
func (a Assignment) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{TableName: DocumentsTable, Key: idKey(a.DocumentID), ConditionExpr: "attribute_exists(id)"}
}

// Submission marks a document as the answer to an assignment. A document has
// at most one.
type Submission struct {
	ID           string  `dynamodbav:"id"`
	DocumentID   string  `dynamodbav:"document_id"`
	AssignmentID *string `dynamodbav:"assignment_id,omitempty"`
	Status       string  `dynamodbav:"status"`
	CreatedAt    int64   `dynamodbav:"created_at"`
	UpdatedAt    int64   `dynamodbav:"updated_at"`
	Version      int64   `dynamodbav:"version"`
}

func (s Submission) TableName() string  { return SubmissionsTable }
func (s Submission) EntityRef() string  { return store.Ref(TypeSubmission, s.ID) }
func (s Submission) EntityType() string { return TypeSubmission }
func (s Submission) GetKey() store.PK   { return idKey(s.ID) }
func (s Submission) ParentRef() string  { return store.Ref(TypeDocument, s.DocumentID) }
func (s Submission) ParentCheck() *store.ConditionCheck {
	return &store.ConditionCheck{TableName: DocumentsTable, Key: idKey(s.DocumentID), ConditionExpr: "attribute_exists(id)"}
}

// SpaceRef returns the reference under which the root documents of a space
// are listed.
func SpaceRef(spaceID int64) string {
	return store.Ref(TypeSpace, strconv.FormatInt(spaceID, 10))
}

// DocumentKey returns the primary key of a document.
func DocumentKey(id string) store.PK {
	return idKey(id)
}

func idKey(id string) store.PK {
	return store.PK{"id": &types.AttributeValueMemberS{Value: id}}
}

var (
	_ store.ParentChecker = Document{}
	_ store.ParentChecker = Page{}
	_ store.ParentChecker = PageContent{}
	_ store.ParentChecker = WritingBlock{}
	_ store.ParentChecker = Assignment{}
	_ store.ParentChecker = Submission{}
)

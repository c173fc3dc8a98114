package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

type opKind int

const (
	opCheck opKind = iota
	opPut
	opDelete
)

// opRole records why an operation was buffered, so a cancellation reason can
// be mapped back to an error category.
type opRole int

const (
	roleParentCheck opRole = iota
	roleCreate
	roleReplace
	roleDelete
	roleRelationship
)

type txOp struct {
	kind   opKind
	role   opRole
	table  string
	key    PK
	item   map[string]types.AttributeValue
	cond   string
	names  map[string]string
	values map[string]types.AttributeValue

	// created marks puts of items that did not exist before the Tx.
	created bool
}

// Written identifies an item stored by a committed batch of RunInBatches.
type Written struct {
	Table string
	Key   PK
	// EntityRef is empty for relationship records.
	EntityRef string
	// Created reports that the item did not exist before the batch.
	Created bool
}

// Tx is a unit of work over the Store. Reads go to DynamoDB with strong
// consistency but see the writes already buffered in the Tx. Writes are
// buffered and coalesced per item, because a DynamoDB transaction may touch
// an item at most once.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	store *Store
	ops   []*txOp
	index map[string]int
	token string

	// Set by RunInBatches only.
	ctx     context.Context
	batched bool
	written []Written
}

func newTx(s *Store) *Tx {
	return &Tx{
		store: s,
		index: make(map[string]int),
		token: uuid.NewString(),
	}
}

// Len returns the number of buffered item operations.
func (tx *Tx) Len() int {
	return len(tx.ops)
}

// Registry returns the relationship registry of the underlying Store.
func (tx *Tx) Registry() *Registry {
	return tx.store.registry
}

// Get retrieves an item, preferring the image buffered in this Tx.
func (tx *Tx) Get(ctx context.Context, table string, key PK) (*Item, error) {
	if op := tx.lookup(table, key); op != nil {
		switch op.kind {
		case opPut:
			return tx.store.unmarshalItem(op.item), nil
		case opDelete:
			return nil, ErrNotFound
		}
	}
	return tx.store.Get(ctx, table, key)
}

// Children returns the committed relationship records of parentRef.
// Relationships buffered in this Tx are not included.
func (tx *Tx) Children(ctx context.Context, parentRef string) ([]ChildRef, error) {
	return tx.store.QueryAllChildren(ctx, parentRef)
}

// Create buffers a new entity. item must be the marshaled entity; the store
// adds entity_ref, parent_ref and version. The write fails if an item with the
// same key exists, or if the parent is missing or soft-deleted at commit time.
func (tx *Tx) Create(ctx context.Context, entity Entity, item map[string]types.AttributeValue) error {
	table, key := entity.TableName(), entity.GetKey()
	parentRef, check := parentOf(entity)
	tx.setManaged(entity, item, parentRef)

	if existing := tx.lookup(table, key); existing != nil {
		switch existing.kind {
		case opPut:
			item["version"] = existing.item["version"]
			existing.item = item
			return nil
		case opCheck:
			return fmt.Errorf("%w: %s: %w", ErrStorage, entity.EntityRef(), ErrAlreadyExists)
		default:
			return fmt.Errorf("%w: %s is deleted in this transaction", ErrInvalidRequest, entity.EntityRef())
		}
	}

	if err := tx.reserve(opCount(1, parentRef != "", check != nil)); err != nil {
		return err
	}
	if check != nil {
		if err := tx.checkParent(check); err != nil {
			return err
		}
	}

	item["version"] = &types.AttributeValueMemberN{Value: "1"}
	if err := tx.add(&txOp{
		kind:    opPut,
		role:    roleCreate,
		table:   table,
		key:     key,
		item:    item,
		cond:    "attribute_not_exists(id)",
		created: true,
	}); err != nil {
		return err
	}

	if parentRef == "" {
		return nil
	}
	return tx.putRelationship(parentRef, entity, true)
}

// Replace buffers a full replacement of an existing entity. prev is the item as
// read in this Tx; the write is conditioned on its version. If the entity's
// parent changed, its relationship record moves with it.
func (tx *Tx) Replace(ctx context.Context, entity Entity, item map[string]types.AttributeValue, prev *Item) error {
	table, key := entity.TableName(), entity.GetKey()
	parentRef, check := parentOf(entity)
	tx.setManaged(entity, item, parentRef)

	moved := prev.ParentRef != parentRef
	if tx.lookup(table, key) == nil {
		if err := tx.reserve(opCount(1, moved && check != nil, moved && prev.ParentRef != "", moved && parentRef != "")); err != nil {
			return err
		}
	}
	if moved && check != nil {
		if err := tx.checkParent(check); err != nil {
			return err
		}
	}

	existing := tx.lookup(table, key)
	switch {
	case existing != nil && existing.kind == opPut:
		item["version"] = existing.item["version"]
		existing.item = item
	case existing != nil && existing.kind == opDelete:
		return fmt.Errorf("%w: %s is deleted in this transaction", ErrInvalidRequest, entity.EntityRef())
	default:
		item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(prev.Version+1, 10)}
		op := &txOp{
			kind:   opPut,
			role:   roleReplace,
			table:  table,
			key:    key,
			item:   item,
			cond:   "#version = :expected_version",
			names:  map[string]string{"#version": "version"},
			values: map[string]types.AttributeValue{":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev.Version, 10)}},
		}
		if existing != nil {
			// A pending parent check on this item is subsumed by the versioned put.
			*existing = *op
		} else if err := tx.add(op); err != nil {
			return err
		}
	}

	if !moved {
		return nil
	}
	if prev.ParentRef != "" {
		if err := tx.DeleteRelationship(prev.ParentRef, entity.EntityRef()); err != nil {
			return err
		}
	}
	if parentRef != "" {
		return tx.putRelationship(parentRef, entity, false)
	}
	return nil
}

// Delete buffers the removal of an entity and its relationship record.
func (tx *Tx) Delete(ctx context.Context, entity Entity) error {
	parentRef, _ := parentOf(entity)
	if err := tx.reserve(opCount(1, parentRef != "")); err != nil {
		return err
	}
	if err := tx.deleteItem(entity.TableName(), entity.GetKey()); err != nil {
		return err
	}
	if parentRef != "" {
		return tx.DeleteRelationship(parentRef, entity.EntityRef())
	}
	return nil
}

// DeleteChild buffers the removal of a child found through the relationship
// table, together with its relationship record.
func (tx *Tx) DeleteChild(ctx context.Context, parentRef string, child ChildRef) error {
	if err := tx.reserve(2); err != nil {
		return err
	}
	if err := tx.deleteItem(child.TableName, child.Key); err != nil {
		return err
	}
	return tx.DeleteRelationship(parentRef, child.Ref)
}

// DeleteKey buffers the removal of the item with key in table. Relationship
// records are left alone.
func (tx *Tx) DeleteKey(table string, key PK) error {
	return tx.deleteItem(table, key)
}

// DeleteRelationship buffers the removal of a single relationship record.
func (tx *Tx) DeleteRelationship(parentRef, childRef string) error {
	return tx.deleteItem(tx.store.config.RelationshipTable, tx.store.relationshipKey(parentRef, childRef))
}

func (tx *Tx) putRelationship(parentRef string, entity Entity, created bool) error {
	table := tx.store.config.RelationshipTable
	key := tx.store.relationshipKey(parentRef, entity.EntityRef())
	item := tx.store.relationshipItem(parentRef, entity)

	if existing := tx.lookup(table, key); existing != nil {
		if existing.kind != opPut {
			existing.created = false
		}
		existing.kind = opPut
		existing.item = item
		return nil
	}
	return tx.add(&txOp{kind: opPut, role: roleRelationship, table: table, key: key, item: item, created: created})
}

func (tx *Tx) deleteItem(table string, key PK) error {
	if existing := tx.lookup(table, key); existing != nil {
		if existing.kind == opDelete {
			return nil
		}
		// Deleting an item without a condition is valid whether or not it was
		// ever stored, so a pending put or check collapses into a delete.
		*existing = txOp{kind: opDelete, role: roleDelete, table: table, key: key}
		return nil
	}
	return tx.add(&txOp{kind: opDelete, role: roleDelete, table: table, key: key})
}

// checkParent buffers a parent existence check. Parents written earlier in
// this Tx need no check; parents deleted earlier in this Tx fail immediately.
func (tx *Tx) checkParent(check *ConditionCheck) error {
	if existing := tx.lookup(check.TableName, check.Key); existing != nil {
		if existing.kind == opDelete {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrParentNotFound)
		}
		return nil
	}

	op := &txOp{
		kind:  opCheck,
		role:  roleParentCheck,
		table: check.TableName,
		key:   check.Key,
		cond:  check.ConditionExpr,
	}
	if op.cond == "" {
		op.cond = ParentExistsCondition()
		op.names = ParentExistsNames()
	}
	return tx.add(op)
}

func (tx *Tx) setManaged(entity Entity, item map[string]types.AttributeValue, parentRef string) {
	item["entity_ref"] = &types.AttributeValueMemberS{Value: entity.EntityRef()}
	if parentRef != "" {
		item["parent_ref"] = &types.AttributeValueMemberS{Value: parentRef}
	} else {
		delete(item, "parent_ref")
	}
}

func (tx *Tx) lookup(table string, key PK) *txOp {
	if i, ok := tx.index[keyString(table, key)]; ok {
		return tx.ops[i]
	}
	return nil
}

func (tx *Tx) add(op *txOp) error {
	if limit := tx.store.config.MaxTransactItems; len(tx.ops) >= limit {
		if !tx.batched {
			return fmt.Errorf("%w: %w: more than %d item operations", ErrStorage, ErrTransactionTooLarge, limit)
		}
		if err := tx.flush(); err != nil {
			return err
		}
	}
	tx.index[keyString(op.table, op.key)] = len(tx.ops)
	tx.ops = append(tx.ops, op)
	return nil
}

// Reserve commits the buffered operations as a batch when n more would not
// fit next to them, so the next n operations land in one transaction. It does
// nothing outside RunInBatches.
func (tx *Tx) Reserve(n int) error {
	return tx.reserve(n)
}

func (tx *Tx) reserve(n int) error {
	if !tx.batched || len(tx.ops) == 0 || len(tx.ops)+n <= tx.store.config.MaxTransactItems {
		return nil
	}
	return tx.flush()
}

// flush commits the buffered operations and starts an empty batch.
func (tx *Tx) flush() error {
	if len(tx.ops) == 0 {
		return nil
	}
	if err := tx.commit(tx.ctx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		if op.kind != opPut {
			continue
		}
		w := Written{Table: op.table, Key: op.key, Created: op.created}
		if ref, ok := op.item["entity_ref"].(*types.AttributeValueMemberS); ok && op.table != tx.store.config.RelationshipTable {
			w.EntityRef = ref.Value
		}
		tx.written = append(tx.written, w)
	}
	tx.ops = nil
	tx.index = make(map[string]int)
	tx.token = uuid.NewString()
	return nil
}

// commit writes all buffered operations in one TransactWriteItems call.
func (tx *Tx) commit(ctx context.Context) error {
	if len(tx.ops) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(tx.ops))
	for _, op := range tx.ops {
		items = append(items, op.transactItem())
	}

	_, err := tx.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(tx.token),
	})
	if err != nil {
		return tx.mapCommitError(err)
	}
	return nil
}

func (tx *Tx) mapCommitError(err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if i >= len(tx.ops) || reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			switch tx.ops[i].role {
			case roleParentCheck:
				return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrParentNotFound)
			case roleCreate:
				return fmt.Errorf("%w: %w", ErrStorage, ErrAlreadyExists)
			default:
				return fmt.Errorf("%w: %w", ErrStorage, ErrConcurrentModification)
			}
		}
	}
	return fmt.Errorf("%w: transact write: %w", ErrStorage, err)
}

func (op *txOp) transactItem() types.TransactWriteItem {
	var cond *string
	if op.cond != "" {
		cond = aws.String(op.cond)
	}

	switch op.kind {
	case opCheck:
		return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(op.table),
			Key:                       op.key,
			ConditionExpression:       cond,
			ExpressionAttributeNames:  op.names,
			ExpressionAttributeValues: op.values,
		}}
	case opPut:
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(op.table),
			Item:                      op.item,
			ConditionExpression:       cond,
			ExpressionAttributeNames:  op.names,
			ExpressionAttributeValues: op.values,
		}}
	default:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(op.table),
			Key:       op.key,
		}}
	}
}

// opCount returns base plus one for every true flag.
func opCount(base int, extra ...bool) int {
	for _, ok := range extra {
		if ok {
			base++
		}
	}
	return base
}

func parentOf(entity Entity) (string, *ConditionCheck) {
	checker, ok := entity.(ParentChecker)
	if !ok {
		return "", nil
	}
	return checker.ParentRef(), checker.ParentCheck()
}

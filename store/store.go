package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/grove/internal/shard"
)

// Store provides DynamoDB operations with hierarchical entity support.
type Store struct {
	client   API
	config   Config
	registry *Registry
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// NewWithRegistry creates a new Store instance with a relationship registry.
func NewWithRegistry(client API, config Config, registry *Registry) *Store {
	config.validate()
	return &Store{
		client:   client,
		config:   config,
		registry: registry,
	}
}

// Registry returns the relationship registry, or nil if not set.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// relationshipPK computes the sharded partition key for a relationship record.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.RelationshipPK(parentRef, childRef, s.config.NumShards)
}

// RunInTx runs fn inside a new transaction. Writes made through the Tx are
// buffered and committed with a single TransactWriteItems call once fn returns
// nil. If fn returns an error nothing is written and the error is returned as is.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

// RunInBatches runs fn like RunInTx but is not bound by MaxTransactItems.
// Whenever the buffer is full it is committed as one batch and fn continues
// against an empty one; the operations of a single Create, Replace or Delete
// call are never split. Reads made after a batch commits see its writes.
//
// The returned slice lists the items stored by committed batches, in commit
// order. It is returned with the error too, so the caller can undo a run that
// failed halfway.
func (s *Store) RunInBatches(ctx context.Context, fn func(tx *Tx) error) ([]Written, error) {
	tx := newTx(s)
	tx.ctx = ctx
	tx.batched = true
	if err := fn(tx); err != nil {
		return tx.written, err
	}
	if err := tx.flush(); err != nil {
		return tx.written, err
	}
	return tx.written, nil
}

// Discard deletes the items in written that were created by the run, newest
// first. Relationship records of created entities go with them.
func (s *Store) Discard(ctx context.Context, written []Written) error {
	_, err := s.RunInBatches(ctx, func(tx *Tx) error {
		for i := len(written) - 1; i >= 0; i-- {
			if !written[i].Created {
				continue
			}
			if err := tx.DeleteKey(written[i].Table, written[i].Key); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Get retrieves an entity by key, returning ErrNotFound if missing or expired.
// Soft-deleted entities are returned; callers decide whether the marker matters.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get from %s: %w", ErrStorage, table, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	if IsExpired(result.Item) {
		return nil, ErrNotFound
	}

	return s.unmarshalItem(result.Item), nil
}

// QueryAllChildren returns the relationship records of every child of parentRef,
// including soft-deleted ones. Shards are read one after another so the result
// order is stable: shard order, then child_ref order within a shard.
func (s *Store) QueryAllChildren(ctx context.Context, parentRef string) ([]ChildRef, error) {
	var children []ChildRef

	for _, shardPK := range shard.All(parentRef, s.config.NumShards) {
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:              aws.String(s.config.RelationshipTable),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: shardPK},
			},
			ConsistentRead: aws.Bool(true),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: query children of %s: %w", ErrStorage, parentRef, err)
			}
			for _, item := range page.Items {
				children = append(children, s.unmarshalChildRef(item, shardPK))
			}
		}
	}

	return children, nil
}

// relationshipKey returns the relationship table key of childRef under parentRef.
func (s *Store) relationshipKey(parentRef, childRef string) PK {
	return PK{
		"pk":        &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
		"child_ref": &types.AttributeValueMemberS{Value: childRef},
	}
}

// relationshipItem builds the relationship record linking entity to parentRef.
func (s *Store) relationshipItem(parentRef string, entity Entity) map[string]types.AttributeValue {
	childRef := entity.EntityRef()
	return map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
		"child_ref":   &types.AttributeValueMemberS{Value: childRef},
		"parent_ref":  &types.AttributeValueMemberS{Value: parentRef},
		"child_table": &types.AttributeValueMemberS{Value: entity.TableName()},
		"child_key":   &types.AttributeValueMemberM{Value: map[string]types.AttributeValue(entity.GetKey())},
	}
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func (s *Store) unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw["entity_ref"].(*types.AttributeValueMemberS); ok {
		item.EntityRef = v.Value
	}
	if v, ok := raw["parent_ref"].(*types.AttributeValueMemberS); ok {
		item.ParentRef = v.Value
	}

	return item
}

// unmarshalChildRef converts a relationship item to a ChildRef.
func (s *Store) unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{ShardPK: shardPK}

	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_table"].(*types.AttributeValueMemberS); ok {
		ref.TableName = v.Value
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}

	return ref
}

// keyString renders table and key as a canonical string, used to find
// buffered operations on the same item.
func keyString(table string, key PK) string {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(table)
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		switch v := key[name].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("S:")
			b.WriteString(v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("N:")
			b.WriteString(v.Value)
		case *types.AttributeValueMemberB:
			b.WriteString("B:")
			b.WriteString(hex.EncodeToString(v.Value))
		default:
			fmt.Fprintf(&b, "%T", v)
		}
	}
	return b.String()
}

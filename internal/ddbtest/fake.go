// Package ddbtest provides an in-memory stand-in for the DynamoDB operations
// used by the store package. It evaluates the small set of condition
// expressions grove writes and reports failures the way DynamoDB does, with a
// TransactionCanceledException carrying one cancellation reason per item.
package ddbtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultRelationshipTable matches store.DefaultConfig().RelationshipTable.
const DefaultRelationshipTable = "grove_relationships"

// maxTransactItems is the DynamoDB limit on operations per transaction.
const maxTransactItems = 100

// Fake is an in-memory DynamoDB. The zero value is not usable; call New.
type Fake struct {
	mu      sync.Mutex
	schemas map[string][]string
	tables  map[string]map[string]map[string]types.AttributeValue

	// PageSize limits the number of items returned per Query page.
	// Zero returns everything in one page.
	PageSize int

	// BeforeTransactWrite, when set, is called before a transaction is
	// evaluated. A non-nil error fails the call without applying anything.
	BeforeTransactWrite func(in *dynamodb.TransactWriteItemsInput) error

	// BeforeGetItem, when set, is called before every GetItem. A non-nil
	// error is returned to the caller.
	BeforeGetItem func(in *dynamodb.GetItemInput) error

	// BeforeQuery, when set, is called before every Query page.
	BeforeQuery func(in *dynamodb.QueryInput) error

	transactCalls int
	transactItems int
}

// New returns an empty Fake. Tables are keyed by "id" unless configured with
// SetKeySchema; the default relationship table is keyed by pk and child_ref.
func New() *Fake {
	f := &Fake{
		schemas: make(map[string][]string),
		tables:  make(map[string]map[string]map[string]types.AttributeValue),
	}
	f.schemas[DefaultRelationshipTable] = []string{"pk", "child_ref"}
	return f
}

// SetKeySchema declares the key attributes of a table. The first attribute is
// the partition key and the optional second one the sort key.
func (f *Fake) SetKeySchema(table string, attrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[table] = attrs
}

// Seed stores an item directly, bypassing conditions.
func (f *Fake) Seed(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(table, item)
}

// Item returns a copy of the stored item with the given key, or nil.
func (f *Fake) Item(table string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyItem(f.tables[table][f.keyOf(table, key)])
}

// Items returns copies of every item in table, ordered by key.
func (f *Fake) Items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.tables[table]
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		items = append(items, copyItem(rows[k]))
	}
	return items
}

// Len returns the number of items in table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

// TransactCalls returns the number of TransactWriteItems calls that reached
// evaluation, successful or not.
func (f *Fake) TransactCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactCalls
}

// TransactItems returns the total number of operations in successfully
// applied transactions.
func (f *Fake) TransactItems() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactItems
}

// GetItem implements store.API.
func (f *Fake) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.BeforeGetItem != nil {
		if err := f.BeforeGetItem(in); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	table := aws.ToString(in.TableName)
	item := f.tables[table][f.keyOf(table, in.Key)]
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

// Query implements store.API. Only key conditions of the form
// "<attr> = <placeholder>" on the partition key are supported.
func (f *Fake) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.BeforeQuery != nil {
		if err := f.BeforeQuery(in); err != nil {
			return nil, err
		}
	}

	attr, placeholder, ok := strings.Cut(aws.ToString(in.KeyConditionExpression), "=")
	if !ok {
		return nil, fmt.Errorf("ddbtest: unsupported key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	attr = resolveName(strings.TrimSpace(attr), in.ExpressionAttributeNames)
	want, ok := in.ExpressionAttributeValues[strings.TrimSpace(placeholder)]
	if !ok {
		return nil, fmt.Errorf("ddbtest: missing value for %s", strings.TrimSpace(placeholder))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	table := aws.ToString(in.TableName)
	rows := f.tables[table]
	keys := make([]string, 0, len(rows))
	for k, item := range rows {
		if equal(item[attr], want) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := f.keyOf(table, in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := len(keys)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &dynamodb.QueryOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, copyItem(rows[k]))
	}
	out.Count = int32(len(out.Items))
	if end < len(keys) {
		out.LastEvaluatedKey = f.keyAttrs(table, rows[keys[end-1]])
	}
	return out, nil
}

// TransactWriteItems implements store.API. Conditions are evaluated against
// the state before the transaction; if any fails nothing is applied.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.BeforeTransactWrite != nil {
		if err := f.BeforeTransactWrite(in); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++

	if n := len(in.TransactItems); n == 0 || n > maxTransactItems {
		return nil, fmt.Errorf("ddbtest: ValidationException: transaction holds %d items", n)
	}

	seen := make(map[string]bool, len(in.TransactItems))
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false

	for i, ti := range in.TransactItems {
		table, key, cond, names, values, err := f.describe(ti)
		if err != nil {
			return nil, err
		}
		id := table + "/" + key
		if seen[id] {
			return nil, errors.New("ddbtest: ValidationException: transaction request cannot include multiple operations on one item")
		}
		seen[id] = true

		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if cond == "" {
			continue
		}
		ok, err := evaluate(cond, names, values, f.tables[table][key])
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
			failed = true
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.put(aws.ToString(ti.Put.TableName), ti.Put.Item)
		case ti.Delete != nil:
			table := aws.ToString(ti.Delete.TableName)
			delete(f.tables[table], f.keyOf(table, ti.Delete.Key))
		}
	}
	f.transactItems += len(in.TransactItems)

	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *Fake) describe(ti types.TransactWriteItem) (table, key, cond string, names map[string]string, values map[string]types.AttributeValue, err error) {
	switch {
	case ti.Put != nil:
		table = aws.ToString(ti.Put.TableName)
		key = f.keyOf(table, ti.Put.Item)
		return table, key, aws.ToString(ti.Put.ConditionExpression), ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, nil
	case ti.Delete != nil:
		table = aws.ToString(ti.Delete.TableName)
		key = f.keyOf(table, ti.Delete.Key)
		return table, key, aws.ToString(ti.Delete.ConditionExpression), ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues, nil
	case ti.ConditionCheck != nil:
		table = aws.ToString(ti.ConditionCheck.TableName)
		key = f.keyOf(table, ti.ConditionCheck.Key)
		return table, key, aws.ToString(ti.ConditionCheck.ConditionExpression), ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues, nil
	case ti.Update != nil:
		return "", "", "", nil, nil, errors.New("ddbtest: Update is not supported")
	}
	return "", "", "", nil, nil, errors.New("ddbtest: empty transact item")
}

func (f *Fake) put(table string, item map[string]types.AttributeValue) {
	rows, ok := f.tables[table]
	if !ok {
		rows = make(map[string]map[string]types.AttributeValue)
		f.tables[table] = rows
	}
	rows[f.keyOf(table, item)] = copyItem(item)
}

func (f *Fake) schema(table string) []string {
	if attrs, ok := f.schemas[table]; ok {
		return attrs
	}
	return []string{"id"}
}

// keyOf renders the key attributes of item as a sortable string.
func (f *Fake) keyOf(table string, item map[string]types.AttributeValue) string {
	parts := make([]string, 0, 2)
	for _, attr := range f.schema(table) {
		parts = append(parts, render(item[attr]))
	}
	return strings.Join(parts, "\x00")
}

func (f *Fake) keyAttrs(table string, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	key := make(map[string]types.AttributeValue)
	for _, attr := range f.schema(table) {
		key[attr] = item[attr]
	}
	return key
}

// evaluate supports conjunctions of attribute_exists, attribute_not_exists
// and equality comparisons.
func evaluate(cond string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(cond, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			if _, ok := item[attr]; !ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
			if _, ok := item[attr]; ok {
				return false, nil
			}
		case strings.Contains(clause, " = "):
			lhs, rhs, _ := strings.Cut(clause, " = ")
			want, ok := values[strings.TrimSpace(rhs)]
			if !ok {
				return false, fmt.Errorf("ddbtest: missing value for %s", rhs)
			}
			if !equal(item[resolveName(strings.TrimSpace(lhs), names)], want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("ddbtest: unsupported condition %q", clause)
		}
	}
	return true, nil
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return resolved
		}
	}
	return name
}

func equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func render(v types.AttributeValue) string {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value
	case *types.AttributeValueMemberN:
		return av.Value
	case *types.AttributeValueMemberB:
		return fmt.Sprintf("%x", av.Value)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

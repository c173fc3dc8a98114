package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsExpired checks if an item has an expired TTL. DynamoDB removes expired
// items lazily, so they are treated as gone as soon as the TTL passes.
func IsExpired(item map[string]types.AttributeValue) bool {
	ttl, ok := numberAttr(item, "ttl")
	if !ok {
		return false // No TTL = kept forever
	}
	return ttl <= time.Now().Unix()
}

// ParentExistsCondition returns the condition expression for parent validation.
// Ensures parent exists AND is not soft-deleted.
func ParentExistsCondition() string {
	return "attribute_exists(id) AND attribute_not_exists(#deleted_at)"
}

// ParentExistsNames returns expression attribute names for ParentExistsCondition.
func ParentExistsNames() map[string]string {
	return map[string]string{"#deleted_at": "deleted_at"}
}

func numberAttr(item map[string]types.AttributeValue, key string) (int64, bool) {
	attr, exists := item[key]
	if !exists {
		return 0, false
	}
	num, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(num.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}


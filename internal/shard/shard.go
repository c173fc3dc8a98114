// Package shard provides shard key generation for the relationship table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest supported shard count. Shard numbers are rendered
// as two hex digits.
const MaxShards = 256

// RelationshipPK computes the sharded partition key for a relationship record.
// With numShards=1, all records go to shard "00".
// With numShards>1, records are distributed across shards based on childRef hash.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	return PK(parentRef, Of(childRef, numShards))
}

// Of returns the shard number holding childRef.
func Of(childRef string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return int(h.Sum32() % uint32(numShards))
}

// PK returns the partition key of one shard of parentRef's children.
func PK(parentRef string, shardNum int) string {
	return fmt.Sprintf("%s#%02x", parentRef, shardNum)
}

// All returns every partition key holding parentRef's children, in shard order.
func All(parentRef string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = PK(parentRef, i)
	}
	return pks
}

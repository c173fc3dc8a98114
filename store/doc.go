// Package store provides a DynamoDB data access layer for entity trees.
//
// Entities live in their own tables. Every parent-child link is also written to
// a shared relationship table keyed by the parent reference, so the children of
// any entity can be listed without knowing their types in advance. A
// [Registry] describes which parent types own which child tables.
//
// Entities implement [Entity]; entities with a parent also implement
// [ParentChecker] so that writes can verify the parent in the same
// transaction.
//
// # Transactions
//
// [Store.RunInTx] hands a [Tx] to a callback. Reads go to DynamoDB with
// strong consistency and see the writes already buffered in the Tx. Writes are
// buffered until the callback returns nil and are then committed with a single
// TransactWriteItems call. Returning an error from the callback discards
// every buffered write:
//
//	err := s.RunInTx(ctx, func(tx *store.Tx) error {
//	    if err := tx.Create(ctx, page, pageItem); err != nil {
//	        return err
//	    }
//	    return tx.Create(ctx, content, contentItem)
//	})
//
// Creates carry an attribute_not_exists condition, replaces a version
// condition, and children a parent existence check. A Tx accepts at most
// [Config].MaxTransactItems item operations; going past the limit fails the
// call that would exceed it with [ErrTransactionTooLarge].
//
// Runs too large for one transaction use [Store.RunInBatches], which commits
// the buffer whenever it fills up. Each batch is atomic but the run is not, so
// callers stage their writes where readers cannot see them, publish last, and
// hand the returned [Written] list to [Store.Discard] when a later batch
// fails.
//
// # Sharding
//
// Wide parents spread their relationship records over Config.NumShards
// partitions. Listing children queries every shard.
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
// Every error matches one category with errors.Is:
//
//   - [ErrNotFound] - entity doesn't exist or its TTL expired
//   - [ErrInvalidRequest] - the request can never succeed as stated
//   - [ErrStorage] - DynamoDB reported a failure
//   - [ErrCorruption] - stored data violates a structural invariant
//
// Causes such as [ErrParentNotFound], [ErrAlreadyExists] and
// [ErrConcurrentModification] are wrapped together with their category.
package store

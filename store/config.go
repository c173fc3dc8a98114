package store

// Config holds configuration for the Store.
type Config struct {
	// RelationshipTable is the name of the relationship table.
	// Default: "grove_relationships"
	RelationshipTable string

	// NumShards is the number of shards for the relationship table.
	// Higher values spread one parent's children over more partitions.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// MaxTransactItems caps the number of item operations buffered by one Tx.
	// DynamoDB rejects TransactWriteItems calls with more than 100 operations.
	// Default: 100
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: "grove_relationships",
		NumShards:         1,
		MaxTransactItems:  100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = "grove_relationships"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
}

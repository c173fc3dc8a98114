// Package env loads grove settings from GROVE_* environment variables for the
// binaries.
package env

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jacentio/grove/cascade"
	"github.com/jacentio/grove/clone"
	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

// Settings holds everything a grove binary needs to build its components.
type Settings struct {
	Store          store.Config
	TrashRetention time.Duration
	WritingBlock   string // rewrite tag for writing block references
	Endpoint       string // DynamoDB endpoint override, for DynamoDB Local
	Pushgateway    string // Prometheus Pushgateway URL; empty disables metrics
	LogLevel       slog.Level
}

// Load reads settings from the environment. Unset variables keep their
// defaults; malformed values are an error.
//
//	GROVE_RELATIONSHIP_TABLE  relationship table name
//	GROVE_NUM_SHARDS          relationship shards per parent
//	GROVE_MAX_TRANSACT_ITEMS  operations per transaction
//	GROVE_TRASH_RETENTION     soft-delete retention, e.g. 720h
//	GROVE_WRITING_BLOCK_TAG   tag of writing block references in page bodies
//	GROVE_DYNAMODB_ENDPOINT   DynamoDB endpoint override
//	GROVE_PUSHGATEWAY_URL     Pushgateway receiving the metrics of each run
//	GROVE_LOG_LEVEL           debug, info, warn or error
func Load() (Settings, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Settings, error) {
	s := Settings{
		Store:        store.DefaultConfig(),
		WritingBlock: clone.DefaultConfig().WritingBlockTag,
		LogLevel:     slog.LevelInfo,
	}

	if v := getenv("GROVE_RELATIONSHIP_TABLE"); v != "" {
		s.Store.RelationshipTable = v
	}
	if v := getenv("GROVE_NUM_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("GROVE_NUM_SHARDS: %w", err)
		}
		s.Store.NumShards = n
	}
	if v := getenv("GROVE_MAX_TRANSACT_ITEMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("GROVE_MAX_TRANSACT_ITEMS: %w", err)
		}
		s.Store.MaxTransactItems = n
	}
	if v := getenv("GROVE_TRASH_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("GROVE_TRASH_RETENTION: %w", err)
		}
		s.TrashRetention = d
	}
	if v := getenv("GROVE_WRITING_BLOCK_TAG"); v != "" {
		s.WritingBlock = v
	}
	s.Endpoint = getenv("GROVE_DYNAMODB_ENDPOINT")
	s.Pushgateway = getenv("GROVE_PUSHGATEWAY_URL")
	if v := getenv("GROVE_LOG_LEVEL"); v != "" {
		if err := s.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return s, fmt.Errorf("GROVE_LOG_LEVEL: %w", err)
		}
	}
	return s, nil
}

// Logger returns a JSON logger at the configured level.
func (s Settings) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: s.LogLevel}))
}

// Open connects to DynamoDB with the default AWS credential chain and
// returns a store with the content registry.
func (s Settings) Open(ctx context.Context) (*store.Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
	})
	return store.NewWithRegistry(client, s.Store, content.NewRegistry()), nil
}

// Cascade returns the executor configuration.
func (s Settings) Cascade(logger *slog.Logger) cascade.Config {
	return cascade.Config{TrashRetention: s.TrashRetention, Logger: logger}
}

// Clone returns the clone engine configuration.
func (s Settings) Clone(logger *slog.Logger) clone.Config {
	c := clone.DefaultConfig()
	c.WritingBlockTag = s.WritingBlock
	c.Logger = logger
	return c
}

// Metrics returns the registry the components of a run register on, and a
// function pushing it to the Pushgateway as job. The binaries are too short
// lived to be scraped. Without a Pushgateway the registry is nil, so nothing
// is registered, and push does nothing.
func (s Settings) Metrics(job string) (prometheus.Registerer, func(context.Context) error) {
	if s.Pushgateway == "" {
		return nil, func(context.Context) error { return nil }
	}
	reg := prometheus.NewRegistry()
	pusher := push.New(s.Pushgateway, job).Gatherer(reg)
	return reg, func(ctx context.Context) error {
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics to %s: %w", s.Pushgateway, err)
		}
		return nil
	}
}

// Package stream provides DynamoDB Streams handlers that finish the removal
// of expired documents.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacentio/grove/content"
	"github.com/jacentio/grove/store"
)

// ttlPrincipal is the stream identity of deletions made by DynamoDB TTL.
const ttlPrincipal = "dynamodb.amazonaws.com"

// Purger removes what is left of a deleted document. *cascade.Executor
// implements it.
type Purger interface {
	Purge(ctx context.Context, documentID, parentRef string) (int, error)
}

// Handler processes DynamoDB stream events of the documents table.
type Handler struct {
	purger Purger
	logger *slog.Logger

	// records counts stream records by outcome.
	// Labels: outcome (purged, skipped, failed)
	records *prometheus.CounterVec
}

// NewHandler creates a new stream handler. A nil registerer leaves the
// handler metrics unregistered.
func NewHandler(p Purger, logger *slog.Logger, reg prometheus.Registerer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		purger: p,
		logger: logger,
		records: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "stream",
			Name:      "records_total",
			Help:      "Documents stream records by outcome",
		}, []string{"outcome"}),
	}
}

// HandlePurge purges the pages, page contents and writing blocks of documents
// removed by TTL expiry, along with their relationship records. Other records
// are ignored. This function is designed to be used as an AWS Lambda handler;
// returning an error makes Lambda retry the batch.
func (h *Handler) HandlePurge(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.records.WithLabelValues("failed").Inc()
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if !expired(record) {
		h.records.WithLabelValues("skipped").Inc()
		return nil
	}

	old := record.Change.OldImage
	entityType, id := store.SplitRef(getStringAttr(old, "entity_ref"))
	if entityType != content.TypeDocument || id == "" {
		h.records.WithLabelValues("skipped").Inc()
		return nil
	}
	parentRef := getStringAttr(old, "parent_ref")

	h.logger.Info("purging expired document",
		"documentID", id,
		"parentRef", parentRef,
		"deletedAt", getNumberAttr(old, "deleted_at"),
		"ttl", getNumberAttr(old, "ttl"),
	)

	n, err := h.purger.Purge(ctx, id, parentRef)
	if err != nil {
		return fmt.Errorf("purge document %s: %w", id, err)
	}
	h.records.WithLabelValues("purged").Inc()

	h.logger.Info("purge completed",
		"documentID", id,
		"ownedRemoved", n,
	)
	return nil
}

// expired reports whether record is a removal made by DynamoDB TTL.
func expired(record events.DynamoDBEventRecord) bool {
	if record.EventName != "REMOVE" {
		return false
	}
	identity := record.UserIdentity
	return identity != nil && identity.Type == "Service" && identity.PrincipalID == ttlPrincipal
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// Command grove-purge is the Lambda function attached to the documents table
// stream. It removes the content of documents expired by TTL.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/grove/cascade"
	"github.com/jacentio/grove/internal/env"
	"github.com/jacentio/grove/stream"
)

func main() {
	settings, err := env.Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	logger := settings.Logger()

	s, err := settings.Open(context.Background())
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	reg, push := settings.Metrics("grove-purge")
	config := settings.Cascade(logger)
	config.Registerer = reg
	h := stream.NewHandler(cascade.NewExecutor(s, config), logger, reg)

	lambda.Start(func(ctx context.Context, event events.DynamoDBEvent) error {
		err := h.HandlePurge(ctx, event)
		if perr := push(ctx); perr != nil {
			logger.Warn("push metrics failed", "error", perr)
		}
		return err
	})
}

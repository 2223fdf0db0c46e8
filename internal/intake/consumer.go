// Package intake feeds submissions from the message queue into the processor.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Submitter accepts a job submission
type Submitter interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (string, error)
}

// Consumer turns queue deliveries into submissions. Messages carry the same
// JSON body as the webhook.
type Consumer struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewConsumer creates a new Consumer
func NewConsumer(submitter Submitter, logger *slog.Logger) *Consumer {
	return &Consumer{
		submitter: submitter,
		logger:    logger,
	}
}

// Run dispatches deliveries until ctx is canceled or the channel closes
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	c.logger.Info("Queue intake started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Queue intake stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	logger := c.logger.With(slog.Uint64("delivery_tag", delivery.DeliveryTag))

	// a delivery that raced with shutdown goes back to the queue
	if ctx.Err() != nil {
		c.nack(logger, delivery, true)
		return
	}

	var msg struct {
		FileURL  string         `json:"file_url"`
		Filename string         `json:"filename"`
		PaperID  string         `json:"paper_id"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Error("Failed to parse message JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(logger, delivery, false)
		return
	}

	id, err := c.submitter.Submit(ctx, domain.SubmitRequest{
		FileURL:     msg.FileURL,
		Filename:    msg.Filename,
		ExternalRef: msg.PaperID,
		Metadata:    msg.Metadata,
	})
	if err != nil {
		requeue := errors.Is(err, domain.ErrShuttingDown)
		logger.Warn("Submission from queue rejected",
			slog.String("filename", msg.Filename),
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
		c.nack(logger, delivery, requeue)
		return
	}

	if err := delivery.Ack(false); err != nil {
		logger.Error("Failed to ACK message", slog.String("error", err.Error()))
		return
	}

	logger.Info("Queued job from message",
		slog.String("job_id", id),
		slog.String("paper_id", msg.PaperID),
	)
}

func (c *Consumer) nack(logger *slog.Logger, delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		logger.Error("Failed to NACK message",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
	}
}

package nop

import (
	"context"

	"github.com/papercomputeco/memd/pkg/queue"
)

// Publisher is a no-op result publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op result publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishResult validates input and otherwise does nothing.
func (p *Publisher) PublishResult(_ context.Context, result *queue.ResultMessage) error {
	if result == nil {
		return queue.ErrNilResult
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

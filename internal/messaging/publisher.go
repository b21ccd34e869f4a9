package messaging

import (
	"context"

	"github.com/veridoc/registry-indexer/internal/domain"
)

// Publisher defines the interface for publishing committed registry events
// to the message broker
type Publisher interface {
	// PublishEvent publishes a committed registry event
	PublishEvent(ctx context.Context, event *domain.RegistryEvent) error
	// Close closes the connection
	Close()
}

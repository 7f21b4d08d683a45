package events

import (
	"fmt"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// Publisher is an EventPublisher that may hold a broker connection.
type Publisher interface {
	dvs.EventPublisher
	Close() error
}

type nopPublisher struct {
	dvs.NopPublisher
}

func (nopPublisher) Close() error { return nil }

// NewPublisherFromConfig creates a Publisher based on the events config type.
func NewPublisherFromConfig(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Type {
	case "", "none":
		return nopPublisher{}, nil
	case "amqp":
		if cfg.URL == "" {
			return nil, fmt.Errorf("url required for amqp events")
		}
		return DialAMQP(cfg.URL, cfg.Exchange)
	default:
		return nil, fmt.Errorf("unknown events type: %s", cfg.Type)
	}
}

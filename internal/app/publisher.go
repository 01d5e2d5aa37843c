package app

import (
	"context"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

// Publisher is the outbound event contract the pipeline stages depend on.
// Tests substitute recording stubs; production wires BusPublisher.
type Publisher interface {
	// PublishTrade sends the full trade record on the named channel with the
	// trade's internal id as the transport message identifier.
	PublishTrade(ctx context.Context, channel string, trade *domain.Trade) error
}

// BusPublisher adapts the RabbitMQ producer to the Publisher contract.
type BusPublisher struct {
	producer *rabbitmq.Producer
}

func NewBusPublisher(producer *rabbitmq.Producer) *BusPublisher {
	return &BusPublisher{producer: producer}
}

func (b *BusPublisher) PublishTrade(ctx context.Context, channel string, trade *domain.Trade) error {
	return b.producer.Publish(ctx, domain.Exchange, channel, trade.InternalID.String(), trade)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
)

// Sequencer hands out a monotonically increasing number per partition.
type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

type Publisher struct {
	ch                 channel
	seq                Sequencer
	producerIdentifier string
	now                func() time.Time
}

type PublisherOptions struct {
	Producer string
	// Sequencer is optional; without it events carry no sequence number.
	Sequencer Sequencer
}

func NewPublisher(conn *amqp.Connection, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, opts)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch channel, opts PublisherOptions) (*Publisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = inventoryServiceName
	}

	return &Publisher{
		ch:                 ch,
		seq:                opts.Sequencer,
		producerIdentifier: producer,
		now:                time.Now,
	}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishProductCreated(ctx context.Context, product inventory.Product) error {
	occurredAt := p.now().UTC()

	env, err := p.envelope(ctx, EventTypeProductCreated, productCreatedSchema, product.Handle, occurredAt)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ProductCreatedEvent{
		EventEnvelope: env,
		Payload: ProductCreatedPayload{
			Handle:    product.Handle,
			Weight:    product.Weight,
			Price:     product.Price,
			CreatedAt: occurredAt,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal ProductCreated envelope: %w", err)
	}

	return p.publishJSON(ctx, ProductCreatedRoutingKey, body)
}

func (p *Publisher) PublishStockAdded(ctx context.Context, handle string, rec inventory.StockRecord) error {
	occurredAt := p.now().UTC()

	env, err := p.envelope(ctx, EventTypeStockAdded, stockAddedSchema, handle, occurredAt)
	if err != nil {
		return err
	}

	body, err := json.Marshal(StockAddedEvent{
		EventEnvelope: env,
		Payload: StockAddedPayload{
			Handle:   handle,
			RecordID: rec.ID,
			Location: rec.Location,
			Qty:      rec.Qty,
			AddedAt:  occurredAt,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal StockAdded envelope: %w", err)
	}

	return p.publishJSON(ctx, StockAddedRoutingKey, body)
}

// envelope builds the metadata for an event partitioned by product handle.
// The sequence is reserved only once the envelope is known to be valid.
func (p *Publisher) envelope(ctx context.Context, name, schema, partitionKey string, occurredAt time.Time) (EventEnvelope, error) {
	env := EventEnvelope{
		EventName:    name,
		EventVersion: eventVersion,
		EventID:      uuid.NewString(),
		Producer:     p.producerIdentifier,
		PartitionKey: partitionKey,
		OccurredAt:   occurredAt,
		Schema:       schema,
	}
	if err := env.Validate(name, eventVersion); err != nil {
		return EventEnvelope{}, fmt.Errorf("invalid %s envelope: %w", name, err)
	}

	if p.seq != nil {
		next, err := p.seq.NextSequence(ctx, partitionKey)
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("reserve sequence: %w", err)
		}
		env.Sequence = next
	}
	return env, nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

package events

import (
	"errors"
	"fmt"
	"time"
)

const eventVersion = 1

// EventEnvelope carries the metadata shared by every v1 inventory event.
type EventEnvelope struct {
	EventName    string    `json:"eventName"`
	EventVersion int       `json:"eventVersion"`
	EventID      string    `json:"eventId"`
	Producer     string    `json:"producer"`
	PartitionKey string    `json:"partitionKey"`
	Sequence     int64     `json:"sequence,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
	Schema       string    `json:"schema"`
}

// Event is an envelope with its typed payload inlined next to the metadata.
type Event[T any] struct {
	EventEnvelope
	Payload T `json:"payload"`
}

func (e EventEnvelope) Validate(expectedName string, expectedVersion int) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName %q", e.EventName)
	}
	if e.EventVersion != expectedVersion {
		return fmt.Errorf("unexpected eventVersion %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return errors.New("missing partitionKey")
	}
	if e.EventID == "" {
		return errors.New("missing eventId")
	}
	return nil
}

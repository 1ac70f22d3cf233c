package events

import "time"

const (
	EventTypeProductCreated = "ProductCreated"
	productCreatedSchema    = "inventory.product.created.v1"
)

type ProductCreatedPayload struct {
	Handle    string    `json:"handle"`
	Weight    float64   `json:"weight"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProductCreatedEvent = Event[ProductCreatedPayload]

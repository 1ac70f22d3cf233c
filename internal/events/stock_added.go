package events

import "time"

const (
	EventTypeStockAdded = "StockAdded"
	stockAddedSchema    = "inventory.stock.added.v1"
)

type StockAddedPayload struct {
	Handle   string    `json:"handle"`
	RecordID int64     `json:"recordId"`
	Location string    `json:"location"`
	Qty      int64     `json:"qty"`
	AddedAt  time.Time `json:"addedAt"`
}

type StockAddedEvent = Event[StockAddedPayload]

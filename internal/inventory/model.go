package inventory

// Product is a catalogue entry identified by its unique handle.
type Product struct {
	ID     int64
	Handle string
	Weight float64
	Price  float64
}

// NewProduct carries the validated fields of a product about to be created.
type NewProduct struct {
	Handle string
	Weight float64
	Price  float64
}

// StockEntry is a quantity held at one location, before it is stored.
type StockEntry struct {
	Location string
	Qty      int64
}

// StockRecord is a persisted storage row.
type StockRecord struct {
	ID        int64
	ProductID int64
	Location  string
	Qty       int64
}

// ProductInventory is a product together with every stock record it owns,
// ordered by insertion.
type ProductInventory struct {
	Product
	Stock []StockRecord
}

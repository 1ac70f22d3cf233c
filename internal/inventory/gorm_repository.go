package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ProductModel is the gorm mapping of the product table.
type ProductModel struct {
	ID     int64   `gorm:"primaryKey"`
	Handle string  `gorm:"size:64;not null;uniqueIndex"`
	Weight float64 `gorm:"not null"`
	Price  float64 `gorm:"not null"`

	// Only declared so AutoMigrate emits the storage foreign key; never preloaded.
	Stock []StorageModel `gorm:"foreignKey:ProductID;constraint:OnDelete:SET NULL"`
}

func (ProductModel) TableName() string { return "product" }

// StorageModel is the gorm mapping of the storage table.
type StorageModel struct {
	ID        int64  `gorm:"primaryKey"`
	ProductID *int64 `gorm:"index"`
	Location  string `gorm:"size:64;not null"`
	Qty       int64  `gorm:"not null"`
}

func (StorageModel) TableName() string { return "storage" }

// GormRepository stores inventory through gorm. It expects a *gorm.DB opened
// with TranslateError so constraint failures surface as gorm sentinel errors.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	row := ProductModel{Handle: p.Handle, Weight: p.Weight, Price: p.Price}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Stock").Create(&row).Error
	})
	if err != nil {
		if isGormIntegrityViolation(err) {
			return Product{}, ErrHandleExists
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return row.toProduct(), nil
}

func (r *GormRepository) GetProduct(ctx context.Context, handle string) (Product, error) {
	var row ProductModel
	if err := r.db.WithContext(ctx).Where("handle = ?", handle).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return row.toProduct(), nil
}

func (r *GormRepository) AddStock(ctx context.Context, handle string, entry StockEntry) (StockRecord, error) {
	var rec StockRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product ProductModel
		if err := tx.Select("id").Where("handle = ?", handle).Take(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("select product: %w", err)
		}

		row := StorageModel{ProductID: &product.ID, Location: entry.Location, Qty: entry.Qty}
		if err := tx.Create(&row).Error; err != nil {
			if isGormIntegrityViolation(err) {
				return fmt.Errorf("%w: %v", ErrIntegrity, err)
			}
			return fmt.Errorf("insert storage: %w", err)
		}
		rec = StockRecord{ID: row.ID, ProductID: product.ID, Location: row.Location, Qty: row.Qty}
		return nil
	})
	if err != nil {
		return StockRecord{}, err
	}
	return rec, nil
}

func (r *GormRepository) ListInventory(ctx context.Context) ([]ProductInventory, error) {
	var out []ProductInventory
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var products []ProductModel
		if err := tx.Order("id").Find(&products).Error; err != nil {
			return fmt.Errorf("select products: %w", err)
		}

		out = make([]ProductInventory, 0, len(products))
		for _, p := range products {
			var rows []StorageModel
			if err := tx.Where("product_id = ?", p.ID).Order("id").Find(&rows).Error; err != nil {
				return fmt.Errorf("select storage: %w", err)
			}
			stock := make([]StockRecord, 0, len(rows))
			for _, s := range rows {
				stock = append(stock, StockRecord{ID: s.ID, ProductID: p.ID, Location: s.Location, Qty: s.Qty})
			}
			out = append(out, ProductInventory{Product: p.toProduct(), Stock: stock})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m ProductModel) toProduct() Product {
	return Product{ID: m.ID, Handle: m.Handle, Weight: m.Weight, Price: m.Price}
}

func isGormIntegrityViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	// untranslated driver error
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrHandleExists    = errors.New("handle already exists")
	// ErrIntegrity covers any other rejected write (unique or foreign key).
	ErrIntegrity = errors.New("integrity violation")
)

// SQLSTATE class 23 is integrity_constraint_violation.
const pgIntegrityClass = "23"

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	CreateProduct(ctx context.Context, p NewProduct) (Product, error)
	GetProduct(ctx context.Context, handle string) (Product, error)
	AddStock(ctx context.Context, handle string, entry StockEntry) (StockRecord, error)
	ListInventory(ctx context.Context) ([]ProductInventory, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := Product{Handle: p.Handle, Weight: p.Weight, Price: p.Price}
	err = tx.QueryRow(ctx, `
		INSERT INTO product (handle, weight, price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, p.Handle, p.Weight, p.Price).Scan(&created.ID)
	if err != nil {
		// handle is the only constraint a validated product can violate
		if isIntegrityViolation(err) {
			return Product{}, ErrHandleExists
		}
		return Product{}, fmt.Errorf("insert product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("commit product: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetProduct(ctx context.Context, handle string) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, handle, weight, price FROM product WHERE handle=$1
	`, handle).Scan(&p.ID, &p.Handle, &p.Weight, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// AddStock resolves the handle and inserts the storage row in one transaction.
// The product row is share-locked so it cannot disappear before the insert.
func (r *PostgresRepository) AddStock(ctx context.Context, handle string, entry StockEntry) (StockRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return StockRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := StockRecord{Location: entry.Location, Qty: entry.Qty}
	err = tx.QueryRow(ctx, `
		SELECT id FROM product WHERE handle=$1 FOR SHARE
	`, handle).Scan(&rec.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, ErrProductNotFound
		}
		return StockRecord{}, fmt.Errorf("lock product: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO storage (product_id, location, qty)
		VALUES ($1, $2, $3)
		RETURNING id
	`, rec.ProductID, entry.Location, entry.Qty).Scan(&rec.ID)
	if err != nil {
		if isIntegrityViolation(err) {
			return StockRecord{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		return StockRecord{}, fmt.Errorf("insert storage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return StockRecord{}, fmt.Errorf("commit storage: %w", err)
	}
	return rec, nil
}

// ListInventory reads every product and then, per product, its storage rows.
// Both reads share one read-only snapshot.
func (r *PostgresRepository) ListInventory(ctx context.Context) ([]ProductInventory, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	products, err := selectProducts(ctx, tx)
	if err != nil {
		return nil, err
	}

	out := make([]ProductInventory, 0, len(products))
	for _, p := range products {
		stock, err := selectStock(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductInventory{Product: p, Stock: stock})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}
	return out, nil
}

func selectProducts(ctx context.Context, tx pgx.Tx) ([]Product, error) {
	rows, err := tx.Query(ctx, `SELECT id, handle, weight, price FROM product ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Handle, &p.Weight, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func selectStock(ctx context.Context, tx pgx.Tx, productID int64) ([]StockRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, location, qty FROM storage WHERE product_id=$1 ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("select storage: %w", err)
	}
	defer rows.Close()

	stock := []StockRecord{}
	for rows.Next() {
		rec := StockRecord{ProductID: productID}
		if err := rows.Scan(&rec.ID, &rec.Location, &rec.Qty); err != nil {
			return nil, fmt.Errorf("scan storage: %w", err)
		}
		stock = append(stock, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate storage: %w", err)
	}
	return stock, nil
}

func isIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, pgIntegrityClass)
}

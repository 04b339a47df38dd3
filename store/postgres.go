package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordercore/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
    stock INTEGER NOT NULL CHECK (stock >= 0),
    category TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    items JSONB NOT NULL,
    subtotal NUMERIC(12,2) NOT NULL,
    shipping_cost NUMERIC(12,2) NOT NULL,
    tax NUMERIC(12,2) NOT NULL,
    total NUMERIC(12,2) NOT NULL,
    shipping_address JSONB NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_owner_created ON orders (owner_id, created_at DESC, id DESC);
`

// PostgresStore implements Backend on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore connects, pings and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgBump sets updated_at from param, kept strictly ahead of the previous value
// at the column's microsecond precision.
func pgBump(param string) string {
	return `GREATEST(` + param + `::timestamptz, updated_at + interval '1 microsecond')`
}

const pgProductColumns = `id, name, price::text, stock, category, is_active, created_at, updated_at`

func scanPgProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.Category, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
	}
	p.Price = d
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) Create(ctx context.Context, product domain.Product) error {
	if err := validateNewProduct(product); err != nil {
		return err
	}
	product = stamp(product)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, stock, category, is_active, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
	`, product.ID, product.Name, product.Price.StringFixed(2), product.Stock, product.Category,
		product.IsActive, product.CreatedAt, product.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.NewDuplicateProductError(product.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanPgProduct(s.pool.QueryRow(ctx, `SELECT `+pgProductColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, err
}

func (s *PostgresStore) GetActiveProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanPgProduct(s.pool.QueryRow(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE id = $1 AND is_active`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, err
}

func (s *PostgresStore) Update(ctx context.Context, id string, product domain.Product) error {
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $1, price = $2::numeric, category = $3, is_active = $4, updated_at = `+pgBump("$5")+`
		WHERE id = $6
	`, product.Name, product.Price.StringFixed(2), product.Category, product.IsActive, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

func (s *PostgresStore) SetStock(ctx context.Context, id string, stock int, readAt time.Time) error {
	if err := validateStock(stock); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET stock = $1, updated_at = `+pgBump("$2")+`
		WHERE id = $3 AND updated_at = $4
	`, stock, now(), id, readAt)
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.NewStaleProductError(id)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgProductColumns+` FROM products`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var all []domain.Product
	for rows.Next() {
		p, err := scanPgProduct(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return filterProducts(all, filter), nil
}

func (s *PostgresStore) BulkImport(ctx context.Context, products []domain.Product) error {
	return importProducts(ctx, products, s.Create)
}

func (s *PostgresStore) ReserveStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = `+pgBump("$2")+`
		WHERE id = $3 AND is_active AND stock >= $1
	`, quantity, now(), id)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		stock  int
		active bool
	)
	err = s.pool.QueryRow(ctx, `SELECT stock, is_active FROM products WHERE id = $1`, id).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}
	return domain.NewInsufficientStockError(id, quantity, stock)
}

func (s *PostgresStore) ReleaseStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE products SET stock = stock + $1, updated_at = `+pgBump("$2")+` WHERE id = $3`,
		quantity, now(), id)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

const pgOrderColumns = `id, owner_id, items::text, subtotal::text, shipping_cost::text, tax::text, total::text,
	shipping_address::text, status, created_at, updated_at`

func scanPgOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                              domain.Order
		r                              orderRow
		subtotal, shipping, tax, total string
		status                         string
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &r.items, &subtotal, &shipping, &tax, &total, &r.address,
		&status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := decodeOrderRow(&o, r, subtotal, shipping, tax, total, status); err != nil {
		return domain.Order{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order domain.Order) error {
	r, err := encodeOrderRow(order)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, owner_id, items, subtotal, shipping_cost, tax, total, shipping_address, status, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::jsonb, $9, $10, $11)
	`, order.ID, order.OwnerID, r.items, order.Subtotal.StringFixed(2), order.ShippingCost.StringFixed(2),
		order.Tax.StringFixed(2), order.Total.StringFixed(2), r.address, string(order.Status),
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanPgOrder(s.pool.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.NewOrderNotFoundError(id)
	}
	return o, err
}

func (s *PostgresStore) ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]domain.Order, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if offset < 0 || offset >= total || limit < 1 {
		return []domain.Order{}, total, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgOrderColumns+` FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewOrderNotFoundError(id)
	}
	return nil
}

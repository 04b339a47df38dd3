package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ordercore/domain"

	"github.com/shopspring/decimal"
)

// SQLiteStore implements Backend on SQLite. Reservations are a single
// conditional UPDATE, so the stock check and decrement are one statement.
type SQLiteStore struct {
	db *sql.DB
}

var _ Backend = (*SQLiteStore)(nil)

// OpenSQLite opens a SQLite database with appropriate settings. It does not
// migrate; NewSQLiteStore and ApplyMigrations do.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(SQLiteDriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens dbPath and applies pending migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, price, stock, category, is_active, created_at, updated_at`

// sqliteBump sets updated_at to the bound time, kept strictly ahead of the
// previous value.
const sqliteBump = `MAX(?, updated_at + 1000)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (domain.Product, error) {
	var (
		p                domain.Product
		price            string
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.Category, &p.IsActive, &created, &updated); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
	}
	p.Price = d
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

func (s *SQLiteStore) Create(ctx context.Context, product domain.Product) error {
	if err := validateNewProduct(product); err != nil {
		return err
	}
	product = stamp(product)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, product.ID, product.Name, product.Price.StringFixed(2), product.Stock, product.Category,
		product.IsActive, product.CreatedAt.UnixNano(), product.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDuplicateProductError(product.ID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanSQLiteProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, err
}

func (s *SQLiteStore) GetActiveProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanSQLiteProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND is_active = 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, err
}

func (s *SQLiteStore) Update(ctx context.Context, id string, product domain.Product) error {
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, price = ?, category = ?, is_active = ?, updated_at = `+sqliteBump+`
		WHERE id = ?
	`, product.Name, product.Price.StringFixed(2), product.Category, product.IsActive,
		now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

func (s *SQLiteStore) SetStock(ctx context.Context, id string, stock int, readAt time.Time) error {
	if err := validateStock(stock); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = ?, updated_at = `+sqliteBump+`
		WHERE id = ? AND updated_at = ?
	`, stock, now().UnixNano(), id, readAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.NewStaleProductError(id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if filter.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, filter.Category)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var all []domain.Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// prices are stored as text, so range filters and sorting happen here
	return filterProducts(all, filter), nil
}

func (s *SQLiteStore) BulkImport(ctx context.Context, products []domain.Product) error {
	return importProducts(ctx, products, s.Create)
}

func (s *SQLiteStore) ReserveStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = stock - ?, updated_at = `+sqliteBump+`
		WHERE id = ? AND is_active = 1 AND stock >= ?
	`, quantity, now().UnixNano(), id, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// nothing changed; work out why
	var (
		stock  int
		active bool
	)
	err = s.db.QueryRowContext(ctx, `SELECT stock, is_active FROM products WHERE id = ?`, id).Scan(&stock, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}
	return domain.NewInsufficientStockError(id, quantity, stock)
}

func (s *SQLiteStore) ReleaseStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET stock = stock + ?, updated_at = `+sqliteBump+` WHERE id = ?`,
		quantity, now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewProductNotFoundError(id)
	}
	return nil
}

// orderRow is the column form of an order shared by the SQL backends.
type orderRow struct {
	items   string
	address string
}

func encodeOrderRow(o domain.Order) (orderRow, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode items: %w", err)
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode shipping address: %w", err)
	}
	return orderRow{items: string(items), address: string(addr)}, nil
}

func decodeOrderRow(o *domain.Order, r orderRow, subtotal, shipping, tax, total, status string) error {
	if err := json.Unmarshal([]byte(r.items), &o.Items); err != nil {
		return fmt.Errorf("order %s: decode items: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(r.address), &o.ShippingAddress); err != nil {
		return fmt.Errorf("order %s: decode shipping address: %w", o.ID, err)
	}
	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Subtotal, subtotal},
		{&o.ShippingCost, shipping},
		{&o.Tax, tax},
		{&o.Total, total},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(a.src)
		if err != nil {
			return fmt.Errorf("order %s: bad amount %q: %w", o.ID, a.src, err)
		}
		*a.dst = d
	}
	o.Status = domain.OrderStatus(status)
	return nil
}

const orderColumns = `id, owner_id, items, subtotal, shipping_cost, tax, total, shipping_address, status, created_at, updated_at`

func scanSQLiteOrder(row rowScanner) (domain.Order, error) {
	var (
		o                              domain.Order
		r                              orderRow
		subtotal, shipping, tax, total string
		status                         string
		created, updated               int64
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &r.items, &subtotal, &shipping, &tax, &total, &r.address,
		&status, &created, &updated); err != nil {
		return domain.Order{}, err
	}
	if err := decodeOrderRow(&o, r, subtotal, shipping, tax, total, status); err != nil {
		return domain.Order{}, err
	}
	o.CreatedAt = time.Unix(0, created).UTC()
	o.UpdatedAt = time.Unix(0, updated).UTC()
	return o, nil
}

func (s *SQLiteStore) CreateOrder(ctx context.Context, order domain.Order) error {
	r, err := encodeOrderRow(order)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.OwnerID, r.items, order.Subtotal.StringFixed(2), order.ShippingCost.StringFixed(2),
		order.Tax.StringFixed(2), order.Total.StringFixed(2), r.address, string(order.Status),
		order.CreatedAt.UnixNano(), order.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanSQLiteOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NewOrderNotFoundError(id)
	}
	return o, err
}

func (s *SQLiteStore) ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]domain.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE owner_id = ?`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if offset < 0 || offset >= total || limit < 1 {
		return []domain.Order{}, total, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanSQLiteOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), updatedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewOrderNotFoundError(id)
	}
	return nil
}

// Package db provides CRUD store operations for the CajaPOS data models.
package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/davidorozco-dev/cajapos/internal/errors"
	"github.com/davidorozco-dev/cajapos/internal/models"
	"github.com/davidorozco-dev/cajapos/internal/uuid"
)

// ReceiptCounterKey is the reserved settings key holding the next receipt
// sequence number.
const ReceiptCounterKey = "receipt_counter"

// Store provides durable CRUD operations for all entity kinds plus settings
// and receipt numbering. Every write marks the record as pending sync and
// restamps its timestamps; the sync engine is the only caller that clears
// the pending flag.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// wrapDB converts a driver error into an AppError. Constraint violations get
// their own code so the bridge can report them distinctly.
func wrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	code := apperrors.ErrDatabase
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		code = apperrors.ErrConstraint
	}
	return apperrors.Wrap(code, op, err)
}

// =====================================================
// Product Operations
// =====================================================

const productColumns = `id, name, description, sku, barcode, price, cost, stock, min_stock,
	category_id, image_url, active, available_pos, available_digital, need_sync, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.SKU, &p.Barcode, &p.Price, &p.Cost,
		&p.Stock, &p.MinStock, &p.CategoryID, &p.ImageURL, &p.Active,
		&p.AvailablePOS, &p.AvailableDigital, &p.NeedSync, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *Store) queryProducts(query string, args ...interface{}) ([]models.Product, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapDB("query products", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, wrapDB("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("iterate products", err)
	}
	return products, nil
}

// ListProducts returns all active products.
func (s *Store) ListProducts() ([]models.Product, error) {
	return s.queryProducts("SELECT " + productColumns + " FROM products WHERE active = 1")
}

// PendingProducts returns all products awaiting sync.
func (s *Store) PendingProducts() ([]models.Product, error) {
	return s.queryProducts("SELECT " + productColumns + " FROM products WHERE need_sync = 1")
}

// UpsertProduct inserts or fully replaces a product by id. A record without
// an id gets a generated one. The pending flag is set and both timestamps
// are restamped whether or not any field changed.
func (s *Store) UpsertProduct(p models.Product) (models.Product, error) {
	if p.Name == "" {
		return p, apperrors.New(apperrors.ErrValidation, "product name is required")
	}
	if p.Price < 0 {
		return p, apperrors.New(apperrors.ErrValidation, "product price must not be negative")
	}
	if p.ID == "" {
		p.ID = uuid.New()
	}
	now := models.Now()
	p.NeedSync = true
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO products (`+productColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.SKU, p.Barcode, p.Price, p.Cost,
		p.Stock, p.MinStock, p.CategoryID, p.ImageURL, p.Active,
		p.AvailablePOS, p.AvailableDigital, p.NeedSync, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return p, wrapDB("upsert product", err)
	}
	return p, nil
}

// MarkProductSynced clears the pending flag for a product, but only while
// the row still matches the updated_at observed when the pending set was
// read. A row re-upserted mid-pass keeps its flag; a vanished id is a no-op.
func (s *Store) MarkProductSynced(id, seenUpdatedAt string) error {
	_, err := s.db.Exec(
		"UPDATE products SET need_sync = 0 WHERE id = ? AND updated_at = ?",
		id, seenUpdatedAt,
	)
	return wrapDB("mark product synced", err)
}

// =====================================================
// Category Operations
// =====================================================

const categoryColumns = `id, name, description, parent_id, sort_order, active, need_sync, created_at, updated_at`

func scanCategory(row interface{ Scan(...interface{}) error }) (models.Category, error) {
	var c models.Category
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.ParentID, &c.SortOrder,
		&c.Active, &c.NeedSync, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *Store) queryCategories(query string, args ...interface{}) ([]models.Category, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapDB("query categories", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapDB("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("iterate categories", err)
	}
	return categories, nil
}

// ListCategories returns all active categories.
func (s *Store) ListCategories() ([]models.Category, error) {
	return s.queryCategories("SELECT " + categoryColumns + " FROM categories WHERE active = 1")
}

// PendingCategories returns all categories awaiting sync.
func (s *Store) PendingCategories() ([]models.Category, error) {
	return s.queryCategories("SELECT " + categoryColumns + " FROM categories WHERE need_sync = 1")
}

// UpsertCategory inserts or fully replaces a category by id.
func (s *Store) UpsertCategory(c models.Category) (models.Category, error) {
	if c.Name == "" {
		return c, apperrors.New(apperrors.ErrValidation, "category name is required")
	}
	if c.ID == "" {
		c.ID = uuid.New()
	}
	now := models.Now()
	c.NeedSync = true
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO categories (`+categoryColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.ParentID, c.SortOrder,
		c.Active, c.NeedSync, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return c, wrapDB("upsert category", err)
	}
	return c, nil
}

// MarkCategorySynced clears the pending flag for a category. See
// MarkProductSynced for the updated_at guard.
func (s *Store) MarkCategorySynced(id, seenUpdatedAt string) error {
	_, err := s.db.Exec(
		"UPDATE categories SET need_sync = 0 WHERE id = ? AND updated_at = ?",
		id, seenUpdatedAt,
	)
	return wrapDB("mark category synced", err)
}

// =====================================================
// Customer Operations
// =====================================================

const customerColumns = `id, name, email, phone, address, rfc, credit_limit, current_credit,
	loyalty_points, notes, active, need_sync, created_at, updated_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID,
		&c.CreditLimit, &c.CurrentCredit, &c.LoyaltyPoints, &c.Notes,
		&c.Active, &c.NeedSync, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *Store) queryCustomers(query string, args ...interface{}) ([]models.Customer, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapDB("query customers", err)
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, wrapDB("scan customer", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("iterate customers", err)
	}
	return customers, nil
}

// ListCustomers returns all active customers.
func (s *Store) ListCustomers() ([]models.Customer, error) {
	return s.queryCustomers("SELECT " + customerColumns + " FROM customers WHERE active = 1")
}

// PendingCustomers returns all customers awaiting sync.
func (s *Store) PendingCustomers() ([]models.Customer, error) {
	return s.queryCustomers("SELECT " + customerColumns + " FROM customers WHERE need_sync = 1")
}

// UpsertCustomer inserts or fully replaces a customer by id. The current
// credit balance is stored as given; it is never checked against the limit.
func (s *Store) UpsertCustomer(c models.Customer) (models.Customer, error) {
	if c.Name == "" {
		return c, apperrors.New(apperrors.ErrValidation, "customer name is required")
	}
	if c.ID == "" {
		c.ID = uuid.New()
	}
	now := models.Now()
	c.NeedSync = true
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO customers (`+customerColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.TaxID,
		c.CreditLimit, c.CurrentCredit, c.LoyaltyPoints, c.Notes,
		c.Active, c.NeedSync, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return c, wrapDB("upsert customer", err)
	}
	return c, nil
}

// MarkCustomerSynced clears the pending flag for a customer. See
// MarkProductSynced for the updated_at guard.
func (s *Store) MarkCustomerSynced(id, seenUpdatedAt string) error {
	_, err := s.db.Exec(
		"UPDATE customers SET need_sync = 0 WHERE id = ? AND updated_at = ?",
		id, seenUpdatedAt,
	)
	return wrapDB("mark customer synced", err)
}

// =====================================================
// Sale Operations
// =====================================================

const saleColumns = `id, receipt_number, customer_id, customer_name, subtotal, tax, discount,
	total, payment_method, amount_paid, change_amount, status, notes, need_sync, created_at`

func scanSale(row interface{ Scan(...interface{}) error }) (models.Sale, error) {
	var sl models.Sale
	err := row.Scan(
		&sl.ID, &sl.ReceiptNumber, &sl.CustomerID, &sl.CustomerName,
		&sl.Subtotal, &sl.Tax, &sl.Discount, &sl.Total, &sl.PaymentMethod,
		&sl.AmountPaid, &sl.ChangeAmount, &sl.Status, &sl.Notes,
		&sl.NeedSync, &sl.CreatedAt,
	)
	return sl, err
}

func (s *Store) querySales(query string, args ...interface{}) ([]models.Sale, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapDB("query sales", err)
	}
	defer rows.Close()

	sales := []models.Sale{}
	for rows.Next() {
		sl, err := scanSale(rows)
		if err != nil {
			return nil, wrapDB("scan sale", err)
		}
		sales = append(sales, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("iterate sales", err)
	}
	return sales, nil
}

// ListSales returns the most recent sales, newest first. Line items are not
// loaded; they have no read path in this store.
func (s *Store) ListSales(limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.querySales("SELECT "+saleColumns+" FROM sales ORDER BY created_at DESC LIMIT ?", limit)
}

// PendingSales returns all sales awaiting sync.
func (s *Store) PendingSales() ([]models.Sale, error) {
	return s.querySales("SELECT " + saleColumns + " FROM sales WHERE need_sync = 1")
}

// MarkSaleSynced clears the pending flag for a sale. Sales are immutable
// after creation so no timestamp guard is needed; a vanished id is a no-op.
func (s *Store) MarkSaleSynced(id string) error {
	_, err := s.db.Exec("UPDATE sales SET need_sync = 0 WHERE id = ?", id)
	return wrapDB("mark sale synced", err)
}

// CreateSale writes a sale header, all of its line items and the receipt
// counter increment in a single transaction. A failed sale consumes no
// receipt number and leaves no orphan rows. The assigned receipt number has
// the form REC-<local date>-<zero-padded sequence>.
func (s *Store) CreateSale(sale models.Sale) (models.Sale, error) {
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = models.PaymentCash
	}
	if !sale.PaymentMethod.Valid() {
		return sale, apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("unknown payment method %q", sale.PaymentMethod))
	}
	if sale.Status == "" {
		sale.Status = "completed"
	}
	if sale.ID == "" {
		sale.ID = uuid.New()
	}
	sale.NeedSync = true
	sale.CreatedAt = models.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return sale, wrapDB("begin sale transaction", err)
	}
	defer tx.Rollback()

	receipt, err := nextReceiptNumber(tx, time.Now())
	if err != nil {
		return sale, err
	}
	sale.ReceiptNumber = receipt

	_, err = tx.Exec(`
	INSERT INTO sales (`+saleColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.ReceiptNumber, sale.CustomerID, sale.CustomerName,
		sale.Subtotal, sale.Tax, sale.Discount, sale.Total, sale.PaymentMethod,
		sale.AmountPaid, sale.ChangeAmount, sale.Status, sale.Notes,
		sale.NeedSync, sale.CreatedAt,
	)
	if err != nil {
		return sale, wrapDB("insert sale", err)
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = uuid.New()
		}
		item.SaleID = sale.ID
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		_, err = tx.Exec(`
		INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price, discount, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.SaleID, item.ProductID, item.ProductName,
			item.Quantity, item.UnitPrice, item.Discount, item.Total,
		)
		if err != nil {
			return sale, wrapDB("insert sale item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sale, wrapDB("commit sale", err)
	}
	return sale, nil
}

// nextReceiptNumber performs the read-increment-write on the persisted
// counter inside the caller's transaction, which serializes it against any
// concurrent sale creation. Counts past 9999 in one day widen the suffix
// instead of wrapping.
func nextReceiptNumber(tx *sql.Tx, at time.Time) (string, error) {
	var raw string
	counter := 1
	err := tx.QueryRow("SELECT value FROM settings WHERE key = ?", ReceiptCounterKey).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// counter row missing, start from 1
	case err != nil:
		return "", wrapDB("read receipt counter", err)
	default:
		if n, convErr := strconv.Atoi(strings.TrimSpace(raw)); convErr == nil {
			counter = n
		}
	}

	receipt := fmt.Sprintf("REC-%s-%04d", at.Format("20060102"), counter)

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)",
		ReceiptCounterKey, strconv.Itoa(counter+1),
	)
	if err != nil {
		return "", wrapDB("advance receipt counter", err)
	}
	return receipt, nil
}

// SaleItemCount returns the number of line items stored for a sale.
func (s *Store) SaleItemCount(saleID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sale_items WHERE sale_id = ?", saleID).Scan(&count)
	if err != nil {
		return 0, wrapDB("count sale items", err)
	}
	return count, nil
}

// =====================================================
// Setting Operations
// =====================================================

// GetSetting returns the value stored under key, or an empty string when the
// key does not exist. A missing key is not an error.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapDB("get setting", err)
	}
	return value, nil
}

// SetSetting stores a value under key, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	if key == "" {
		return apperrors.New(apperrors.ErrValidation, "setting key is required")
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	return wrapDB("set setting", err)
}

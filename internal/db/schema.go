package db

import (
	"database/sql"
	"fmt"

	"github.com/davidorozco-dev/cajapos/internal/models"
)

// Schema is the full DDL for the local store. Every synced table carries the
// envelope columns: id, need_sync, created_at, updated_at (sales omit
// updated_at, a sale is never mutated after creation). sale_items reference
// their parent sale with an enforced foreign key.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sku TEXT NOT NULL DEFAULT '',
	barcode TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,
	stock INTEGER NOT NULL DEFAULT 0,
	min_stock INTEGER NOT NULL DEFAULT 0,
	category_id TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	available_pos INTEGER NOT NULL DEFAULT 1,
	available_digital INTEGER NOT NULL DEFAULT 1,
	need_sync INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent_id TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	need_sync INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	rfc TEXT NOT NULL DEFAULT '',
	credit_limit REAL NOT NULL DEFAULT 0,
	current_credit REAL NOT NULL DEFAULT 0,
	loyalty_points INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	need_sync INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	receipt_number TEXT NOT NULL,
	customer_id TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL DEFAULT '',
	subtotal REAL NOT NULL DEFAULT 0,
	tax REAL NOT NULL DEFAULT 0,
	discount REAL NOT NULL DEFAULT 0,
	total REAL NOT NULL DEFAULT 0,
	payment_method TEXT NOT NULL DEFAULT 'cash',
	amount_paid REAL NOT NULL DEFAULT 0,
	change_amount REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'completed',
	notes TEXT NOT NULL DEFAULT '',
	need_sync INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sale_items (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL,
	product_id TEXT NOT NULL DEFAULT '',
	product_name TEXT NOT NULL DEFAULT '',
	quantity INTEGER NOT NULL DEFAULT 1,
	unit_price REAL NOT NULL DEFAULT 0,
	discount REAL NOT NULL DEFAULT 0,
	total REAL NOT NULL DEFAULT 0,
	FOREIGN KEY(sale_id) REFERENCES sales(id)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

// CreateSchema creates all tables if they do not exist.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// defaultCategories are seeded on first run so the storefront renders a
// usable catalog before any remote configuration happens.
var defaultCategories = []struct {
	id, name, description string
}{
	{"cat_1", "Bebidas", "Refrescos, jugos, agua"},
	{"cat_2", "Comidas", "Comida preparada"},
	{"cat_3", "Postres", "Dulces y postres"},
	{"cat_4", "Snacks", "Botanas"},
	{"cat_5", "Entradas", "Entradas y aperitivos"},
}

var defaultProducts = []struct {
	id, name   string
	price      float64
	stock      int
	categoryID string
	sku        string
}{
	{"prod_1", "Coca Cola 600ml", 25.00, 50, "cat_1", "COCA600"},
	{"prod_2", "Hamburguesa Clasica", 89.00, 30, "cat_2", "HAMB001"},
	{"prod_3", "Hamburguesa con Queso", 99.00, 25, "cat_2", "HAMB002"},
	{"prod_4", "Agua Natural 500ml", 15.00, 100, "cat_1", "AGUA500"},
	{"prod_5", "Tacos de Asada (3)", 75.00, 40, "cat_2", "TACO003"},
	{"prod_6", "Flan de Caramelo", 55.00, 20, "cat_3", "FLAN001"},
	{"prod_7", "Helado Vainilla", 45.00, 15, "cat_3", "HELA001"},
	{"prod_8", "Pizza Pepperoni", 145.00, 20, "cat_2", "PIZZ001"},
	{"prod_9", "Jugo de Naranja", 35.00, 30, "cat_1", "JUGO001"},
	{"prod_10", "Papas Fritas", 40.00, 50, "cat_4", "PAPA001"},
	{"prod_11", "Cafe Americano", 30.00, 100, "cat_1", "CAFE001"},
}

var defaultSettings = []struct {
	key, value string
}{
	{"business_name", "Mi Negocio"},
	{"tax_rate", "16"},
	{ReceiptCounterKey, "1"},
}

// Seed inserts default catalog data and settings. Each table is seeded only
// when it is empty, so calling Seed on every startup is safe.
func Seed(db *sql.DB) error {
	now := models.Now()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count == 0 {
		for _, c := range defaultCategories {
			_, err := db.Exec(
				"INSERT INTO categories (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				c.id, c.name, c.description, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to seed category %s: %w", c.id, err)
			}
		}
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count == 0 {
		for _, p := range defaultProducts {
			_, err := db.Exec(
				"INSERT INTO products (id, name, price, stock, category_id, sku, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				p.id, p.name, p.price, p.stock, p.categoryID, p.sku, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to seed product %s: %w", p.id, err)
			}
		}
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM settings").Scan(&count); err != nil {
		return fmt.Errorf("failed to count settings: %w", err)
	}
	if count == 0 {
		for _, s := range defaultSettings {
			_, err := db.Exec("INSERT INTO settings (key, value) VALUES (?, ?)", s.key, s.value)
			if err != nil {
				return fmt.Errorf("failed to seed setting %s: %w", s.key, err)
			}
		}
	}

	return nil
}

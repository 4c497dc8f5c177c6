// Package models provides data model definitions for the CajaPOS backend.
package models

import "time"

// TimeFormat is the canonical timestamp encoding for all envelope fields.
// Timestamps are stored and synced as RFC 3339 strings in UTC.
const TimeFormat = time.RFC3339Nano

// Now returns the current time formatted as a canonical timestamp.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// PaymentMethod enumerates the accepted tender types for a sale.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCredit   PaymentMethod = "credit"
)

// Valid reports whether the payment method is one of the known tender types.
func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit:
		return true
	}
	return false
}

// Product represents a sellable item in the catalog.
type Product struct {
	ID               string  `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	Description      string  `db:"description" json:"description,omitempty"`
	SKU              string  `db:"sku" json:"sku,omitempty"`
	Barcode          string  `db:"barcode" json:"barcode,omitempty"`
	Price            float64 `db:"price" json:"price"`
	Cost             float64 `db:"cost" json:"cost"`
	Stock            int     `db:"stock" json:"stock"`
	MinStock         int     `db:"min_stock" json:"min_stock"`
	CategoryID       string  `db:"category_id" json:"category_id,omitempty"`
	ImageURL         string  `db:"image_url" json:"image_url,omitempty"`
	Active           bool    `db:"active" json:"active"`
	AvailablePOS     bool    `db:"available_pos" json:"available_pos"`
	AvailableDigital bool    `db:"available_digital" json:"available_digital"`
	NeedSync         bool    `db:"need_sync" json:"need_sync"`
	CreatedAt        string  `db:"created_at" json:"created_at"`
	UpdatedAt        string  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Product.
func (Product) TableName() string { return "products" }

// Category represents a product grouping. Parent references are weak:
// cycles and dangling ids are not checked.
type Category struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`
	ParentID    string `db:"parent_id" json:"parent_id,omitempty"`
	SortOrder   int    `db:"sort_order" json:"sort_order"`
	Active      bool   `db:"active" json:"active"`
	NeedSync    bool   `db:"need_sync" json:"need_sync"`
	CreatedAt   string `db:"created_at" json:"created_at"`
	UpdatedAt   string `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Category.
func (Category) TableName() string { return "categories" }

// Customer represents a registered buyer with optional store credit.
type Customer struct {
	ID            string  `db:"id" json:"id"`
	Name          string  `db:"name" json:"name"`
	Email         string  `db:"email" json:"email,omitempty"`
	Phone         string  `db:"phone" json:"phone,omitempty"`
	Address       string  `db:"address" json:"address,omitempty"`
	TaxID         string  `db:"rfc" json:"rfc,omitempty"`
	CreditLimit   float64 `db:"credit_limit" json:"credit_limit"`
	CurrentCredit float64 `db:"current_credit" json:"current_credit"`
	LoyaltyPoints int     `db:"loyalty_points" json:"loyalty_points"`
	Notes         string  `db:"notes" json:"notes,omitempty"`
	Active        bool    `db:"active" json:"active"`
	NeedSync      bool    `db:"need_sync" json:"need_sync"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
	UpdatedAt     string  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string { return "customers" }

// Sale represents a completed checkout. The receipt number is assigned by
// the store at creation time, never by the caller. A sale is immutable once
// written; its line items share its lifecycle and are never synced alone.
type Sale struct {
	ID            string        `db:"id" json:"id"`
	ReceiptNumber string        `db:"receipt_number" json:"receipt_number"`
	CustomerID    string        `db:"customer_id" json:"customer_id,omitempty"`
	CustomerName  string        `db:"customer_name" json:"customer_name,omitempty"`
	Subtotal      float64       `db:"subtotal" json:"subtotal"`
	Tax           float64       `db:"tax" json:"tax"`
	Discount      float64       `db:"discount" json:"discount"`
	Total         float64       `db:"total" json:"total"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	AmountPaid    float64       `db:"amount_paid" json:"amount_paid"`
	ChangeAmount  float64       `db:"change_amount" json:"change_amount"`
	Status        string        `db:"status" json:"status"`
	Notes         string        `db:"notes" json:"notes,omitempty"`
	NeedSync      bool          `db:"need_sync" json:"need_sync"`
	CreatedAt     string        `db:"created_at" json:"created_at"`

	// Items is populated on input to CreateSale only. Line items are not
	// loaded on reads and are excluded from the sync payload.
	Items []SaleItem `db:"-" json:"items,omitempty"`
}

// TableName returns the table name for Sale.
func (Sale) TableName() string { return "sales" }

// SaleItem is a single line on a sale: product reference plus a denormalized
// name so receipts survive later catalog edits.
type SaleItem struct {
	ID          string  `db:"id" json:"id,omitempty"`
	SaleID      string  `db:"sale_id" json:"sale_id,omitempty"`
	ProductID   string  `db:"product_id" json:"product_id"`
	ProductName string  `db:"product_name" json:"product_name"`
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	Discount    float64 `db:"discount" json:"discount"`
	Total       float64 `db:"total" json:"total"`
}

// TableName returns the table name for SaleItem.
func (SaleItem) TableName() string { return "sale_items" }

// Setting is a flat key/value configuration entry.
type Setting struct {
	Key   string `db:"key" json:"key"`
	Value string `db:"value" json:"value"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string { return "settings" }

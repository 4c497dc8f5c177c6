// Package bridge exposes the synchronous surface the storefront UI consumes.
//
// Every method takes and returns plain strings so the webview can call it
// like an ordinary function. Nothing here ever fails visibly: underlying
// errors are logged and mapped to safe defaults (empty list, empty string)
// so the UI renders with degraded data instead of crashing.
package bridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/davidorozco-dev/cajapos/internal/db"
	apperrors "github.com/davidorozco-dev/cajapos/internal/errors"
	"github.com/davidorozco-dev/cajapos/internal/logging"
	"github.com/davidorozco-dev/cajapos/internal/models"
	"github.com/davidorozco-dev/cajapos/internal/sync"
)

const emptyList = "[]"

// Bridge is the single entry point between the UI layer and the core
// services. The UI never touches the store or the wire format directly.
type Bridge struct {
	store  *db.Store
	engine *sync.Engine
}

// New creates a Bridge over the given store and sync engine.
func New(store *db.Store, engine *sync.Engine) *Bridge {
	return &Bridge{store: store, engine: engine}
}

// decodeStrict parses a JSON payload from the UI, rejecting unknown fields
// and malformed values rather than silently defaulting them.
func decodeStrict(raw string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "decode payload", err)
	}
	return nil
}

// hasField reports whether the raw JSON object carries the named key. Used
// to default boolean flags that the UI omits on fresh records.
func hasField(raw, name string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return false
	}
	_, ok := fields[name]
	return ok
}

// encodeList marshals a slice for the UI, falling back to an empty array.
func encodeList(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error("encode list", err)
		return emptyList
	}
	return string(data)
}

// GetProducts returns all active products as a JSON array.
func (b *Bridge) GetProducts() string {
	products, err := b.store.ListProducts()
	if err != nil {
		logging.Error("get products", err)
		return emptyList
	}
	return encodeList(products)
}

// SaveProduct upserts a product from a JSON payload. Omitted active and
// channel-availability flags default to true.
func (b *Bridge) SaveProduct(raw string) {
	var p models.Product
	if err := decodeStrict(raw, &p); err != nil {
		logging.Error("save product", err)
		return
	}
	if !hasField(raw, "active") {
		p.Active = true
	}
	if !hasField(raw, "available_pos") {
		p.AvailablePOS = true
	}
	if !hasField(raw, "available_digital") {
		p.AvailableDigital = true
	}
	if _, err := b.store.UpsertProduct(p); err != nil {
		logging.Error("save product", err)
	}
}

// GetCategories returns all active categories as a JSON array.
func (b *Bridge) GetCategories() string {
	categories, err := b.store.ListCategories()
	if err != nil {
		logging.Error("get categories", err)
		return emptyList
	}
	return encodeList(categories)
}

// SaveCategory upserts a category from a JSON payload.
func (b *Bridge) SaveCategory(raw string) {
	var c models.Category
	if err := decodeStrict(raw, &c); err != nil {
		logging.Error("save category", err)
		return
	}
	if !hasField(raw, "active") {
		c.Active = true
	}
	if _, err := b.store.UpsertCategory(c); err != nil {
		logging.Error("save category", err)
	}
}

// GetCustomers returns all active customers as a JSON array.
func (b *Bridge) GetCustomers() string {
	customers, err := b.store.ListCustomers()
	if err != nil {
		logging.Error("get customers", err)
		return emptyList
	}
	return encodeList(customers)
}

// SaveCustomer upserts a customer from a JSON payload.
func (b *Bridge) SaveCustomer(raw string) {
	var c models.Customer
	if err := decodeStrict(raw, &c); err != nil {
		logging.Error("save customer", err)
		return
	}
	if !hasField(raw, "active") {
		c.Active = true
	}
	if _, err := b.store.UpsertCustomer(c); err != nil {
		logging.Error("save customer", err)
	}
}

// GetSales returns the 100 most recent sales as a JSON array.
func (b *Bridge) GetSales() string {
	sales, err := b.store.ListSales(100)
	if err != nil {
		logging.Error("get sales", err)
		return emptyList
	}
	return encodeList(sales)
}

// SaveSale records a sale with its line items from a JSON payload. The
// receipt number in the payload, if any, is ignored; the store assigns it.
func (b *Bridge) SaveSale(raw string) {
	var sl models.Sale
	if err := decodeStrict(raw, &sl); err != nil {
		logging.Error("save sale", err)
		return
	}
	if _, err := b.store.CreateSale(sl); err != nil {
		logging.Error("save sale", err)
	}
}

// GetSetting returns the value for key, or an empty string.
func (b *Bridge) GetSetting(key string) string {
	value, err := b.store.GetSetting(key)
	if err != nil {
		logging.Error("get setting", err, map[string]interface{}{"key": key})
		return ""
	}
	return value
}

// SetSetting stores a setting value.
func (b *Bridge) SetSetting(key, value string) {
	if err := b.store.SetSetting(key, value); err != nil {
		logging.Error("set setting", err, map[string]interface{}{"key": key})
	}
}

// SyncNow triggers a forced sync pass without waiting for it. The pass
// respects the engine's single-flight guard.
func (b *Bridge) SyncNow() {
	go b.engine.SyncNow(context.Background())
}

// IsOffline reports whether the last connectivity probe failed.
func (b *Bridge) IsOffline() bool {
	return !b.engine.Online()
}

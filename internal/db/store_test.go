// Package db provides unit tests for the local store.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/davidorozco-dev/cajapos/internal/errors"
	"github.com/davidorozco-dev/cajapos/internal/models"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		t.Fatalf("Failed to create test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func parseStamp(t *testing.T, stamp string) time.Time {
	t.Helper()
	ts, err := time.Parse(models.TimeFormat, stamp)
	if err != nil {
		t.Fatalf("Failed to parse timestamp %q: %v", stamp, err)
	}
	return ts
}

// =====================================================
// Product Tests
// =====================================================

func TestUpsertProductGeneratesIDAndDefaults(t *testing.T) {
	store := NewStore(setupTestDB(t))

	saved, err := store.UpsertProduct(models.Product{
		Name:   "Coca Cola 600ml",
		Price:  25.00,
		Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a generated id")
	}
	if !saved.NeedSync {
		t.Fatal("expected need_sync to be set on a fresh upsert")
	}
	if saved.Stock != 0 {
		t.Fatalf("expected stock defaulted to 0, got %d", saved.Stock)
	}

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected exactly 1 active product, got %d", len(products))
	}
	if products[0].ID != saved.ID || products[0].Name != "Coca Cola 600ml" {
		t.Fatalf("listed product does not match saved record: %+v", products[0])
	}
}

func TestUpsertProductIdempotentOnID(t *testing.T) {
	store := NewStore(setupTestDB(t))

	first, err := store.UpsertProduct(models.Product{Name: "Agua Natural", Price: 15, Active: true})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second, err := store.UpsertProduct(models.Product{
		ID:     first.ID,
		Name:   "Agua Mineral",
		Price:  18,
		Active: true,
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected exactly 1 record after double upsert, got %d", len(products))
	}
	if products[0].Name != "Agua Mineral" || products[0].Price != 18 {
		t.Fatalf("expected latest values, got %+v", products[0])
	}

	t1 := parseStamp(t, first.UpdatedAt)
	t2 := parseStamp(t, second.UpdatedAt)
	if !t2.After(t1) {
		t.Fatalf("expected updated_at to strictly increase: %v vs %v", t1, t2)
	}
}

func TestUpsertProductFullOverwrite(t *testing.T) {
	store := NewStore(setupTestDB(t))

	first, err := store.UpsertProduct(models.Product{
		Name: "Cafe Americano", Price: 30, Description: "Taza grande", SKU: "CAFE001", Active: true,
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// A replacement without description or sku clears those fields entirely.
	if _, err := store.UpsertProduct(models.Product{ID: first.ID, Name: "Cafe Americano", Price: 32, Active: true}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	products, _ := store.ListProducts()
	if products[0].Description != "" || products[0].SKU != "" {
		t.Fatalf("expected full overwrite, got %+v", products[0])
	}
}

func TestUpsertProductValidation(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if _, err := store.UpsertProduct(models.Product{Price: 10}); !apperrors.HasCode(err, apperrors.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for missing name, got %v", err)
	}
	if _, err := store.UpsertProduct(models.Product{Name: "Gratis", Price: -1}); !apperrors.HasCode(err, apperrors.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for negative price, got %v", err)
	}

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("rejected records must not be stored, got %d", len(products))
	}
}

func TestListProductsFiltersInactive(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if _, err := store.UpsertProduct(models.Product{Name: "Activo", Price: 1, Active: true}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := store.UpsertProduct(models.Product{Name: "Retirado", Price: 1, Active: false}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Activo" {
		t.Fatalf("expected only the active product, got %+v", products)
	}
}

// =====================================================
// need_sync Lifecycle Tests
// =====================================================

func TestNeedSyncLifecycle(t *testing.T) {
	store := NewStore(setupTestDB(t))

	saved, err := store.UpsertProduct(models.Product{Name: "Helado", Price: 45, Active: true})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	pending, err := store.PendingProducts()
	if err != nil {
		t.Fatalf("PendingProducts failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("fresh record must be pending, got %d", len(pending))
	}

	if err := store.MarkProductSynced(saved.ID, saved.UpdatedAt); err != nil {
		t.Fatalf("MarkProductSynced failed: %v", err)
	}
	pending, _ = store.PendingProducts()
	if len(pending) != 0 {
		t.Fatalf("acknowledged record must not be pending, got %d", len(pending))
	}

	// A later upsert on the same id re-flags the record.
	again, err := store.UpsertProduct(models.Product{ID: saved.ID, Name: "Helado", Price: 48, Active: true})
	if err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	pending, _ = store.PendingProducts()
	if len(pending) != 1 {
		t.Fatalf("re-upserted record must be pending again, got %d", len(pending))
	}

	// An acknowledgment carrying the stale timestamp must not clear the
	// newer flag.
	if err := store.MarkProductSynced(saved.ID, saved.UpdatedAt); err != nil {
		t.Fatalf("stale MarkProductSynced failed: %v", err)
	}
	pending, _ = store.PendingProducts()
	if len(pending) != 1 {
		t.Fatal("stale acknowledgment cleared a newer pending flag")
	}

	// A fresh acknowledgment clears it.
	if err := store.MarkProductSynced(again.ID, again.UpdatedAt); err != nil {
		t.Fatalf("MarkProductSynced failed: %v", err)
	}
	pending, _ = store.PendingProducts()
	if len(pending) != 0 {
		t.Fatalf("expected no pending records, got %d", len(pending))
	}
}

func TestMarkSyncedMissingIDIsNoOp(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if err := store.MarkProductSynced("never-existed", models.Now()); err != nil {
		t.Fatalf("MarkProductSynced on a missing id must be a no-op, got %v", err)
	}
	if err := store.MarkSaleSynced("never-existed"); err != nil {
		t.Fatalf("MarkSaleSynced on a missing id must be a no-op, got %v", err)
	}
}

// =====================================================
// Category and Customer Tests
// =====================================================

func TestUpsertCategoryWeakParentReference(t *testing.T) {
	store := NewStore(setupTestDB(t))

	// Parent references are weak: a dangling parent id is accepted.
	saved, err := store.UpsertCategory(models.Category{
		Name: "Sub", ParentID: "no-such-parent", Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertCategory failed: %v", err)
	}
	if saved.ID == "" || !saved.NeedSync {
		t.Fatalf("unexpected saved category: %+v", saved)
	}

	if _, err := store.UpsertCategory(models.Category{}); !apperrors.HasCode(err, apperrors.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for missing name, got %v", err)
	}
}

func TestUpsertCustomer(t *testing.T) {
	store := NewStore(setupTestDB(t))

	// Credit is stored as given, never validated against the limit.
	saved, err := store.UpsertCustomer(models.Customer{
		Name: "Maria Lopez", CreditLimit: 100, CurrentCredit: 500, Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertCustomer failed: %v", err)
	}
	if saved.CurrentCredit != 500 {
		t.Fatalf("expected credit stored untouched, got %v", saved.CurrentCredit)
	}

	customers, err := store.ListCustomers()
	if err != nil {
		t.Fatalf("ListCustomers failed: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}
}

// =====================================================
// Sale Tests
// =====================================================

func TestCreateSaleAssignsSequentialReceiptNumbers(t *testing.T) {
	store := NewStore(setupTestDB(t))
	if err := store.SetSetting(ReceiptCounterKey, "1"); err != nil {
		t.Fatalf("seed counter failed: %v", err)
	}

	day := time.Now().Format("20060102")

	first, err := store.CreateSale(models.Sale{Total: 25, PaymentMethod: models.PaymentCash})
	if err != nil {
		t.Fatalf("first CreateSale failed: %v", err)
	}
	second, err := store.CreateSale(models.Sale{Total: 89, PaymentMethod: models.PaymentCard})
	if err != nil {
		t.Fatalf("second CreateSale failed: %v", err)
	}

	if want := fmt.Sprintf("REC-%s-0001", day); first.ReceiptNumber != want {
		t.Fatalf("expected %s, got %s", want, first.ReceiptNumber)
	}
	if want := fmt.Sprintf("REC-%s-0002", day); second.ReceiptNumber != want {
		t.Fatalf("expected %s, got %s", want, second.ReceiptNumber)
	}
}

func TestReceiptNumbersUniqueUnderConcurrency(t *testing.T) {
	store := NewStore(setupTestDB(t))
	if err := store.SetSetting(ReceiptCounterKey, "1"); err != nil {
		t.Fatalf("seed counter failed: %v", err)
	}

	const workers = 4
	const salesPerWorker = 10

	receipts := make(chan string, workers*salesPerWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < salesPerWorker; i++ {
				sale, err := store.CreateSale(models.Sale{Total: 1})
				if err != nil {
					t.Errorf("CreateSale failed: %v", err)
					return
				}
				receipts <- sale.ReceiptNumber
			}
		}()
	}
	wg.Wait()
	close(receipts)

	seen := make(map[string]bool)
	suffixes := make(map[string]bool)
	for r := range receipts {
		if seen[r] {
			t.Fatalf("duplicate receipt number issued: %s", r)
		}
		seen[r] = true
		parts := strings.Split(r, "-")
		suffixes[parts[len(parts)-1]] = true
	}
	if len(seen) != workers*salesPerWorker {
		t.Fatalf("expected %d receipts, got %d", workers*salesPerWorker, len(seen))
	}
	// Sequential with no gaps: every suffix from 0001 upward must be present.
	for i := 1; i <= workers*salesPerWorker; i++ {
		if !suffixes[fmt.Sprintf("%04d", i)] {
			t.Fatalf("missing receipt suffix %04d", i)
		}
	}
}

func TestCreateSaleWritesAllItems(t *testing.T) {
	store := NewStore(setupTestDB(t))

	sale, err := store.CreateSale(models.Sale{
		Total:         150,
		PaymentMethod: models.PaymentCash,
		Items: []models.SaleItem{
			{ProductID: "prod_1", ProductName: "Coca Cola 600ml", Quantity: 2, UnitPrice: 25, Total: 50},
			{ProductID: "prod_5", ProductName: "Tacos de Asada (3)", Quantity: 1, UnitPrice: 75, Total: 75},
			{ProductID: "prod_4", ProductName: "Agua Natural 500ml", Quantity: 1, UnitPrice: 15, Total: 15},
		},
	})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}

	count, err := store.SaleItemCount(sale.ID)
	if err != nil {
		t.Fatalf("SaleItemCount failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 line items, got %d", count)
	}
}

func TestCreateSaleAtomicRollback(t *testing.T) {
	store := NewStore(setupTestDB(t))
	if err := store.SetSetting(ReceiptCounterKey, "1"); err != nil {
		t.Fatalf("seed counter failed: %v", err)
	}

	// Establish a sale whose line item id will collide with the next write.
	okSale, err := store.CreateSale(models.Sale{
		Total: 25,
		Items: []models.SaleItem{{ID: "item_dup", ProductID: "prod_1", ProductName: "Coca Cola 600ml", Quantity: 1, UnitPrice: 25, Total: 25}},
	})
	if err != nil {
		t.Fatalf("setup CreateSale failed: %v", err)
	}

	// The third item violates the primary key, failing the transaction.
	failed, err := store.CreateSale(models.Sale{
		Total: 100,
		Items: []models.SaleItem{
			{ProductID: "prod_2", ProductName: "Hamburguesa Clasica", Quantity: 1, UnitPrice: 89, Total: 89},
			{ProductID: "prod_4", ProductName: "Agua Natural 500ml", Quantity: 1, UnitPrice: 15, Total: 15},
			{ID: "item_dup", ProductID: "prod_1", ProductName: "Coca Cola 600ml", Quantity: 1, UnitPrice: 25, Total: 25},
		},
	})
	if err == nil {
		t.Fatal("expected CreateSale to fail on duplicate item id")
	}
	if !apperrors.HasCode(err, apperrors.ErrConstraint) && !apperrors.HasCode(err, apperrors.ErrDatabase) {
		t.Fatalf("expected a persistence error, got %v", err)
	}

	// No header, no items, no consumed receipt number.
	sales, err := store.ListSales(100)
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != okSale.ID {
		t.Fatalf("failed sale must leave no header, got %+v", sales)
	}
	if count, _ := store.SaleItemCount(failed.ID); count != 0 {
		t.Fatalf("failed sale must leave no items, got %d", count)
	}

	next, err := store.CreateSale(models.Sale{Total: 30})
	if err != nil {
		t.Fatalf("CreateSale after rollback failed: %v", err)
	}
	day := time.Now().Format("20060102")
	if want := fmt.Sprintf("REC-%s-0002", day); next.ReceiptNumber != want {
		t.Fatalf("rollback consumed a receipt number: want %s, got %s", want, next.ReceiptNumber)
	}
}

func TestCreateSaleDefaultsAndValidation(t *testing.T) {
	store := NewStore(setupTestDB(t))

	sale, err := store.CreateSale(models.Sale{Total: 10})
	if err != nil {
		t.Fatalf("CreateSale failed: %v", err)
	}
	if sale.PaymentMethod != models.PaymentCash {
		t.Fatalf("expected payment method defaulted to cash, got %s", sale.PaymentMethod)
	}
	if sale.Status != "completed" {
		t.Fatalf("expected status defaulted to completed, got %s", sale.Status)
	}

	if _, err := store.CreateSale(models.Sale{Total: 10, PaymentMethod: "barter"}); !apperrors.HasCode(err, apperrors.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for unknown payment method, got %v", err)
	}
}

func TestListSalesNewestFirstWithLimit(t *testing.T) {
	store := NewStore(setupTestDB(t))

	var ids []string
	for i := 0; i < 3; i++ {
		sale, err := store.CreateSale(models.Sale{Total: float64(i)})
		if err != nil {
			t.Fatalf("CreateSale failed: %v", err)
		}
		ids = append(ids, sale.ID)
		time.Sleep(time.Millisecond)
	}

	sales, err := store.ListSales(2)
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(sales))
	}
	if sales[0].ID != ids[2] || sales[1].ID != ids[1] {
		t.Fatal("expected newest-first ordering")
	}
}

// =====================================================
// Setting Tests
// =====================================================

func TestSettings(t *testing.T) {
	store := NewStore(setupTestDB(t))

	value, err := store.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting on a missing key must not fail: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value for missing key, got %q", value)
	}

	if err := store.SetSetting("business_name", "Mi Negocio"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := store.SetSetting("business_name", "Taqueria El Sol"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	value, _ = store.GetSetting("business_name")
	if value != "Taqueria El Sol" {
		t.Fatalf("expected upsert-by-key semantics, got %q", value)
	}

	if err := store.SetSetting("", "x"); !apperrors.HasCode(err, apperrors.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for empty key, got %v", err)
	}
}

// =====================================================
// Schema and Seed Tests
// =====================================================

func TestSeedIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	for i := 0; i < 2; i++ {
		if err := Seed(db); err != nil {
			t.Fatalf("Seed run %d failed: %v", i+1, err)
		}
	}

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 11 {
		t.Fatalf("expected 11 seeded products, got %d", len(products))
	}

	categories, _ := store.ListCategories()
	if len(categories) != 5 {
		t.Fatalf("expected 5 seeded categories, got %d", len(categories))
	}

	counter, _ := store.GetSetting(ReceiptCounterKey)
	if counter != "1" {
		t.Fatalf("expected receipt counter seeded to 1, got %q", counter)
	}
}

func TestSaleItemForeignKeyEnforced(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price, discount, total)
		VALUES ('orphan', 'no-such-sale', 'p', 'P', 1, 1, 0, 1)`)
	if err == nil {
		t.Fatal("expected foreign key violation for orphan sale item")
	}
}

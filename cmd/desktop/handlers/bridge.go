// Package handlers exposes the bridge facade over localhost HTTP for the
// rendered storefront UI.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davidorozco-dev/cajapos/internal/bridge"
	possync "github.com/davidorozco-dev/cajapos/internal/sync"
)

// BridgeHandler adapts the synchronous bridge surface to HTTP. Reads write
// the bridge's JSON string verbatim; writes accept the raw body as the
// bridge payload. Like the bridge itself, nothing here returns an error
// status for a failed save: the surface is fail-open.
type BridgeHandler struct {
	bridge *bridge.Bridge
	engine *possync.Engine
}

// NewBridgeHandler creates a new BridgeHandler.
func NewBridgeHandler(b *bridge.Bridge, engine *possync.Engine) *BridgeHandler {
	return &BridgeHandler{bridge: b, engine: engine}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

func readBody(r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return ""
	}
	return string(body)
}

// Products handles GET/POST /api/products.
func (h *BridgeHandler) Products(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.bridge.GetProducts())
	case http.MethodPost:
		h.bridge.SaveProduct(readBody(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Categories handles GET/POST /api/categories.
func (h *BridgeHandler) Categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.bridge.GetCategories())
	case http.MethodPost:
		h.bridge.SaveCategory(readBody(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Customers handles GET/POST /api/customers.
func (h *BridgeHandler) Customers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.bridge.GetCustomers())
	case http.MethodPost:
		h.bridge.SaveCustomer(readBody(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Sales handles GET/POST /api/sales.
func (h *BridgeHandler) Sales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.bridge.GetSales())
	case http.MethodPost:
		h.bridge.SaveSale(readBody(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Settings handles GET/PUT /api/settings/{key}.
func (h *BridgeHandler) Settings(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	if key == "" {
		http.Error(w, "Setting key required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, h.bridge.GetSetting(key))
	case http.MethodPut, http.MethodPost:
		h.bridge.SetSetting(key, readBody(r))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SyncNow handles POST /api/sync/now (fire-and-forget).
func (h *BridgeHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.bridge.SyncNow()
	w.WriteHeader(http.StatusAccepted)
}

// SyncStatus handles GET /api/sync/status.
func (h *BridgeHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"online":  h.engine.Online(),
		"syncing": h.engine.Syncing(),
		"offline": h.bridge.IsOffline(),
	}
	if last, ok := h.engine.LastSync(); ok {
		status["last_sync"] = last.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Health handles GET /api/health.
func (h *BridgeHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, `{"status":"ok","service":"cajapos-desktop"}`)
}

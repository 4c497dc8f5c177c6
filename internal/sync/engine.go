// Package sync pushes pending local mutations to the remote backend.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidorozco-dev/cajapos/internal/db"
	apperrors "github.com/davidorozco-dev/cajapos/internal/errors"
	"github.com/davidorozco-dev/cajapos/internal/logging"
)

// Settings keys holding the remote endpoint configuration. They are read at
// the start of every pass so the operator can configure sync at runtime.
const (
	SettingSyncURL    = "sync_url"
	SettingSyncAPIKey = "sync_api_key"
)

// Event is a status notification published by the engine. The UI layer
// subscribes to these instead of the engine calling back into it.
type Event struct {
	Online  bool      `json:"online"`
	Syncing bool      `json:"syncing"`
	Message string    `json:"message"`
	Synced  int       `json:"synced"`
	Errors  int       `json:"errors"`
	At      time.Time `json:"at"`
}

// Options configures the sync engine cadence and endpoints.
type Options struct {
	// ProbeURL is a known-stable endpoint used only to detect connectivity.
	ProbeURL     string
	ProbeTimeout time.Duration
	PushTimeout  time.Duration
	Interval     time.Duration
}

func (o *Options) fillDefaults() {
	if o.ProbeURL == "" {
		o.ProbeURL = "https://www.google.com/generate_204"
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.PushTimeout <= 0 {
		o.PushTimeout = 15 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
}

// Engine periodically pushes every record flagged as pending to the remote
// endpoint, clearing the flag per record only after an affirmative response.
// At most one pass runs at a time; an overlapping tick is skipped, never
// queued.
type Engine struct {
	store *db.Store
	opts  Options

	client *http.Client

	online  atomic.Bool
	syncing atomic.Bool

	mu       sync.Mutex
	lastSync time.Time

	events chan Event
}

// NewEngine creates a sync engine over the given store.
func NewEngine(store *db.Store, opts Options) *Engine {
	opts.fillDefaults()
	return &Engine{
		store:  store,
		opts:   opts,
		client: &http.Client{},
		events: make(chan Event, 32),
	}
}

// Events returns the status notification channel. A slow consumer never
// blocks the engine; events are dropped when the buffer is full.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Online reports the last probed connectivity state.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Syncing reports whether a pass is currently running.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// LastSync returns the completion time of the last pass, if any.
func (e *Engine) LastSync() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync, !e.lastSync.IsZero()
}

// Run executes the background loop until the context is cancelled. Each
// iteration probes connectivity and, when online, runs one sync pass.
func (e *Engine) Run(ctx context.Context) {
	for {
		e.SyncNow(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.opts.Interval):
		}
	}
}

// SyncNow probes connectivity and runs a single pass when online. Safe to
// call from outside the regular cadence; it respects the single-flight guard.
func (e *Engine) SyncNow(ctx context.Context) {
	online := e.probe(ctx)
	e.online.Store(online)

	if !online {
		e.publish(Event{Message: "Sin conexión (modo offline)"})
		return
	}
	e.syncPass(ctx)
}

// probe performs a lightweight reachability check with a short timeout.
func (e *Engine) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.opts.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// record is one pending row ready for the wire: payload with the pending
// flag stripped, plus the identity needed to acknowledge it afterwards.
type record struct {
	id        string
	updatedAt string
	payload   []byte
}

// batch groups the pending rows of one entity kind with the table they post
// to and the acknowledgment callback.
type batch struct {
	table string
	fetch func() ([]record, error)
	mark  func(r record) error
}

// batches returns the per-kind work in the fixed pass order.
func (e *Engine) batches() []batch {
	return []batch{
		{
			table: "products",
			fetch: func() ([]record, error) {
				products, err := e.store.PendingProducts()
				if err != nil {
					return nil, err
				}
				records := make([]record, 0, len(products))
				for _, p := range products {
					r, err := toRecord(p, p.ID, p.UpdatedAt)
					if err != nil {
						return nil, err
					}
					records = append(records, r)
				}
				return records, nil
			},
			mark: func(r record) error { return e.store.MarkProductSynced(r.id, r.updatedAt) },
		},
		{
			table: "sales",
			fetch: func() ([]record, error) {
				sales, err := e.store.PendingSales()
				if err != nil {
					return nil, err
				}
				records := make([]record, 0, len(sales))
				for _, sl := range sales {
					r, err := toRecord(sl, sl.ID, sl.CreatedAt)
					if err != nil {
						return nil, err
					}
					records = append(records, r)
				}
				return records, nil
			},
			mark: func(r record) error { return e.store.MarkSaleSynced(r.id) },
		},
		{
			table: "customers",
			fetch: func() ([]record, error) {
				customers, err := e.store.PendingCustomers()
				if err != nil {
					return nil, err
				}
				records := make([]record, 0, len(customers))
				for _, c := range customers {
					r, err := toRecord(c, c.ID, c.UpdatedAt)
					if err != nil {
						return nil, err
					}
					records = append(records, r)
				}
				return records, nil
			},
			mark: func(r record) error { return e.store.MarkCustomerSynced(r.id, r.updatedAt) },
		},
		{
			table: "categories",
			fetch: func() ([]record, error) {
				categories, err := e.store.PendingCategories()
				if err != nil {
					return nil, err
				}
				records := make([]record, 0, len(categories))
				for _, c := range categories {
					r, err := toRecord(c, c.ID, c.UpdatedAt)
					if err != nil {
						return nil, err
					}
					records = append(records, r)
				}
				return records, nil
			},
			mark: func(r record) error { return e.store.MarkCategorySynced(r.id, r.updatedAt) },
		},
	}
}

// toRecord serializes an entity for the wire, stripping the local-only
// pending flag. The remote schema has no need_sync column.
func toRecord(v interface{}, id, updatedAt string) (record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return record{}, apperrors.Wrap(apperrors.ErrInternal, "marshal sync record", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return record{}, apperrors.Wrap(apperrors.ErrInternal, "reshape sync record", err)
	}
	delete(fields, "need_sync")
	payload, err := json.Marshal(fields)
	if err != nil {
		return record{}, apperrors.Wrap(apperrors.ErrInternal, "marshal sync payload", err)
	}
	return record{id: id, updatedAt: updatedAt, payload: payload}, nil
}

// syncPass pushes every pending record across all kinds. Each record's
// outcome is independent; a failed push leaves that record pending and moves
// on. The pass is guarded so at most one runs concurrently.
func (e *Engine) syncPass(ctx context.Context) {
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	defer e.syncing.Store(false)

	baseURL, err := e.store.GetSetting(SettingSyncURL)
	if err != nil {
		logging.Error("read sync url", err)
		return
	}
	apiKey, err := e.store.GetSetting(SettingSyncAPIKey)
	if err != nil {
		logging.Error("read sync api key", err)
		return
	}
	if baseURL == "" || apiKey == "" {
		e.publish(Event{Online: true, Message: "Configuración de sync pendiente"})
		return
	}

	e.publish(Event{Online: true, Syncing: true, Message: "Sincronizando..."})

	synced, errCount := 0, 0
	for _, b := range e.batches() {
		records, err := b.fetch()
		if err != nil {
			logging.Error("fetch pending records", err, map[string]interface{}{"table": b.table})
			errCount++
			continue
		}
		for _, r := range records {
			if err := e.push(ctx, baseURL, apiKey, b.table, r.payload); err != nil {
				logging.Warn("push record failed", map[string]interface{}{
					"table": b.table, "id": r.id, "error": err.Error(),
				})
				errCount++
				continue
			}
			if err := b.mark(r); err != nil {
				logging.Error("mark record synced", err, map[string]interface{}{
					"table": b.table, "id": r.id,
				})
				errCount++
				continue
			}
			synced++
		}
	}

	now := time.Now()
	e.mu.Lock()
	e.lastSync = now
	e.mu.Unlock()

	message := "En línea"
	if synced > 0 {
		message = fmt.Sprintf("Sincronizado (%d cambios)", synced)
	}
	if errCount > 0 {
		message += fmt.Sprintf(" (%d errores)", errCount)
	}
	e.publish(Event{Online: true, Message: message, Synced: synced, Errors: errCount, At: now})
}

// push posts one record to the remote table with upsert-on-conflict
// semantics. Any 2xx response is success.
func (e *Engine) push(ctx context.Context, baseURL, apiKey, table string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.PushTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/rest/v1/%s", baseURL, table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := e.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "push record", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return apperrors.New(apperrors.ErrSyncFailed,
			fmt.Sprintf("remote rejected %s record: %d %s", table, resp.StatusCode, body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// publish emits a status event without ever blocking the sync loop.
func (e *Engine) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case e.events <- ev:
	default:
	}
}

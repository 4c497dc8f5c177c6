// Package main runs the embedded backend for the desktop shell. The native
// window hosts a webview that talks to this process over localhost HTTP and
// a WebSocket status channel.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/davidorozco-dev/cajapos/cmd/desktop/handlers"
	"github.com/davidorozco-dev/cajapos/internal/bridge"
	"github.com/davidorozco-dev/cajapos/internal/config"
	"github.com/davidorozco-dev/cajapos/internal/db"
	"github.com/davidorozco-dev/cajapos/internal/logging"
	possync "github.com/davidorozco-dev/cajapos/internal/sync"
)

func main() {
	// .env is optional; real deployments configure via the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("load config", err)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("open database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.CreateSchema(database.DB); err != nil {
		logging.Error("create schema", err)
		os.Exit(1)
	}
	if err := db.Seed(database.DB); err != nil {
		logging.Error("seed defaults", err)
		os.Exit(1)
	}

	store := db.NewStore(database.DB)
	engine := possync.NewEngine(store, possync.Options{
		ProbeURL:     cfg.ProbeURL,
		ProbeTimeout: cfg.ProbeTimeout,
		PushTimeout:  cfg.PushTimeout,
		Interval:     cfg.SyncInterval,
	})
	go engine.Run(ctx)

	hub := NewWSHub()
	go func() {
		for ev := range engine.Events() {
			hub.BroadcastSyncStatus(ev)
		}
	}()

	posBridge := bridge.New(store, engine)
	h := handlers.NewBridgeHandler(posBridge, engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", h.Products)
	mux.HandleFunc("/api/categories", h.Categories)
	mux.HandleFunc("/api/customers", h.Customers)
	mux.HandleFunc("/api/sales", h.Sales)
	mux.HandleFunc("/api/settings/", h.Settings)
	mux.HandleFunc("/api/sync/now", h.SyncNow)
	mux.HandleFunc("/api/sync/status", h.SyncStatus)
	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("CajaPOS desktop backend starting", map[string]interface{}{"addr": cfg.ListenAddr})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("server exited", err)
		os.Exit(1)
	}
}

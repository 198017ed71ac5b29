/**
 * @description
 * Stream Daemon Entry Point.
 * Bridges the Redis building-event channel onto a WebSocket endpoint so
 * game clients can keep a single live connection instead of polling.
 *
 * Key features:
 * - One Redis subscription fanned out to all connected clients.
 * - Optional per-owner filtering via the ?owner= query parameter.
 * - Ping/pong keep-alive; slow or dead clients are dropped.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 * - github.com/gorilla/websocket
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 */

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/cityforge-project/backend/internal/config"
	"github.com/cityforge-project/backend/internal/db"
	"github.com/cityforge-project/backend/internal/logger"
	"github.com/cityforge-project/backend/internal/services"
)

const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API layer owns auth; the stream is public read-only data
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	logger.Info("🔥 Starting CityForge Stream Daemon...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect Redis
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Event Hub (single Redis subscription, many clients)
	hub := services.NewCityEventHub(redisClient, cfg.City.EventChannel)

	// 4. HTTP Server
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:    ":" + cfg.City.StreamPort,
		Handler: mux,
	}

	go func() {
		logger.Info("🚀 Stream Daemon listening on port %s", cfg.City.StreamPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Stream server failed: %v", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down stream daemon...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Stream daemon exited.")
}

// serveWS upgrades the connection and pumps hub events to the client.
// An optional ?owner= query narrows the stream to one owner's city.
func serveWS(hub *services.CityEventHub, w http.ResponseWriter, r *http.Request) {
	ownerHex := r.URL.Query().Get("owner")
	if ownerHex != "" && !common.IsHexAddress(ownerHex) {
		http.Error(w, "invalid owner address", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: %v", err)
		return
	}

	var events <-chan []byte
	var unsubscribe func()
	if ownerHex != "" {
		events, unsubscribe = hub.SubscribeOwner(common.HexToAddress(ownerHex))
	} else {
		events, unsubscribe = hub.Subscribe()
	}

	// Read loop: we ignore client messages but must drain control frames
	go func() {
		defer unsubscribe()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(PongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Write loop
	go func() {
		ticker := time.NewTicker(PingPeriod)
		defer func() {
			ticker.Stop()
			_ = conn.Close()
		}()

		for {
			select {
			case payload, ok := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

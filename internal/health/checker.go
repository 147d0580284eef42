// Package health exposes liveness/readiness HTTP endpoints: health,
// live and ready handlers over an injected connection-liveness
// dependency.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionObserver is satisfied by the Connection Manager; it reports
// how many connection records currently hold a live OPC UA session.
type ConnectionObserver interface {
	LiveConnectionCount() int
}

// Checker serves /healthz, /health/live and /health/ready.
type Checker struct {
	connections ConnectionObserver
	logger      zerolog.Logger
}

func NewChecker(connections ConnectionObserver, logger zerolog.Logger) *Checker {
	return &Checker{
		connections: connections,
		logger:      logger.With().Str("component", "health-checker").Logger(),
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	LiveConnections int    `json:"live_connections"`
}

// HealthHandler reports process health. The bridge is always "healthy"
// if the process is running: it has no required upstream to be
// degraded by, since OPC UA connections are opened lazily.
func (c *Checker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		LiveConnections: c.connections.LiveConnectionCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// LiveHandler reports whether the process is running at all.
func (c *Checker) LiveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler reports whether the process is ready to accept supervisor
// connections. Readiness here only means the listener is up; individual
// device connections come and go and do not gate it.
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/Shoukan/common/version"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// StatusSource supplies the figures the health server reports.
type StatusSource interface {
	// Ping checks the database.
	Ping() error
	CountRequests(ctx context.Context) (map[resource.Status]int, error)
	ActiveConversations() int
	BreakerState() string
}

// HealthServer answers GET /health (liveness, 503 when the database is
// unreachable) and GET /status (counters). It only runs when HTTP_ADDR is
// set.
type HealthServer struct {
	addr  string
	src   StatusSource
	since time.Time
	mux   *http.ServeMux
	srv   *http.Server
}

type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type healthBody struct {
	Status string `json:"status"`
	buildInfo
	Error string `json:"error,omitempty"`
}

type statusBody struct {
	Status string `json:"status"`
	buildInfo
	BuildTime           string         `json:"build_time"`
	StartedAt           time.Time      `json:"started_at"`
	Uptime              float64        `json:"uptime_seconds"`
	ActiveConversations int            `json:"active_conversations"`
	Requests            map[string]int `json:"requests"`
	Breaker             string         `json:"breaker"`
}

func NewHealthServer(addr string, src StatusSource) *HealthServer {
	h := &HealthServer{addr: addr, src: src, since: time.Now(), mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /status", h.status)
	return h
}

func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Start opens the listener, serves in the background and shuts down when ctx
// ends. It returns once the port is bound.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}
	h.srv = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}
	slog.Info("health server listening", "addr", ln.Addr().String())

	go func() {
		if err := h.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "err", err)
		}
	}()
	context.AfterFunc(ctx, h.Stop)
	return nil
}

// Stop is safe to call more than once, and before Start.
func (h *HealthServer) Stop() {
	if h.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown", "err", err)
	}
}

func build() buildInfo {
	return buildInfo{Version: version.Version, Commit: version.GitCommit}
}

func (h *HealthServer) health(w http.ResponseWriter, _ *http.Request) {
	if err := h.src.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "degraded", buildInfo: build(), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthBody{Status: "ok", buildInfo: build()})
}

func (h *HealthServer) status(w http.ResponseWriter, r *http.Request) {
	body := statusBody{
		Status:              "ok",
		buildInfo:           build(),
		BuildTime:           version.BuildTime,
		StartedAt:           h.since,
		Uptime:              time.Since(h.since).Seconds(),
		ActiveConversations: h.src.ActiveConversations(),
		Requests:            map[string]int{},
		Breaker:             h.src.BreakerState(),
	}
	if h.src.Ping() != nil {
		body.Status = "degraded"
	}
	counts, err := h.src.CountRequests(r.Context())
	if err != nil {
		slog.Warn("health: counting requests", "err", err)
	}
	for st, n := range counts {
		body.Requests[string(st)] = n
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: encoding response", "err", err)
	}
}

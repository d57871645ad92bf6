package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"xtouchd/internal/health"
	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/sensor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ZoneInfo describes one zone for the /zones endpoint.
type ZoneInfo struct {
	Index   int          `json:"index"`
	Name    string       `json:"name"`
	Polygon [][2]float64 `json:"polygon"`
}

// ServerConfig wires the HTTP endpoints.
type ServerConfig struct {
	Listen   string
	Hub      *Hub
	Table    *sensor.Table
	Registry *metrics.Registry
	Health   *health.Checker
	Logger   *logging.Logger
}

// Server serves /ws, /metrics, /healthz and /zones.
type Server struct {
	hub    *Hub
	srv    *http.Server
	logger *logging.Logger

	listener net.Listener
}

// NewServer builds the server without listening.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	if cfg.Table == nil {
		cfg.Table = sensor.DefaultTable()
	}

	s := &Server{hub: cfg.Hub, logger: cfg.Logger.WithComponent("monitor")}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/zones", zonesHandler(cfg.Table))
	if cfg.Registry != nil {
		mux.Handle("/metrics", cfg.Registry.HTTPHandler())
	}
	if cfg.Health != nil {
		mux.Handle("/healthz", cfg.Health.Handler())
	}

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.HandleWS(conn)
}

func zonesHandler(table *sensor.Table) http.Handler {
	zones := table.Zones()
	infos := make([]ZoneInfo, 0, len(zones))
	for _, z := range zones {
		info := ZoneInfo{Index: z.Index, Name: z.Name}
		for _, p := range z.Polygon {
			info.Polygon = append(info.Polygon, [2]float64{p.X, p.Y})
		}
		infos = append(infos, info)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(infos)
	})
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	s.logger.Info("monitor listening", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

// Package status serves a small HTTP surface for a running station: Prometheus
// metrics, a health probe, recent message history and a websocket event feed.
package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"morsekey/buffer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultMessageLimit = 20

// Options configures the server. Nil History, Gatherer or Hub disable the
// matching endpoint.
type Options struct {
	Listen   string
	History  *buffer.RingBuffer
	Gatherer prometheus.Gatherer
	Hub      *Hub
}

// Server owns the HTTP listener.
type Server struct {
	opts    Options
	mux     *http.ServeMux
	srv     *http.Server
	started time.Time
	now     func() time.Time

	mu   sync.Mutex
	addr string
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Messages      int     `json:"messages"`
	FeedClients   int     `json:"feed_clients"`
}

// New builds the routes. Call Start to listen.
func New(opts Options) *Server {
	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.started = s.now()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if opts.History != nil {
		s.mux.HandleFunc("/messages", s.handleMessages)
	}
	if opts.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Hub != nil {
		s.mux.Handle("/events", opts.Hub)
	}
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listener synchronously so configuration errors surface to
// the caller, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.opts.Listen, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	log.Printf("Status: listening on http://%s", s.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Status: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops accepting requests and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: s.now().Sub(s.started).Seconds(),
	}
	if s.opts.History != nil {
		resp.Messages = s.opts.History.GetCount()
	}
	if s.opts.Hub != nil {
		resp.FeedClients = s.opts.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMessages returns the newest messages first; ?limit=N caps the count.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records := s.opts.History.GetRecent(limit)
	if records == nil {
		records = []*buffer.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

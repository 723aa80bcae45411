// Package server implements the internal HTTP APIs: the network balancer API
// and the game server API, with their middleware and background workers.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/models"
	"github.com/woozymasta/overbyte/internal/registry"
)

// NewBalancer creates the network API on top of reg. store may be nil.
func NewBalancer(reg *registry.Registry, store HistoryStore, m *metrics.Balancer, cfg *config.Balancer) *Balancer {
	queueSize := cfg.Storage.QueueSize
	if queueSize < 1 {
		queueSize = 1000
	}

	return &Balancer{
		registry:     reg,
		storage:      store,
		metrics:      m,
		keys:         cfg.Server.InternalKeys,
		limiter:      newRateLimiter(cfg.RateLimit.HardLimitCount, cfg.RateLimit.HardLimitWin, cfg.Server.TrustProxy),
		maxBody:      cfg.Server.MaxBodySize,
		historyLimit: cfg.Storage.HistoryLimit,
		workers:      max(1, cfg.Storage.Workers),
		trustProxy:   cfg.Server.TrustProxy,

		queue:    make(chan historyJob, queueSize),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the history writers and the rate limiter cleanup.
func (s *Balancer) StartWorkers() {
	if s.storage != nil {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
	}

	go s.limiter.gc(s.shutdown, time.Minute, 10*time.Minute)
}

// StopWorkers stops accepting history jobs and waits for the queue to drain.
func (s *Balancer) StopWorkers() {
	s.qmu.Lock()
	if s.stopped {
		s.qmu.Unlock()
		return
	}
	s.stopped = true
	close(s.shutdown)
	close(s.queue)
	s.qmu.Unlock()

	s.wg.Wait()
}

// Handler configures the HTTP routes and returns the main handler.
func (s *Balancer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.trustProxy))

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", metrics.Handler(s.metrics.Registry)).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/network").Subrouter()
	api.Use(s.limiter.Middleware)
	api.Use(InternalKeyMiddleware(s.keys, models.ErrMissingAuth, models.ErrInvalidKey))
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	api.HandleFunc("/assign-server", s.handleAssign).Methods(http.MethodPost)
	api.HandleFunc("/servers", s.handleServers).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.handleHistoryServer).Methods(http.MethodGet)

	return r
}

// RecordEviction queues the history of an evicted server. It is registered
// as a registry eviction listener.
func (s *Balancer) RecordEviction(srv registry.Server) {
	s.metrics.Eviction()
	s.enqueue(historyJob{kind: historyEvict, server: srv, at: time.Now()})
}

func (s *Balancer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeBody(w, r, s.maxBody, &req); err != nil {
		writeError(w, models.ErrMalformedRequest)
		return
	}
	if req.ID == "" || req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		writeError(w, models.ErrMissingFields)
		return
	}

	srv, err := s.registry.Register(registry.Registration{
		ID:      req.ID,
		Host:    req.Host,
		Port:    req.Port,
		Status:  req.Status,
		Version: req.Version,
	})
	if err != nil {
		writeError(w, models.ErrDuplicateServer)
		return
	}

	s.enqueue(historyJob{kind: historyRegister, server: srv, at: srv.RegisteredAt})
	writeJSON(w, http.StatusOK, models.OKResponse{OK: true})
}

func (s *Balancer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req models.HeartbeatRequest
	if err := decodeBody(w, r, s.maxBody, &req); err != nil {
		writeError(w, models.ErrMalformedRequest)
		return
	}
	if req.ID == "" {
		writeError(w, models.ErrMissingFields)
		return
	}

	srv, err := s.registry.Heartbeat(req.ID, req.Players, req.Status)
	if err != nil {
		writeError(w, models.ErrServerNotFound)
		return
	}

	s.enqueue(historyJob{kind: historyHeartbeat, server: srv, at: srv.LastHeartbeat})
	writeJSON(w, http.StatusOK, models.OKResponse{OK: true})
}

func (s *Balancer) handleAssign(w http.ResponseWriter, _ *http.Request) {
	srv, err := s.registry.Assign()
	if err != nil {
		s.metrics.Assignment("none")
		writeError(w, models.ErrNoServers)
		return
	}

	s.metrics.Assignment("ok")
	log.Info().Str("server", srv.ID).Int("players", srv.Players).Msg("Assigned game server")
	writeJSON(w, http.StatusOK, models.AssignResponse{ServerID: srv.ID, Host: srv.Host, Port: srv.Port})
}

func (s *Balancer) handleServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Balancer) handleHistory(w http.ResponseWriter, _ *http.Request) {
	if s.storage == nil {
		writeError(w, models.ErrHistoryDisabled)
		return
	}

	records, err := s.storage.GetServers(s.historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch server history")
		writeError(w, models.ErrStorageFailure)
		return
	}
	if records == nil {
		records = []models.ServerRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Balancer) handleHistoryServer(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeError(w, models.ErrHistoryDisabled)
		return
	}

	id := mux.Vars(r)["id"]
	record, err := s.storage.GetServer(id)
	if err != nil {
		log.Error().Err(err).Str("server_id", id).Msg("Failed to fetch server record")
		writeError(w, models.ErrStorageFailure)
		return
	}
	if record == nil {
		writeError(w, models.ErrServerNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

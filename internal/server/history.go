package server

import (
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/overbyte/internal/models"
)

// enqueue hands a job to the history workers without blocking the caller.
func (s *Balancer) enqueue(job historyJob) {
	if s.storage == nil {
		return
	}

	s.qmu.RLock()
	defer s.qmu.RUnlock()

	if s.stopped {
		s.metrics.History("dropped")
		log.Debug().Str("server", job.server.ID).Stringer("event", job.kind).Msg("History workers stopped, event dropped")
		return
	}

	select {
	case s.queue <- job:
	default:
		s.metrics.History("dropped")
		log.Warn().
			Str("server", job.server.ID).
			Stringer("event", job.kind).
			Msg("History queue full, event dropped")
	}
}

// worker is a background goroutine that persists jobs from the history queue.
func (s *Balancer) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

func (s *Balancer) processJob(job historyJob) {
	srv := job.server

	var err error
	switch job.kind {
	case historyRegister:
		err = s.storage.RecordRegister(models.ServerRecord{
			ID:       srv.ID,
			Host:     srv.Host,
			Port:     srv.Port,
			Status:   srv.Status,
			Version:  srv.Version,
			LastSeen: job.at,
		})
	case historyHeartbeat:
		err = s.storage.RecordHeartbeat(srv.ID, srv.Players, srv.Status, job.at)
	case historyEvict:
		err = s.storage.MarkEvicted(srv.ID, job.at)
	}

	if err != nil {
		s.metrics.History("failed")
		log.Error().Err(err).Str("server", srv.ID).Stringer("event", job.kind).Msg("Failed to save server history")
		return
	}

	s.metrics.History("ok")
	log.Trace().Str("server", srv.ID).Stringer("event", job.kind).Msg("Server history saved")
}

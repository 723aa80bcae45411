// Package reporter announces a game server to the network balancer and keeps
// its player count fresh with periodic heartbeats.
package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"

	"github.com/woozymasta/overbyte/internal/models"
	"github.com/woozymasta/overbyte/internal/registry"
	"github.com/woozymasta/overbyte/internal/vars"
)

// DefaultInterval is the heartbeat period used when Config.Interval is unset.
const DefaultInterval = 15 * time.Second

// Config describes how the server registers itself.
type Config struct {
	URL      string
	Key      string
	ServerID string
	Host     string
	Port     int
	Interval time.Duration
}

// Reporter keeps one game server registered with the balancer.
type Reporter struct {
	client     *http.Client
	players    func() int
	cfg        Config
	registered bool
}

// New creates a reporter. players is sampled on every heartbeat.
func New(cfg Config, players func() int) *Reporter {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Reporter{
		cfg:     cfg,
		players: players,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Run registers and heartbeats until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (r *Reporter) Run(ctx context.Context) error {
	r.tick(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	if !r.registered {
		if err := r.register(ctx); err != nil {
			log.Warn().Err(err).Str("balancer", r.cfg.URL).Msg("Failed to register with network balancer")
			return
		}
		r.registered = true
		log.Info().Str("id", r.cfg.ServerID).Str("balancer", r.cfg.URL).Msg("Registered with network balancer")
	}

	err := r.heartbeat(ctx)
	var apiErr *models.APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr) && apiErr.Code == models.ErrServerNotFound.Code:
		log.Warn().Str("id", r.cfg.ServerID).Msg("Balancer forgot this server, registering again")
		r.registered = false
		if err := r.register(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to register with network balancer")
			return
		}
		r.registered = true
	default:
		log.Warn().Err(err).Msg("Heartbeat to network balancer failed")
	}
}

func (r *Reporter) register(ctx context.Context) error {
	return r.post(ctx, "/network/register", models.RegisterRequest{
		ID:      r.cfg.ServerID,
		Host:    r.cfg.Host,
		Port:    r.cfg.Port,
		Status:  registry.StatusOnline,
		Version: vars.Version,
	})
}

func (r *Reporter) heartbeat(ctx context.Context) error {
	return r.post(ctx, "/network/heartbeat", models.HeartbeatRequest{
		ID:      r.cfg.ServerID,
		Players: r.players(),
		Status:  registry.StatusOnline,
	})
}

// post sends body and turns a non-2xx answer into an *models.APIError.
func (r *Reporter) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.Key)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &models.APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return apiErr
}

package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/models"
	"github.com/woozymasta/overbyte/internal/registry"
)

const testKey = "secret-key"

type memoryStore struct {
	mu      sync.Mutex
	events  []string
	records map[string]models.ServerRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]models.ServerRecord)}
}

func (m *memoryStore) RecordRegister(s models.ServerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "register:"+s.ID)
	m.records[s.ID] = s
	return nil
}

func (m *memoryStore) RecordHeartbeat(id string, players int, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "heartbeat:"+id)
	rec := m.records[id]
	rec.Players = players
	rec.Status = status
	rec.Heartbeats++
	m.records[id] = rec
	return nil
}

func (m *memoryStore) MarkEvicted(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "evict:"+id)
	rec := m.records[id]
	rec.Status = "evicted"
	rec.EvictedAt = &at
	m.records[id] = rec
	return nil
}

func (m *memoryStore) GetServers(int) ([]models.ServerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ServerRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) GetServer(id string) (*models.ServerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryStore) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func balancerConfig() *config.Balancer {
	cfg := &config.Balancer{}
	cfg.Server.InternalKeys = []string{"other-key", testKey}
	cfg.Server.MaxBodySize = 4096
	cfg.Storage.Workers = 1
	cfg.Storage.QueueSize = 16
	cfg.Storage.HistoryLimit = 10
	cfg.RateLimit.HardLimitCount = 1000
	cfg.RateLimit.HardLimitWin = time.Minute
	return cfg
}

type balancerFixture struct {
	reg   *registry.Registry
	store *memoryStore
	srv   *Balancer
	ts    *httptest.Server
}

func newBalancerFixture(t *testing.T, cfg *config.Balancer, store HistoryStore) *balancerFixture {
	t.Helper()

	reg := registry.New(registry.Config{})
	m := metrics.NewBalancer(metrics.BalancerSources{Servers: reg.Len, Online: reg.Online, Players: reg.Players})
	srv := NewBalancer(reg, store, m, cfg)
	srv.StartWorkers()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.StopWorkers()
	})

	f := &balancerFixture{reg: reg, srv: srv, ts: ts}
	if ms, ok := store.(*memoryStore); ok {
		f.store = ms
	}
	return f
}

func (f *balancerFixture) do(t *testing.T, method, path, key string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func register(id string, port int) models.RegisterRequest {
	return models.RegisterRequest{ID: id, Host: "10.0.0.1", Port: port, Status: registry.StatusOnline}
}

func TestBalancerAuth(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)

	resp, body := f.do(t, http.MethodPost, "/network/assign-server", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["code"] != "41" {
		t.Fatalf("missing key: %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/network/assign-server", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized || body["code"] != "44" {
		t.Fatalf("wrong key: %d %v", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health requires no key, got %d", resp.StatusCode)
	}
}

func TestBalancerRegisterAndAssign(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)

	resp, body := f.do(t, http.MethodPost, "/network/assign-server", testKey, nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["code"] != "45" {
		t.Fatalf("empty registry: %d %v", resp.StatusCode, body)
	}

	for _, id := range []string{"a", "b"} {
		resp, body = f.do(t, http.MethodPost, "/network/register", testKey, register(id, 3003))
		if resp.StatusCode != http.StatusOK || body["ok"] != true {
			t.Fatalf("register %s: %d %v", id, resp.StatusCode, body)
		}
	}

	resp, body = f.do(t, http.MethodPost, "/network/register", testKey, register("a", 3003))
	if resp.StatusCode != http.StatusConflict || body["code"] != "45" {
		t.Fatalf("duplicate: %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/network/register", testKey, models.RegisterRequest{ID: "c"})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "41" {
		t.Fatalf("missing fields: %d %v", resp.StatusCode, body)
	}

	f.do(t, http.MethodPost, "/network/heartbeat", testKey, models.HeartbeatRequest{ID: "a", Players: 4, Status: registry.StatusOnline})

	resp, body = f.do(t, http.MethodPost, "/network/assign-server", testKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %v", resp.StatusCode, body)
	}
	if body["serverId"] != "b" || body["host"] != "10.0.0.1" || body["port"] != float64(3003) {
		t.Fatalf("assign picked %v, want b", body)
	}
}

func TestBalancerHeartbeatUnknown(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)

	resp, body := f.do(t, http.MethodPost, "/network/heartbeat", testKey, models.HeartbeatRequest{ID: "ghost"})
	if resp.StatusCode != http.StatusNotFound || body["code"] != "47" {
		t.Fatalf("unknown heartbeat: %d %v", resp.StatusCode, body)
	}
}

func TestBalancerMalformedBody(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)

	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/network/register", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBalancerHistory(t *testing.T) {
	store := newMemoryStore()
	f := newBalancerFixture(t, balancerConfig(), store)

	resp, body := f.do(t, http.MethodPost, "/network/register", testKey, register("a", 3003))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: %d %v", resp.StatusCode, body)
	}
	f.do(t, http.MethodPost, "/network/heartbeat", testKey, models.HeartbeatRequest{ID: "a", Players: 2, Status: registry.StatusOnline})

	srv, _ := f.reg.Get("a")
	f.srv.RecordEviction(srv)
	f.srv.StopWorkers()

	events := store.snapshot()
	want := []string{"register:a", "heartbeat:a", "evict:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}

	rec := store.records["a"]
	if rec.Status != "evicted" || rec.Players != 2 || rec.Heartbeats != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestBalancerHistoryDisabled(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)

	resp, body := f.do(t, http.MethodGet, "/network/history", testKey, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "48" {
		t.Fatalf("history disabled: %d %v", resp.StatusCode, body)
	}
}

func TestBalancerHistoryServer(t *testing.T) {
	store := newMemoryStore()
	f := newBalancerFixture(t, balancerConfig(), store)

	f.do(t, http.MethodPost, "/network/register", testKey, register("a", 3003))
	f.srv.StopWorkers()

	resp, body := f.do(t, http.MethodGet, "/network/history/a", testKey, nil)
	if resp.StatusCode != http.StatusOK || body["id"] != "a" {
		t.Fatalf("history/a: %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/network/history/missing", testKey, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "47" {
		t.Fatalf("history/missing: %d %v", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodGet, "/network/history/a", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("history/a without key: %d", resp.StatusCode)
	}

	off := newBalancerFixture(t, balancerConfig(), nil)
	resp, body = off.do(t, http.MethodGet, "/network/history/a", testKey, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "48" {
		t.Fatalf("history disabled: %d %v", resp.StatusCode, body)
	}
}

func TestBalancerServers(t *testing.T) {
	f := newBalancerFixture(t, balancerConfig(), nil)
	f.do(t, http.MethodPost, "/network/register", testKey, register("a", 3003))

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/network/servers", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var servers []registry.Server
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 || servers[0].ID != "a" || servers[0].Port != 3003 {
		t.Fatalf("servers = %+v", servers)
	}
}

func TestBalancerRateLimit(t *testing.T) {
	cfg := balancerConfig()
	cfg.RateLimit.HardLimitCount = 2
	f := newBalancerFixture(t, cfg, nil)

	for i := 0; i < 2; i++ {
		f.do(t, http.MethodGet, "/network/servers", testKey, nil)
	}
	resp, body := f.do(t, http.MethodGet, "/network/servers", testKey, nil)
	if resp.StatusCode != http.StatusTooManyRequests || body["code"] != "42" {
		t.Fatalf("rate limit: %d %v", resp.StatusCode, body)
	}
}

func TestGetRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if got := GetRealIP(r, false); got != "192.0.2.1" {
		t.Fatalf("untrusted = %s", got)
	}
	if got := GetRealIP(r, true); got != "203.0.113.5" {
		t.Fatalf("trusted = %s", got)
	}
}

func TestEnqueueAfterStopWorkers(t *testing.T) {
	store := newMemoryStore()
	f := newBalancerFixture(t, balancerConfig(), store)
	f.srv.StopWorkers()

	f.srv.RecordEviction(registry.Server{ID: "late"})
	resp, body := f.do(t, http.MethodPost, "/network/register", testKey, register("a", 3003))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register after stop: %d %v", resp.StatusCode, body)
	}
	if events := store.snapshot(); len(events) != 0 {
		t.Fatalf("events persisted after stop: %v", events)
	}
}

func TestEnqueueRacesStopWorkers(t *testing.T) {
	store := newMemoryStore()
	f := newBalancerFixture(t, balancerConfig(), store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f.srv.RecordEviction(registry.Server{ID: "s"})
			}
		}()
	}
	f.srv.StopWorkers()
	wg.Wait()
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	runs  map[string]Run      // id -> run
	byTen map[string][]string // tenant -> run ids, oldest first
	// Callback queue state
	deliveries map[string]*CallbackDelivery // id -> delivery
	order      []string                     // delivery ids, oldest first
	dedup      map[string]string            // tenant|event|url|key -> delivery id
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]Run{},
		byTen:      map[string][]string{},
		deliveries: map[string]*CallbackDelivery{},
		dedup:      map[string]string{},
	}
}

func (m *Memory) SaveRun(ctx context.Context, run Run) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if prev, ok := m.runs[run.ID]; ok {
		if prev.Tenant != run.Tenant {
			return Run{}, ErrNotFound
		}
	} else {
		m.byTen[run.Tenant] = append(m.byTen[run.Tenant], run.ID)
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.Tenant != tenantID {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	out := []Run{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.runs[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[key]; ok {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &CallbackDelivery{
		ID: id, TenantID: tenantID, RunID: runID, EventType: eventType, URL: url, Secret: secret,
		Payload: payload, Status: CallbackPending, NextAttemptAt: time.Now(),
	}
	m.order = append(m.order, id)
	m.dedup[key] = id
	return id, nil
}

func (m *Memory) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []CallbackDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == CallbackPending || d.Status == CallbackRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = CallbackDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = CallbackRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = CallbackFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListCallbacks(ctx context.Context, tenantID, runID string) ([]CallbackDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []CallbackDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.TenantID == tenantID && (runID == "" || d.RunID == runID) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

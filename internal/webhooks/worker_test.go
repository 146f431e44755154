package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetvrp/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkCallback(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailCallback(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get(EventTypeHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	pub := NewPublisher(rs)
	id, err := pub.Emit(context.Background(), "t1", "run1", "solve.completed", srv.URL, "secret", map[string]any{"totalDistance": 60})
	if err != nil || id == "" {
		t.Fatalf("emit failed: %v", err)
	}

	w.processOnce()

	if gotType != "solve.completed" || !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("missing or bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	var env Envelope
	if err := json.Unmarshal(gotBody, &env); err != nil || env.RunID != "run1" || env.Type != "solve.completed" {
		t.Fatalf("bad envelope %s: %v", gotBody, err)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	_, _ = rs.Memory.EnqueueCallback(context.Background(), "t1", "run1", "solve.failed", srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected one retry mark, got %+v", rs.marks)
	}

	// force the retry due now
	items, _ := rs.ListCallbacks(context.Background(), "t1", "run1")
	now := time.Now().Add(-time.Second)
	_ = rs.Memory.MarkCallback(context.Background(), items[0].ID, false, &now, "", 500, 0)

	w.processOnce()
	if len(rs.fails) != 1 {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff sequence")
	}
	if nextBackoff(50) != 1024*time.Second || nextBackoff(-1) != time.Second {
		t.Fatalf("backoff not clamped")
	}
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	if !VerifyHMAC("k", body, sig) || VerifyHMAC("other", body, sig) || VerifyHMAC("k", body, "zz") {
		t.Fatal("signature round trip failed")
	}
}

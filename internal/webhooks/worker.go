package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"fleetvrp/internal/metrics"
	"fleetvrp/internal/store"
)

// Worker polls the store for due callbacks and POSTs them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
}

func NewWorker(s store.Store, maxAttempts int, timeout time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: timeout}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Interval: time.Second}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueCallbacks(ctx, 50)
	if err != nil {
		log.Printf("callbacks: fetch due err=%v", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.CallbackDelivery) {
	success := false
	next := time.Now().Add(nextBackoff(it.Attempts))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailCallback(ctx, it.ID, err.Error(), 0, 0)
		metrics.CallbackDeliveries.WithLabelValues(it.EventType, "failed").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	if err == nil && resp != nil {
		code = resp.StatusCode
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		if code >= 200 && code < 300 {
			success = true
		}
	}
	lastErr := ""
	if !success {
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = "status " + strconv.Itoa(code)
		}
	}
	status := "delivered"
	switch {
	case success:
		_ = w.Store.MarkCallback(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		_ = w.Store.FailCallback(ctx, it.ID, lastErr, code, latency)
		log.Printf("callbacks: giving up id=%s run_id=%s attempts=%d err=%s", it.ID, it.RunID, it.Attempts+1, lastErr)
	default:
		status = "retry"
		_ = w.Store.MarkCallback(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	metrics.CallbackDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.CallbackLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}

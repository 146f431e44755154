package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CallbackDelivery is one queued POST of a run event to a caller's URL.
type CallbackDelivery struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	RunID         string     `json:"runId"`
	EventType     string     `json:"eventType"`
	URL           string     `json:"url"`
	Secret        string     `json:"-"`
	Payload       []byte     `json:"-"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
	LatencyMs     int        `json:"latencyMs,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}

// Callback statuses.
const (
	CallbackPending   = "pending"
	CallbackRetry     = "retry"
	CallbackDelivered = "delivered"
	CallbackFailed    = "failed"
)

// computeDedupKey uses the event id when the payload has one, otherwise a
// short hash of the payload, so the same event is never queued twice.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

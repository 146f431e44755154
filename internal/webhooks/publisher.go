package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetvrp/internal/store"
)

// Publisher queues run events for delivery to a caller-supplied URL.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Envelope is the JSON body POSTed to callback URLs.
type Envelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	RunID    string `json:"runId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit enqueues eventType for runID. The worker signs the body with secret
// at send time.
func (p *Publisher) Emit(ctx context.Context, tenantID, runID, eventType, url, secret string, data any) (string, error) {
	body, err := json.Marshal(Envelope{
		ID:       fmt.Sprintf("evt_%s_%s", runID, eventType),
		Type:     eventType,
		TenantID: tenantID,
		RunID:    runID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("callback: encode %s: %w", eventType, err)
	}
	return p.Store.EnqueueCallback(ctx, tenantID, runID, eventType, url, secret, body)
}

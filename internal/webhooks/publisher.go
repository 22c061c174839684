package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/logger"
	"fleetroute/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   logger.Logger
}

func NewPublisher(s store.Store, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Publisher{Store: s, Log: log}
}

// Emit enqueues one delivery per subscription of the tenant to eventType and
// returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		p.Log.Warnf("webhook subscriptions lookup failed tenant=%s event=%s: %v", tenantID, eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.NewString(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Log.Errorf("webhook payload encode failed event=%s: %v", eventType, err)
		return 0
	}
	queued := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warnf("webhook enqueue failed subscription=%s: %v", s.ID, err)
			continue
		}
		queued++
	}
	return queued
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	plans   map[string]model.Plan           // id -> plan
	byTen   map[string][]string             // tenant -> plan ids, oldest first
	metrics map[string][]model.PlanMetrics  // tenant -> metrics, oldest first
	optCfg  map[string]model.OptimizerConfig
	subs    map[string][]model.Subscription // tenant -> subscriptions
	// webhook queue state
	deliveries         map[string]*WebhookDelivery
	deliveriesByTenant map[string][]string
	order              []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		plans:              map[string]model.Plan{},
		byTen:              map[string][]string{},
		metrics:            map[string][]model.PlanMetrics{},
		optCfg:             map[string]model.OptimizerConfig{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*WebhookDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

func newPlanID() string { return uuid.Must(uuid.NewV7()).String() }

func (m *Memory) SavePlan(ctx context.Context, p model.Plan) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = newPlanID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.plans[p.ID]; !exists {
		m.byTen[p.TenantID] = append(m.byTen[p.TenantID], p.ID)
	}
	p.Metrics = nil
	m.plans[p.ID] = p
	return p, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.TenantID != tenantID {
		return model.Plan{}, ErrNotFound
	}
	for i := range m.metrics[tenantID] {
		if m.metrics[tenantID][i].PlanID == id {
			mx := m.metrics[tenantID][i]
			p.Metrics = &mx
			break
		}
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
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
	out := []model.Plan{}
	var last string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		p := m.plans[ids[i]]
		last = p.ID
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, mx model.PlanMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mx.CreatedAt.IsZero() {
		mx.CreatedAt = time.Now().UTC()
	}
	items := m.metrics[mx.TenantID]
	for i := range items {
		if items[i].PlanID == mx.PlanID {
			items[i] = mx
			return nil
		}
	}
	m.metrics[mx.TenantID] = append(items, mx)
	return nil
}

// ListPlanMetrics returns metrics newest first.
func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID string, since time.Time, limit int) ([]model.PlanMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	items := m.metrics[tenantID]
	out := []model.PlanMetrics{}
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		if !since.IsZero() && items[i].CreatedAt.Before(since) {
			continue
		}
		out = append(out, items[i])
	}
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	items := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i, s := range items {
			if s.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Subscription{}
	for i := start; i < len(items) && len(out) < limit; i++ {
		out = append(out, items[i])
	}
	next := ""
	if len(out) == limit && start+limit < len(items) {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.subs[tenantID]
	for i, s := range items {
		if s.ID == id {
			m.subs[tenantID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	now := time.Now()
	m.deliveries[id] = &WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: &now}
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && (d.NextAttemptAt == nil || !d.NextAttemptAt.After(now)) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
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
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		d.NextAttemptAt = nil
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	d.NextAttemptAt = &next
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	d.NextAttemptAt = nil
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []WebhookDelivery{}
	var last string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.deliveries[ids[i]]
		last = ids[i]
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	now := time.Now()
	d.Status = DeliveryPending
	d.NextAttemptAt = &now
	return nil
}

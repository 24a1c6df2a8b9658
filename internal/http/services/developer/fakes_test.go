package developer

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// Fakes en memoria, lo justo para ejercitar el CRUD del portal.

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*repository.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: make(map[string]*repository.Client)}
}

func (r *fakeClientRepo) Create(_ context.Context, c *repository.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.clients {
		if ex.ClientID == c.ClientID {
			return repository.ErrConflict
		}
	}
	cp := *c
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.clients[c.ID] = &cp
	return nil
}

func (r *fakeClientRepo) GetByID(_ context.Context, id string) (*repository.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeClientRepo) GetByClientID(_ context.Context, clientID string) (*repository.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.ClientID == clientID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeClientRepo) GetActiveByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	c, err := r.GetByClientID(ctx, clientID)
	if err != nil || !c.Active {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *fakeClientRepo) ListByUser(_ context.Context, userID string) ([]repository.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Client
	for _, c := range r.clients {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeClientRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	list, _ := r.ListByUser(ctx, userID)
	return len(list), nil
}

func (r *fakeClientRepo) Update(_ context.Context, c *repository.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	r.clients[c.ID] = &cp
	return nil
}

func (r *fakeClientRepo) UpdateSecretHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.SecretHash = hash
	return nil
}

func (r *fakeClientRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Active = false
	return nil
}

func (r *fakeClientRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.clients, id)
	return nil
}

type fakeWebhookRepo struct {
	mu    sync.Mutex
	hooks map[string]*repository.Webhook
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{hooks: make(map[string]*repository.Webhook)}
}

func (r *fakeWebhookRepo) Create(_ context.Context, w *repository.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.hooks[w.ID] = &cp
	return nil
}

func (r *fakeWebhookRepo) GetByID(_ context.Context, id string) (*repository.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.hooks[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeWebhookRepo) ListByClient(_ context.Context, clientID string) ([]repository.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Webhook
	for _, w := range r.hooks {
		if w.ClientID == clientID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) CountByClient(ctx context.Context, clientID string) (int, error) {
	list, _ := r.ListByClient(ctx, clientID)
	return len(list), nil
}

func (r *fakeWebhookRepo) ListActiveByClientAndEvent(_ context.Context, clientID, event string) ([]repository.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Webhook
	for _, w := range r.hooks {
		if w.ClientID == clientID && w.Active && w.Subscribed(event) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, w *repository.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[w.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *w
	cp.UpdatedAt = time.Now()
	r.hooks[w.ID] = &cp
	return nil
}

func (r *fakeWebhookRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.hooks, id)
	return nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries []repository.WebhookDelivery
}

func (r *fakeDeliveryRepo) Create(_ context.Context, d *repository.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, *d)
	return nil
}

func (r *fakeDeliveryRepo) GetByID(_ context.Context, id string) (*repository.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.deliveries {
		if r.deliveries[i].ID == id {
			cp := r.deliveries[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeDeliveryRepo) Update(_ context.Context, d *repository.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.deliveries {
		if r.deliveries[i].ID == d.ID {
			r.deliveries[i] = *d
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeDeliveryRepo) ListByWebhook(_ context.Context, webhookID string, limit int) ([]repository.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.WebhookDelivery
	for _, d := range r.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]repository.WebhookDelivery, error) {
	return nil, nil
}

func (r *fakeDeliveryRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type recordPublisher struct {
	mu     sync.Mutex
	events []string

	// onDispatch corre dentro de Dispatch, antes de registrar el evento.
	// Permite a los tests observar el estado del mundo en ese instante.
	onDispatch func(ctx context.Context, clientID string)
}

func (p *recordPublisher) Publish(_ context.Context, _, event string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordPublisher) Dispatch(ctx context.Context, clientID, event string, _ map[string]any) error {
	if p.onDispatch != nil {
		p.onDispatch(ctx, clientID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

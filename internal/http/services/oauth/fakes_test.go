package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// Repos en memoria para ejercitar los services sin Postgres. Los métodos
// replican la semántica documentada en las interfaces, mutex incluido para
// los tests de concurrencia.

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*repository.Client // por UUID interno
}

func newFakeClientRepo(cs ...*repository.Client) *fakeClientRepo {
	r := &fakeClientRepo{clients: make(map[string]*repository.Client)}
	for _, c := range cs {
		cp := *c
		r.clients[c.ID] = &cp
	}
	return r
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

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*repository.AuthorizationCode // por hash
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: make(map[string]*repository.AuthorizationCode)}
}

func (r *fakeCodeRepo) Create(_ context.Context, c *repository.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.codes[c.CodeHash] = &cp
	return nil
}

func (r *fakeCodeRepo) Consume(_ context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[codeHash]
	if !ok || c.UsedAt != nil || !time.Now().Before(c.ExpiresAt) {
		return nil, repository.ErrNotFound
	}
	now := time.Now()
	c.UsedAt = &now
	cp := *c
	return &cp, nil
}

func (r *fakeCodeRepo) DeleteDead(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, c := range r.codes {
		if c.UsedAt != nil || !time.Now().Before(c.ExpiresAt) {
			delete(r.codes, h)
			n++
		}
	}
	return n, nil
}

type fakeAccessRepo struct {
	mu     sync.Mutex
	tokens map[string]*repository.AccessToken // por UUID
}

func newFakeAccessRepo() *fakeAccessRepo {
	return &fakeAccessRepo{tokens: make(map[string]*repository.AccessToken)}
}

func (r *fakeAccessRepo) Create(_ context.Context, t *repository.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.tokens[t.ID] = &cp
	return nil
}

func (r *fakeAccessRepo) GetByID(_ context.Context, id string) (*repository.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccessRepo) GetByHash(_ context.Context, hash string) (*repository.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccessRepo) GetValidByHash(ctx context.Context, hash string) (*repository.AccessToken, error) {
	t, err := r.GetByHash(ctx, hash)
	if err != nil || !t.Valid(time.Now()) {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r *fakeAccessRepo) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (r *fakeAccessRepo) DeleteDead(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if !t.Valid(time.Now()) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*repository.RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: make(map[string]*repository.RefreshToken)}
}

func (r *fakeRefreshRepo) Create(_ context.Context, t *repository.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *fakeRefreshRepo) GetByHash(_ context.Context, hash string) (*repository.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRefreshRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.RevokedAt = &now
	return true, nil
}

func (r *fakeRefreshRepo) RevokeByAccessTokenID(_ context.Context, accessTokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessTokenID == accessTokenID && t.RevokedAt == nil {
			now := time.Now()
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeRefreshRepo) DeleteDead(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if !t.Valid(time.Now()) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// recordPublisher captura los eventos publicados por los services.
type recordPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	ClientID string
	Event    string
	Data     map[string]any
}

func (p *recordPublisher) Publish(_ context.Context, clientID, event string, data map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{ClientID: clientID, Event: event, Data: data})
}

func (p *recordPublisher) byType(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

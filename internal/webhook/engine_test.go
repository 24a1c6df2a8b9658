package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

// Repos en memoria: suficiente para ejercitar el fan-out y los reintentos.

type memWebhookRepo struct {
	mu    sync.Mutex
	hooks map[string]*repository.Webhook
}

func newMemWebhookRepo(ws ...*repository.Webhook) *memWebhookRepo {
	r := &memWebhookRepo{hooks: make(map[string]*repository.Webhook)}
	for _, w := range ws {
		cp := *w
		r.hooks[w.ID] = &cp
	}
	return r
}

func (r *memWebhookRepo) Create(_ context.Context, w *repository.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.hooks[w.ID] = &cp
	return nil
}

func (r *memWebhookRepo) GetByID(_ context.Context, id string) (*repository.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.hooks[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memWebhookRepo) ListByClient(_ context.Context, clientID string) ([]repository.Webhook, error) {
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

func (r *memWebhookRepo) CountByClient(ctx context.Context, clientID string) (int, error) {
	list, _ := r.ListByClient(ctx, clientID)
	return len(list), nil
}

func (r *memWebhookRepo) ListActiveByClientAndEvent(_ context.Context, clientID, event string) ([]repository.Webhook, error) {
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

func (r *memWebhookRepo) Update(_ context.Context, w *repository.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[w.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *w
	r.hooks[w.ID] = &cp
	return nil
}

func (r *memWebhookRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, id)
	return nil
}

type memDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]*repository.WebhookDelivery

	// snapshot del next_retry_at con el que nació cada fila
	createdWithRetry []*time.Time
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{deliveries: make(map[string]*repository.WebhookDelivery)}
}

func (r *memDeliveryRepo) Create(_ context.Context, d *repository.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.deliveries[d.ID] = &cp
	if d.NextRetryAt != nil {
		t := *d.NextRetryAt
		r.createdWithRetry = append(r.createdWithRetry, &t)
	} else {
		r.createdWithRetry = append(r.createdWithRetry, nil)
	}
	return nil
}

func (r *memDeliveryRepo) GetByID(_ context.Context, id string) (*repository.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deliveries[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memDeliveryRepo) Update(_ context.Context, d *repository.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[d.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *memDeliveryRepo) ListByWebhook(_ context.Context, webhookID string, limit int) ([]repository.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.WebhookDelivery
	for _, d := range r.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, *d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimDue replica el claim condicional del store: bajo el mismo lock, las
// filas vencidas se devuelven y su next_retry_at salta a now+lease, así dos
// sweeps concurrentes nunca reclaman la misma entrega.
func (r *memDeliveryRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]repository.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	leased := now.Add(lease)
	var out []repository.WebhookDelivery
	for _, d := range r.deliveries {
		if (d.Status == repository.DeliveryPending || d.Status == repository.DeliveryFailed) &&
			d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			t := leased
			d.NextRetryAt = &t
			cp := *d
			cp.NextRetryAt = &t
			out = append(out, cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memDeliveryRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.deliveries {
		switch d.Status {
		case repository.DeliveryDelivered, repository.DeliveryAbandoned:
			if d.CreatedAt.Before(cutoff) {
				delete(r.deliveries, id)
				n++
			}
		}
	}
	return n, nil
}

func (r *memDeliveryRepo) all() []repository.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.WebhookDelivery
	for _, d := range r.deliveries {
		out = append(out, *d)
	}
	return out
}

func testHook(id, url string) *repository.Webhook {
	return &repository.Webhook{
		ID:       id,
		UserID:   "dev-1",
		ClientID: "client-1",
		URL:      url,
		Secret:   "whsec_0123456789abcdef0123456789abcdef",
		Events:   []string{repository.EventTokenCreated, repository.EventTokenRevoked},
		Active:   true,
	}
}

func TestDispatch_SignedDelivery(t *testing.T) {
	type received struct {
		body    []byte
		headers http.Header
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- received{body: b, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := testHook("wh-1", srv.URL)
	hooks := newMemWebhookRepo(hook)
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second})

	err := e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated,
		map[string]any{"client_id": "kg_client_x", "grant_type": "client_credentials"})
	require.NoError(t, err)

	rec := <-got

	// firma verificable con el secret de la suscripción, sobre el body exacto
	require.True(t, VerifySignature(hook.Secret, rec.body, rec.headers.Get(HeaderSignature)))
	require.Equal(t, repository.EventTokenCreated, rec.headers.Get(HeaderEvent))
	require.NotEmpty(t, rec.headers.Get(HeaderDelivery))
	require.Equal(t, "application/json", rec.headers.Get("Content-Type"))

	// envelope {event, timestamp, data}
	var env struct {
		Event     string         `json:"event"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.body, &env))
	require.Equal(t, repository.EventTokenCreated, env.Event)
	_, err = time.Parse(time.RFC3339, env.Timestamp)
	require.NoError(t, err)
	require.Equal(t, "kg_client_x", env.Data["client_id"])

	all := deliveries.all()
	require.Len(t, all, 1)
	require.Equal(t, repository.DeliveryDelivered, all[0].Status)
	require.Equal(t, 1, all[0].Attempts)
	require.NotNil(t, all[0].DeliveredAt)
	require.Nil(t, all[0].NextRetryAt)
}

func TestDispatch_TamperedBodyFailsVerification(t *testing.T) {
	body := []byte(`{"event":"token.created","data":{}}`)
	sig := Sign("secret-a", body)

	require.True(t, VerifySignature("secret-a", body, sig))
	require.False(t, VerifySignature("secret-a", append(body, ' '), sig))
	require.False(t, VerifySignature("secret-b", body, sig))
}

func TestDispatch_FanOutIsolatesFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	hooks := newMemWebhookRepo(testHook("wh-ok", okSrv.URL), testHook("wh-bad", badSrv.URL))
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Minute})

	err := e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"})
	require.NoError(t, err)

	byStatus := map[string]int{}
	for _, d := range deliveries.all() {
		byStatus[d.Status]++
	}
	require.Equal(t, 1, byStatus[repository.DeliveryDelivered])
	require.Equal(t, 1, byStatus[repository.DeliveryFailed])

	// la fallida quedó agendada con el backoff base
	for _, d := range deliveries.all() {
		if d.Status == repository.DeliveryFailed {
			require.NotNil(t, d.NextRetryAt)
			require.InDelta(t, time.Until(*d.NextRetryAt).Seconds(), 60, 5)
			require.Contains(t, d.ResponseBody, "boom")
		}
	}
}

func TestDispatch_NoSubscribersIsNoop(t *testing.T) {
	hooks := newMemWebhookRepo()
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, nil))
	require.Empty(t, deliveries.all())
}

func TestBackoffDoubles(t *testing.T) {
	e := NewEngine(newMemWebhookRepo(), newMemDeliveryRepo(), Config{BaseDelay: time.Minute})

	require.Equal(t, time.Minute, e.backoff(1))
	require.Equal(t, 2*time.Minute, e.backoff(2))
	require.Equal(t, 4*time.Minute, e.backoff(3))
}

func TestSweepRetries_AbandonsAfterMaxAttempts(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hooks := newMemWebhookRepo(testHook("wh-1", srv.URL))
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Millisecond, MaxAttempts: 3})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))

	// dos barridas más, cada una después del backoff
	for i := 0; i < 2; i++ {
		time.Sleep(10 * time.Millisecond)
		n, err := e.SweepRetries(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	all := deliveries.all()
	require.Len(t, all, 1)
	require.Equal(t, repository.DeliveryAbandoned, all[0].Status)
	require.Equal(t, 3, all[0].Attempts)
	require.Nil(t, all[0].NextRetryAt)
	require.Equal(t, 3, calls)

	// la abandonada no vuelve a aparecer como vencida
	n, err := e.SweepRetries(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSweepRetries_AbandonsWhenWebhookGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := testHook("wh-1", srv.URL)
	hooks := newMemWebhookRepo(hook)
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Millisecond, MaxAttempts: 5})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))

	// el developer borra la suscripción entre reintentos
	require.NoError(t, hooks.Delete(context.Background(), hook.ID))

	time.Sleep(10 * time.Millisecond)
	n, err := e.SweepRetries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all := deliveries.all()
	require.Len(t, all, 1)
	require.Equal(t, repository.DeliveryAbandoned, all[0].Status)
	// el intento nunca se ejecutó: attempts queda en el del primer fallo
	require.Equal(t, 1, all[0].Attempts)
}

func TestSweepRetries_InactiveWebhookAbandons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := testHook("wh-1", srv.URL)
	hooks := newMemWebhookRepo(hook)
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Millisecond})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))

	hook.Active = false
	require.NoError(t, hooks.Update(context.Background(), hook))

	time.Sleep(10 * time.Millisecond)
	_, err := e.SweepRetries(context.Background())
	require.NoError(t, err)

	all := deliveries.all()
	require.Equal(t, repository.DeliveryAbandoned, all[0].Status)
}

func TestDispatch_NewDeliveryBornRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hooks := newMemWebhookRepo(testHook("wh-1", srv.URL))
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Minute})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))

	// La fila se inserta con next_retry_at ya puesto: si el proceso muriera
	// antes de persistir el primer intento, el sweep la retomaría igual.
	require.Len(t, deliveries.createdWithRetry, 1)
	require.NotNil(t, deliveries.createdWithRetry[0])
	require.InDelta(t, time.Until(*deliveries.createdWithRetry[0]).Seconds(), 60, 5)

	// Tras entregar, el Update del intento la saca del ciclo de reintentos.
	all := deliveries.all()
	require.Equal(t, repository.DeliveryDelivered, all[0].Status)
	require.Nil(t, all[0].NextRetryAt)
}

func TestSweepRetries_ConcurrentSweepsClaimOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hooks := newMemWebhookRepo(testHook("wh-1", srv.URL))
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Millisecond, MaxAttempts: 10})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))
	time.Sleep(10 * time.Millisecond)

	// Dos instancias barren a la vez: el claim condicional garantiza que la
	// entrega vencida la reintenta exactamente una.
	var wg sync.WaitGroup
	totals := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := e.SweepRetries(context.Background())
			require.NoError(t, err)
			totals[i] = n
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, totals[0]+totals[1])

	all := deliveries.all()
	require.Len(t, all, 1)
	require.Equal(t, 2, all[0].Attempts) // intento inicial + un único reintento
	mu.Lock()
	require.Equal(t, 2, calls)
	mu.Unlock()
}

// flakyWebhookRepo inyecta fallas transitorias en GetByID.
type flakyWebhookRepo struct {
	*memWebhookRepo
	mu   sync.Mutex
	fail bool
}

func (r *flakyWebhookRepo) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *flakyWebhookRepo) GetByID(ctx context.Context, id string) (*repository.Webhook, error) {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return r.memWebhookRepo.GetByID(ctx, id)
}

func TestSweepRetries_TransientLookupErrorDoesNotAbandon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hooks := &flakyWebhookRepo{memWebhookRepo: newMemWebhookRepo(testHook("wh-1", srv.URL))}
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second, BaseDelay: time.Millisecond, MaxAttempts: 5})

	require.NoError(t, e.Dispatch(context.Background(), "client-1", repository.EventTokenCreated, map[string]any{"k": "v"}))

	// El store falla al cargar la suscripción: la entrega no se abandona,
	// queda con su lease esperando el próximo sweep.
	hooks.setFail(true)
	time.Sleep(10 * time.Millisecond)
	n, err := e.SweepRetries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all := deliveries.all()
	require.Len(t, all, 1)
	require.Equal(t, repository.DeliveryFailed, all[0].Status)
	require.Equal(t, 1, all[0].Attempts)
	require.NotNil(t, all[0].NextRetryAt)
}

func TestPublish_DetachedFromCallerCancellation(t *testing.T) {
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hooks := newMemWebhookRepo(testHook("wh-1", srv.URL))
	deliveries := newMemDeliveryRepo()
	e := NewEngine(hooks, deliveries, Config{Timeout: 2 * time.Second})

	// el context del request se cancela de inmediato; la entrega sale igual
	ctx, cancel := context.WithCancel(context.Background())
	e.Publish(ctx, "client-1", repository.EventTokenCreated, map[string]any{"k": "v"})
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("la entrega no llegó tras cancelar el context del productor")
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/auth"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/scheduler"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/webhook"
)

type testEnv struct {
	store  *store.MemoryStore
	hooks  *webhook.Dispatcher
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	seedAPIKeys(t, st,
		model.APIKey{
			ID: "k-writer", Key: "writer-token", IsActive: true,
			ResourcePermissions: []model.ResourcePermission{
				{Resource: auth.ResourceAll, Actions: []string{auth.ActionRead, auth.ActionWrite, auth.ActionDelete}},
			},
		},
		model.APIKey{
			ID: "k-reader", Key: "reader-token", IsActive: true,
			ResourcePermissions: []model.ResourcePermission{
				{Resource: "deals", Actions: []string{auth.ActionRead}},
				{Resource: "tasks", Actions: []string{auth.ActionRead}},
			},
		},
	)

	eval := auth.NewEvaluator(st, "master-token")
	hooks := webhook.NewDispatcher(st, 2*time.Second, 100)

	sched, err := scheduler.New(time.Hour, func(context.Context) {})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	t.Cleanup(func() { sched.Stop() })

	h := NewHandler(st, eval, hooks, sched)
	return &testEnv{store: st, hooks: hooks, router: Router(h)}
}

func seedAPIKeys(t *testing.T, s store.Store, keys ...model.APIKey) {
	t.Helper()
	if err := store.SaveList(context.Background(), s, store.KeyAPIKeys, keys); err != nil {
		t.Fatalf("seeding api keys: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return envelope.Data
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if envelope.Error.Code != code {
		t.Fatalf("expected code %s, got %s", code, envelope.Error.Code)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		assertErrorCode(t, env.do(t, http.MethodGet, "/tasks", "", nil),
			http.StatusUnauthorized, CodeUnauthorized)
	})

	t.Run("invalid token", func(t *testing.T) {
		assertErrorCode(t, env.do(t, http.MethodGet, "/tasks", "garbage", nil),
			http.StatusUnauthorized, CodeUnauthorized)
	})

	t.Run("health needs no token", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/v1/health", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("master key authenticates", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/contacts", "master-token", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestUnroutableReturns405(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	assertErrorCode(t, env.do(t, http.MethodPut, "/tasks", "writer-token", nil),
		http.StatusMethodNotAllowed, CodeMethodNotAllowed)
	assertErrorCode(t, env.do(t, http.MethodGet, "/unknown", "writer-token", nil),
		http.StatusMethodNotAllowed, CodeMethodNotAllowed)
}

func TestCreateTask_EndToEnd(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var (
		mu         sync.Mutex
		deliveries [][]byte
	)
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hookSrv.Close)

	if err := store.SaveList(context.Background(), env.store, store.KeyWebhooks, []model.Webhook{
		{ID: "wh-1", URL: hookSrv.URL, Events: []string{"task.created"}, Secret: "x", IsActive: true},
	}); err != nil {
		t.Fatalf("seeding webhooks: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/tasks", "writer-token", map[string]any{
		"title": "Follow up on proposal",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	task := decodeData[model.Task](t, rec)
	if task.ID == "" {
		t.Fatalf("expected server-assigned id, got %+v", task)
	}

	env.hooks.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", len(deliveries))
	}
	var p struct {
		Event string     `json:"event"`
		Data  model.Task `json:"data"`
	}
	if err := json.Unmarshal(deliveries[0], &p); err != nil {
		t.Fatalf("decoding delivery: %v", err)
	}
	if p.Event != "task.created" || p.Data.ID != task.ID {
		t.Fatalf("unexpected delivery: %+v", p)
	}
}

func TestCreateTask_ReadOnlyKeyIsForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no webhook expected for a forbidden request")
	}))
	t.Cleanup(hookSrv.Close)

	if err := store.SaveList(context.Background(), env.store, store.KeyWebhooks, []model.Webhook{
		{ID: "wh-1", URL: hookSrv.URL, Events: []string{"task.created"}, Secret: "x", IsActive: true},
	}); err != nil {
		t.Fatalf("seeding webhooks: %v", err)
	}

	assertErrorCode(t, env.do(t, http.MethodPost, "/tasks", "reader-token", map[string]any{
		"title": "should not exist",
	}), http.StatusForbidden, CodeForbidden)
	env.hooks.Wait()

	tasks, err := store.LoadList[model.Task](context.Background(), env.store, store.KeyTasks)
	if err != nil {
		t.Fatalf("loading tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("forbidden request must not touch state, got %+v", tasks)
	}
}

func TestCompleteTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	created := decodeData[model.Task](t, env.do(t, http.MethodPost, "/tasks", "writer-token", map[string]any{
		"title": "Call the customer",
	}))

	rec := env.do(t, http.MethodPatch, "/tasks/"+created.ID+"/complete", "writer-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	done := decodeData[model.Task](t, rec)
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", done)
	}

	assertErrorCode(t, env.do(t, http.MethodPatch, "/tasks/missing/complete", "writer-token", nil),
		http.StatusNotFound, CodeNotFound)
}

func TestDealStageChange_CarriesPreviousStage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var (
		mu   sync.Mutex
		body []byte
	)
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hookSrv.Close)

	if err := store.SaveList(context.Background(), env.store, store.KeyWebhooks, []model.Webhook{
		{ID: "wh-1", URL: hookSrv.URL, Events: []string{"deal.updated"}, Secret: "x", IsActive: true},
	}); err != nil {
		t.Fatalf("seeding webhooks: %v", err)
	}

	deal := decodeData[model.Deal](t, env.do(t, http.MethodPost, "/deals", "writer-token", map[string]any{
		"title": "Nordlys AS renewal",
		"value": 120000,
		"stage": "negotiation",
	}))

	rec := env.do(t, http.MethodPatch, "/deals/"+deal.ID+"/stage", "writer-token", map[string]any{
		"stage": "won",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if updated := decodeData[model.Deal](t, rec); updated.Stage != "won" {
		t.Fatalf("expected stage won, got %+v", updated)
	}

	env.hooks.Wait()

	mu.Lock()
	defer mu.Unlock()
	var p struct {
		Event string `json:"event"`
		Data  struct {
			Stage         string `json:"stage"`
			PreviousStage string `json:"previousStage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decoding delivery: %v", err)
	}
	if p.Event != "deal.updated" || p.Data.Stage != "won" || p.Data.PreviousStage != "negotiation" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestContactCRUD(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	created := decodeData[model.Contact](t, env.do(t, http.MethodPost, "/contacts", "writer-token", map[string]any{
		"name":    "Kari Nordmann",
		"email":   "kari@example.no",
		"company": "Fjord Consulting",
	}))
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	got := decodeData[model.Contact](t, env.do(t, http.MethodGet, "/contacts/"+created.ID, "writer-token", nil))
	if got.Name != "Kari Nordmann" {
		t.Fatalf("unexpected contact: %+v", got)
	}

	updated := decodeData[model.Contact](t, env.do(t, http.MethodPatch, "/contacts/"+created.ID, "writer-token", map[string]any{
		"phone": "+47 912 34 567",
	}))
	if updated.Phone != "+47 912 34 567" || updated.Name != "Kari Nordmann" {
		t.Fatalf("patch must only touch provided fields, got %+v", updated)
	}

	if rec := env.do(t, http.MethodDelete, "/contacts/"+created.ID, "writer-token", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	assertErrorCode(t, env.do(t, http.MethodGet, "/contacts/"+created.ID, "writer-token", nil),
		http.StatusNotFound, CodeNotFound)
}

func TestCreateEmail_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	t.Run("scheduled requires future scheduledAt", func(t *testing.T) {
		assertErrorCode(t, env.do(t, http.MethodPost, "/emails", "writer-token", map[string]any{
			"recipient": "ola@example.no",
			"status":    "scheduled",
		}), http.StatusBadRequest, CodeValidation)

		past := time.Now().Add(-time.Hour)
		assertErrorCode(t, env.do(t, http.MethodPost, "/emails", "writer-token", map[string]any{
			"recipient":   "ola@example.no",
			"status":      "scheduled",
			"scheduledAt": past,
		}), http.StatusBadRequest, CodeValidation)
	})

	t.Run("recurrence interval must be positive", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		assertErrorCode(t, env.do(t, http.MethodPost, "/emails", "writer-token", map[string]any{
			"recipient":   "ola@example.no",
			"status":      "scheduled",
			"scheduledAt": future,
			"recurrence":  map[string]any{"pattern": "weekly", "interval": 0},
		}), http.StatusBadRequest, CodeValidation)
	})

	t.Run("valid scheduled recurring email", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		rec := env.do(t, http.MethodPost, "/emails", "writer-token", map[string]any{
			"subject":     "Månedlig nyhetsbrev",
			"recipient":   "ola@example.no",
			"status":      "scheduled",
			"scheduledAt": future,
			"recurrence":  map[string]any{"pattern": "monthly", "interval": 1},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
	})
}

func TestEmailStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	sentAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SaveList(context.Background(), env.store, store.KeyEmails, []model.ScheduledEmail{
		{ID: "e-1", Status: model.EmailOpened, SentAt: &sentAt, OpenCount: 3},
	}); err != nil {
		t.Fatalf("seeding emails: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/emails/e-1/stats", "writer-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := decodeData[map[string]any](t, rec)
	if stats["openCount"].(float64) != 3 || stats["status"].(string) != "opened" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	assertErrorCode(t, env.do(t, http.MethodGet, "/emails/missing/stats", "writer-token", nil),
		http.StatusNotFound, CodeNotFound)
}

func TestSchedulerEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status := decodeData[map[string]any](t, env.do(t, http.MethodGet, "/v1/scheduler/status", "reader-token", nil))
	if status["running"].(bool) {
		t.Fatalf("expected scheduler not running")
	}

	// Start/stop require the admin permission: neither the reader key nor
	// the all-resources writer key qualifies.
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/scheduler/start", "reader-token", nil),
		http.StatusForbidden, CodeForbidden)
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/scheduler/start", "writer-token", nil),
		http.StatusForbidden, CodeForbidden)
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/scheduler/stop", "writer-token", nil),
		http.StatusForbidden, CodeForbidden)

	started := decodeData[map[string]any](t, env.do(t, http.MethodPost, "/v1/scheduler/start", "master-token", nil))
	if !started["running"].(bool) {
		t.Fatalf("expected scheduler running after start")
	}

	stopped := decodeData[map[string]any](t, env.do(t, http.MethodPost, "/v1/scheduler/stop", "master-token", nil))
	if stopped["running"].(bool) {
		t.Fatalf("expected scheduler stopped")
	}
}

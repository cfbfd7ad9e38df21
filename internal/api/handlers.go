package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/auth"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/recurrence"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/scheduler"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/webhook"
)

type Handler struct {
	store store.Store
	eval  *auth.Evaluator
	hooks *webhook.Dispatcher
	sched *scheduler.Scheduler

	now func() time.Time
}

func NewHandler(s store.Store, eval *auth.Evaluator, hooks *webhook.Dispatcher, sched *scheduler.Scheduler) *Handler {
	return &Handler{store: s, eval: eval, hooks: hooks, sched: sched, now: time.Now}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	h.sched.Start()
	writeData(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	h.sched.Stop()
	writeData(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// --- contacts ---

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := store.LoadList[model.Contact](r.Context(), h.store, store.KeyContacts)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeData(w, http.StatusOK, contacts)
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "contacts", auth.ActionWrite) {
		return
	}

	var payload struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Company string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if payload.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "name is required")
		return
	}

	now := h.now().UTC()
	contact := model.Contact{
		ID:        uuid.NewString(),
		Name:      payload.Name,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Company:   payload.Company,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.Append(r.Context(), h.store, store.KeyContacts, contact); err != nil {
		writeInternal(w, err)
		return
	}

	h.hooks.Trigger(r.Context(), "contact.created", contact)
	writeData(w, http.StatusCreated, contact)
}

func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	contacts, err := store.LoadList[model.Contact](r.Context(), h.store, store.KeyContacts)
	if err != nil {
		writeInternal(w, err)
		return
	}
	for _, c := range contacts {
		if c.ID == chi.URLParam(r, "id") {
			writeData(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "contact not found")
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "contacts", auth.ActionWrite) {
		return
	}

	var payload struct {
		Name    *string `json:"name"`
		Email   *string `json:"email"`
		Phone   *string `json:"phone"`
		Company *string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	contacts, err := store.LoadList[model.Contact](r.Context(), h.store, store.KeyContacts)
	if err != nil {
		writeInternal(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	for i := range contacts {
		if contacts[i].ID != id {
			continue
		}
		if payload.Name != nil {
			contacts[i].Name = *payload.Name
		}
		if payload.Email != nil {
			contacts[i].Email = *payload.Email
		}
		if payload.Phone != nil {
			contacts[i].Phone = *payload.Phone
		}
		if payload.Company != nil {
			contacts[i].Company = *payload.Company
		}
		contacts[i].UpdatedAt = h.now().UTC()

		if err := store.SaveList(r.Context(), h.store, store.KeyContacts, contacts); err != nil {
			writeInternal(w, err)
			return
		}

		h.hooks.Trigger(r.Context(), "contact.updated", contacts[i])
		writeData(w, http.StatusOK, contacts[i])
		return
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "contact not found")
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "contacts", auth.ActionDelete) {
		return
	}

	contacts, err := store.LoadList[model.Contact](r.Context(), h.store, store.KeyContacts)
	if err != nil {
		writeInternal(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	for i, c := range contacts {
		if c.ID != id {
			continue
		}
		contacts = append(contacts[:i], contacts[i+1:]...)
		if err := store.SaveList(r.Context(), h.store, store.KeyContacts, contacts); err != nil {
			writeInternal(w, err)
			return
		}

		h.hooks.Trigger(r.Context(), "contact.deleted", c)
		writeData(w, http.StatusOK, c)
		return
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "contact not found")
}

// --- deals ---

func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := store.LoadList[model.Deal](r.Context(), h.store, store.KeyDeals)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeData(w, http.StatusOK, deals)
}

func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "deals", auth.ActionWrite) {
		return
	}

	var payload struct {
		Title     string  `json:"title"`
		Value     float64 `json:"value"`
		Stage     string  `json:"stage"`
		ContactID string  `json:"contactId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if payload.Title == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "title is required")
		return
	}
	if payload.Stage == "" {
		payload.Stage = "lead"
	}

	now := h.now().UTC()
	deal := model.Deal{
		ID:        uuid.NewString(),
		Title:     payload.Title,
		Value:     payload.Value,
		Stage:     payload.Stage,
		ContactID: payload.ContactID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.Append(r.Context(), h.store, store.KeyDeals, deal); err != nil {
		writeInternal(w, err)
		return
	}

	h.hooks.Trigger(r.Context(), "deal.created", deal)
	writeData(w, http.StatusCreated, deal)
}

// dealStageChange is the deal.updated payload; downstream consumers need the
// stage the deal moved out of.
type dealStageChange struct {
	model.Deal
	PreviousStage string `json:"previousStage"`
}

func (h *Handler) UpdateDealStage(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "deals", auth.ActionWrite) {
		return
	}

	var payload struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Stage == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "stage is required")
		return
	}

	deals, err := store.LoadList[model.Deal](r.Context(), h.store, store.KeyDeals)
	if err != nil {
		writeInternal(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	for i := range deals {
		if deals[i].ID != id {
			continue
		}
		previous := deals[i].Stage
		deals[i].Stage = payload.Stage
		deals[i].UpdatedAt = h.now().UTC()

		if err := store.SaveList(r.Context(), h.store, store.KeyDeals, deals); err != nil {
			writeInternal(w, err)
			return
		}

		h.recordActivity(r.Context(), model.Activity{
			Type:    "deal-stage-changed",
			DealID:  deals[i].ID,
			Subject: "Deal moved to " + payload.Stage,
			Metadata: map[string]string{
				"previousStage": previous,
				"newStage":      payload.Stage,
			},
		})
		h.hooks.Trigger(r.Context(), "deal.updated", dealStageChange{
			Deal:          deals[i],
			PreviousStage: previous,
		})
		writeData(w, http.StatusOK, deals[i])
		return
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "deal not found")
}

// --- tasks ---

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := store.LoadList[model.Task](r.Context(), h.store, store.KeyTasks)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "tasks", auth.ActionWrite) {
		return
	}

	var payload struct {
		Title     string     `json:"title"`
		Notes     string     `json:"notes"`
		DueAt     *time.Time `json:"dueAt"`
		ContactID string     `json:"contactId"`
		DealID    string     `json:"dealId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if payload.Title == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "title is required")
		return
	}

	now := h.now().UTC()
	task := model.Task{
		ID:        uuid.NewString(),
		Title:     payload.Title,
		Notes:     payload.Notes,
		DueAt:     payload.DueAt,
		ContactID: payload.ContactID,
		DealID:    payload.DealID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.Append(r.Context(), h.store, store.KeyTasks, task); err != nil {
		writeInternal(w, err)
		return
	}

	h.hooks.Trigger(r.Context(), "task.created", task)
	writeData(w, http.StatusCreated, task)
}

func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "tasks", auth.ActionWrite) {
		return
	}

	tasks, err := store.LoadList[model.Task](r.Context(), h.store, store.KeyTasks)
	if err != nil {
		writeInternal(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		now := h.now().UTC()
		tasks[i].Completed = true
		tasks[i].CompletedAt = &now
		tasks[i].UpdatedAt = now

		if err := store.SaveList(r.Context(), h.store, store.KeyTasks, tasks); err != nil {
			writeInternal(w, err)
			return
		}

		h.recordActivity(r.Context(), model.Activity{
			Type:      "task-completed",
			ContactID: tasks[i].ContactID,
			DealID:    tasks[i].DealID,
			Subject:   "Task completed: " + tasks[i].Title,
		})
		h.hooks.Trigger(r.Context(), "task.completed", tasks[i])
		writeData(w, http.StatusOK, tasks[i])
		return
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "task not found")
}

// --- emails ---

func (h *Handler) ListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := store.LoadList[model.ScheduledEmail](r.Context(), h.store, store.KeyEmails)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeData(w, http.StatusOK, emails)
}

func (h *Handler) CreateEmail(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, "emails", auth.ActionWrite) {
		return
	}

	var payload struct {
		Subject         string                `json:"subject"`
		Body            string                `json:"body"`
		Recipient       string                `json:"recipient"`
		Status          model.EmailStatus     `json:"status"`
		ScheduledAt     *time.Time            `json:"scheduledAt"`
		TrackingEnabled bool                  `json:"trackingEnabled"`
		Recurrence      *model.RecurrenceSpec `json:"recurrence"`
		ContactID       string                `json:"contactId"`
		DealID          string                `json:"dealId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	if payload.Status == "" {
		payload.Status = model.EmailDraft
	}
	if payload.Status != model.EmailDraft && payload.Status != model.EmailScheduled {
		writeError(w, http.StatusBadRequest, CodeValidation, "status must be draft or scheduled")
		return
	}
	if payload.Recipient == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "recipient is required")
		return
	}
	if payload.Status == model.EmailScheduled {
		if payload.ScheduledAt == nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "scheduledAt is required for scheduled emails")
			return
		}
		if !payload.ScheduledAt.After(h.now()) {
			writeError(w, http.StatusBadRequest, CodeValidation, "scheduledAt must be in the future")
			return
		}
	}
	if err := recurrence.Validate(payload.Recurrence); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	email := model.ScheduledEmail{
		ID:              uuid.NewString(),
		Subject:         payload.Subject,
		Body:            payload.Body,
		Recipient:       payload.Recipient,
		Status:          payload.Status,
		ScheduledAt:     payload.ScheduledAt,
		TrackingEnabled: payload.TrackingEnabled,
		Recurrence:      payload.Recurrence,
		ContactID:       payload.ContactID,
		DealID:          payload.DealID,
		CreatedAt:       h.now().UTC(),
	}

	if err := store.Append(r.Context(), h.store, store.KeyEmails, email); err != nil {
		writeInternal(w, err)
		return
	}

	h.hooks.Trigger(r.Context(), "email.created", email)
	writeData(w, http.StatusCreated, email)
}

func (h *Handler) EmailStats(w http.ResponseWriter, r *http.Request) {
	emails, err := store.LoadList[model.ScheduledEmail](r.Context(), h.store, store.KeyEmails)
	if err != nil {
		writeInternal(w, err)
		return
	}

	for _, e := range emails {
		if e.ID != chi.URLParam(r, "id") {
			continue
		}
		stats := map[string]any{
			"id":        e.ID,
			"status":    e.Status,
			"sentAt":    e.SentAt,
			"openedAt":  e.OpenedAt,
			"openCount": e.OpenCount,
		}
		if e.Recurrence != nil {
			stats["occurrenceCount"] = e.Recurrence.OccurrenceCount
		}
		writeData(w, http.StatusOK, stats)
		return
	}
	writeError(w, http.StatusNotFound, CodeNotFound, "email not found")
}

// recordActivity appends to the audit trail; a trail failure never fails the
// request that caused it.
func (h *Handler) recordActivity(ctx context.Context, a model.Activity) {
	a.ID = uuid.NewString()
	a.CreatedBy = "api"
	a.CreatedAt = h.now().UTC()

	if err := store.Append(ctx, h.store, store.KeyActivities, a); err != nil {
		slog.Warn("recording activity failed", "type", a.Type, "error", err)
	}
}

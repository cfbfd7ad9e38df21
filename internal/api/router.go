package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Unroutable method/path combinations are an unsupported operation, not
	// a missing resource; missing resources 404 from the handlers.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "unsupported method or path")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "unsupported method or path")
	})

	r.Get("/v1/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/v1/scheduler/status", h.SchedulerStatus)
		r.Post("/v1/scheduler/start", h.SchedulerStart)
		r.Post("/v1/scheduler/stop", h.SchedulerStop)

		r.Get("/contacts", h.ListContacts)
		r.Post("/contacts", h.CreateContact)
		r.Get("/contacts/{id}", h.GetContact)
		r.Patch("/contacts/{id}", h.UpdateContact)
		r.Delete("/contacts/{id}", h.DeleteContact)

		r.Get("/deals", h.ListDeals)
		r.Post("/deals", h.CreateDeal)
		r.Patch("/deals/{id}/stage", h.UpdateDealStage)

		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.CreateTask)
		r.Patch("/tasks/{id}/complete", h.CompleteTask)

		r.Get("/emails", h.ListEmails)
		r.Post("/emails", h.CreateEmail)
		r.Get("/emails/{id}/stats", h.EmailStats)
	})

	return r
}

package developer

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/developer"
)

// WebhooksController maneja las suscripciones de webhooks de un client.
type WebhooksController struct {
	service svc.WebhookService
}

// NewWebhooksController creates the controller.
func NewWebhooksController(s svc.WebhookService) *WebhooksController {
	return &WebhooksController{service: s}
}

// Create handles POST /v1/developer/clients/{id}/webhooks.
// El signing secret en claro viaja solo en esta respuesta.
func (c *WebhooksController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in svc.WebhookInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		helpers.WriteError(w, helpers.ErrInvalidJSON)
		return
	}

	created, err := c.service.Create(ctx, userID, chi.URLParam(r, "id"), in)
	if err != nil {
		logger.From(ctx).Warn("webhook creation failed",
			logger.Layer("controller"), logger.Op("developer.webhooks.create"), logger.Err(err))
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, created)
}

// List handles GET /v1/developer/clients/{id}/webhooks.
func (c *WebhooksController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	hooks, err := c.service.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

// Get handles GET /v1/developer/clients/{id}/webhooks/{webhookID}.
func (c *WebhooksController) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	info, err := c.service.Get(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "webhookID"))
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}

// Update handles PUT /v1/developer/clients/{id}/webhooks/{webhookID}.
func (c *WebhooksController) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in svc.WebhookInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		helpers.WriteError(w, helpers.ErrInvalidJSON)
		return
	}

	info, err := c.service.Update(ctx, userID, chi.URLParam(r, "id"), chi.URLParam(r, "webhookID"), in)
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}

// Delete handles DELETE /v1/developer/clients/{id}/webhooks/{webhookID}.
func (c *WebhooksController) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	err := c.service.Delete(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "webhookID"))
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deliveries handles GET /v1/developer/clients/{id}/webhooks/{webhookID}/deliveries.
func (c *WebhooksController) Deliveries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			helpers.WriteError(w, helpers.ErrBadRequest.WithDetail("limit must be an integer between 1 and 200"))
			return
		}
		limit = n
	}

	items, err := c.service.Deliveries(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "webhookID"), limit)
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": items})
}

// Package developer - controllers del portal de desarrolladores.
package developer

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
	"github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/developer"
)

// ClientsController maneja el CRUD de OAuth clients del portal.
type ClientsController struct {
	service svc.ClientService
}

// NewClientsController creates the controller.
func NewClientsController(s svc.ClientService) *ClientsController {
	return &ClientsController{service: s}
}

// writeDeveloperError mapea los sentinels del package developer al formato
// de error del portal.
func writeDeveloperError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrValidation):
		helpers.WriteError(w, helpers.ErrBadRequest.WithDetail(err.Error()))
	case errors.Is(err, svc.ErrNotFound):
		helpers.WriteError(w, helpers.ErrNotFound)
	case errors.Is(err, svc.ErrForbidden):
		helpers.WriteError(w, helpers.ErrForbidden)
	case errors.Is(err, svc.ErrQuotaExceeded):
		helpers.WriteError(w, helpers.ErrQuotaExceeded)
	default:
		helpers.WriteError(w, helpers.ErrInternalServerError)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		helpers.WriteError(w, helpers.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// Create handles POST /v1/developer/clients.
// El client_secret en claro viaja solo en esta respuesta.
func (c *ClientsController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in svc.ClientInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		helpers.WriteError(w, helpers.ErrInvalidJSON)
		return
	}

	created, err := c.service.Register(ctx, userID, in)
	if err != nil {
		logger.From(ctx).Warn("client registration failed",
			logger.Layer("controller"), logger.Op("developer.clients.create"), logger.Err(err))
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, created)
}

// List handles GET /v1/developer/clients.
func (c *ClientsController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	clients, err := c.service.List(r.Context(), userID)
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// Get handles GET /v1/developer/clients/{id}.
func (c *ClientsController) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	info, err := c.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}

// Update handles PUT /v1/developer/clients/{id}.
func (c *ClientsController) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in svc.ClientInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		helpers.WriteError(w, helpers.ErrInvalidJSON)
		return
	}

	info, err := c.service.Update(ctx, userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}

// RotateSecret handles POST /v1/developer/clients/{id}/rotate-secret.
// Invalida el secret anterior de inmediato.
func (c *ClientsController) RotateSecret(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rotated, err := c.service.RotateSecret(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDeveloperError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, rotated)
}

// Delete handles DELETE /v1/developer/clients/{id}.
func (c *ClientsController) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := c.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeDeveloperError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

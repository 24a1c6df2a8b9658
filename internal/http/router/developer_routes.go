package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
)

// newDeveloperRouter arma el sub-router del portal de developers. Todas las
// rutas requieren un session token de usuario.
func newDeveloperRouter(deps Deps) http.Handler {
	c := deps.Developer

	r := chi.NewRouter()
	r.Use(mw.RequireUser(deps.Issuer))

	r.Route("/v1/developer/clients", func(r chi.Router) {
		r.Post("/", c.Clients.Create)
		r.Get("/", c.Clients.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.Clients.Get)
			r.Put("/", c.Clients.Update)
			r.Delete("/", c.Clients.Delete)
			r.Post("/rotate-secret", c.Clients.RotateSecret)

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", c.Webhooks.Create)
				r.Get("/", c.Webhooks.List)

				r.Route("/{webhookID}", func(r chi.Router) {
					r.Get("/", c.Webhooks.Get)
					r.Put("/", c.Webhooks.Update)
					r.Delete("/", c.Webhooks.Delete)
					r.Get("/deliveries", c.Webhooks.Deliveries)
				})
			})
		})
	})

	return r
}

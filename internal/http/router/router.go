// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	devctrl "github.com/dropDatabas3/keygate/internal/http/controllers/developer"
	oauthctrl "github.com/dropDatabas3/keygate/internal/http/controllers/oauth"
	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/rate"
)

// OAuthControllers agrupa los controllers del protocolo.
type OAuthControllers struct {
	Authorize *oauthctrl.AuthorizeController
	Token     *oauthctrl.TokenController
	Revoke    *oauthctrl.RevokeController
	UserInfo  *oauthctrl.UserInfoController
	Discovery *oauthctrl.DiscoveryController
}

// DeveloperControllers agrupa los controllers del portal.
type DeveloperControllers struct {
	Clients  *devctrl.ClientsController
	Webhooks *devctrl.WebhooksController
}

// Deps contiene todo lo que el router necesita para armar el handler final.
type Deps struct {
	OAuth     OAuthControllers
	Developer DeveloperControllers
	Issuer    *jwtx.Issuer
	Limiter   rate.Limiter // opcional; nil deshabilita rate limiting
	Registry  *prometheus.Registry
	Health    func() error // opcional; chequeo de readiness (ej: ping al pool)
}

// New arma el handler raíz: rutas OAuth sobre el mux estándar, portal de
// developers sobre chi, y los middlewares transversales alrededor de todo.
func New(deps Deps) http.Handler {
	mux := http.NewServeMux()

	registerOAuthRoutes(mux, deps)
	mux.Handle("/v1/developer/", newDeveloperRouter(deps))

	if deps.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mw.ChainFunc(mux.ServeHTTP,
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
	)
}

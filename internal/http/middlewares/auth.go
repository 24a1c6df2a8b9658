package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
)

// bearerToken extrae el token del header Authorization, o "".
func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[len("Bearer "):])
}

// RequireUser valida Authorization: Bearer <session JWT> y guarda el user en
// el contexto. Protege el portal de developers; los access tokens OAuth no
// pasan (typ distinto). Responde 401 si falta o es inválido.
func RequireUser(issuer *jwtx.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				helpers.WriteError(w, helpers.ErrUnauthorized.WithDetail("missing bearer token"))
				return
			}

			claims, err := jwtx.ParseSession(raw, issuer)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				helpers.WriteError(w, helpers.ErrUnauthorized.WithDetail("invalid session token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

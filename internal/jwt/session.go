package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// TypeSession es el claim "typ" de los tokens de sesión first-party que la
// plataforma emite al loguear developers. El portal los acepta como Bearer.
const TypeSession = "session"

// SessionClaims son las claims relevantes de una sesión validada.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// IssueSession emite un token de sesión first-party (login de developers).
func (i *Issuer) IssueSession(sub string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	exp := now.Add(ttl)

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"typ": TypeSession,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseSession valida un token de sesión. Un access token OAuth acá es
// rechazado por typ: las dos audiencias no se cruzan.
func ParseSession(token string, iss *Issuer) (*SessionClaims, error) {
	tok, err := jwtv5.Parse(token, iss.Keyfunc(), jwtv5.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if v, _ := claims["iss"].(string); v != iss.Iss {
		return nil, ErrInvalidIssuer
	}
	if v, _ := claims["typ"].(string); v != TypeSession {
		return nil, ErrWrongTokenUse
	}

	out := &SessionClaims{}
	out.Subject, _ = claims["sub"].(string)
	if out.Subject == "" {
		return nil, ErrInvalidToken
	}
	if expf, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(expf), 0)
	}
	return out, nil
}

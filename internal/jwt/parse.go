package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// AccessClaims son las claims relevantes de un access token ya validado.
type AccessClaims struct {
	Subject   string // vacío para client_credentials
	ClientID  string
	Scope     string
	JTI       string
	ExpiresAt time.Time
}

// ParseAccess valida firma (HS256), iss y typ, y chequea exp/nbf con una
// pequeña tolerancia. La validez final la decide el shadow record: acá sólo
// se responde "¿firmamos nosotros esto y sigue vigente?".
func ParseAccess(token string, iss *Issuer) (*AccessClaims, error) {
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
	if v, _ := claims["typ"].(string); v != TypeAccess {
		return nil, ErrWrongTokenUse
	}

	now := time.Now()
	var exp time.Time
	if expf, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(expf), 0)
		if exp.Before(now.Add(-30 * time.Second)) {
			return nil, ErrInvalidToken
		}
	} else {
		return nil, ErrInvalidToken
	}
	if nbff, ok := claims["nbf"].(float64); ok {
		if time.Unix(int64(nbff), 0).After(now.Add(30 * time.Second)) {
			return nil, ErrInvalidToken
		}
	}

	out := &AccessClaims{ExpiresAt: exp}
	out.Subject, _ = claims["sub"].(string)
	out.ClientID, _ = claims["cid"].(string)
	out.Scope, _ = claims["scope"].(string)
	out.JTI, _ = claims["jti"].(string)
	if out.JTI == "" || out.ClientID == "" {
		return nil, ErrInvalidToken
	}
	return out, nil
}

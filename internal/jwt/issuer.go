package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// TypeAccess es el claim "typ" de los access tokens emitidos por /oauth/token.
const TypeAccess = "oauth_access"

// Issuer firma access tokens HS256 con un secreto compartido.
// Todas las instancias del servidor comparten el mismo secreto, por lo que
// cualquiera puede validar firma sin estado adicional.
type Issuer struct {
	Iss       string // "iss"
	Secret    []byte
	AccessTTL time.Duration
}

func NewIssuer(iss string, secret []byte, accessTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &Issuer{Iss: iss, Secret: secret, AccessTTL: accessTTL}
}

// IssueAccess emite un access token.
// sub es nil para client_credentials (no hay usuario detrás).
// jti identifica al shadow record en storage; la firma sola no alcanza
// para aceptar el token.
func (i *Issuer) IssueAccess(sub *string, clientID, scope, jti string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"cid": clientID,
		"scope": scope,
		"typ": TypeAccess,
		"jti": jti,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if sub != nil {
		claims["sub"] = *sub
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Keyfunc para validar tokens firmados por este Issuer.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		return i.Secret, nil
	}
}

var (
	ErrInvalidToken  = errors.New("invalid_jwt")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrWrongTokenUse = errors.New("wrong_token_use")
)

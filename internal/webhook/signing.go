// Package webhook implementa el delivery engine: firma HMAC, fan-out
// concurrente y reintentos con backoff exponencial.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignaturePrefix precede al HMAC hex en el header de firma.
const SignaturePrefix = "sha256="

// Sign computa la firma del body crudo con el secret de la suscripción.
// Formato: sha256=<hex hmac-sha256>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature valida una firma recibida contra el body crudo.
// Comparación en tiempo constante; un byte cambiado invalida todo.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package logger

import (
	"time"

	"go.uber.org/zap"
)

// ───────────────────────── HTTP ─────────────────────────

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ───────────────────────── Negocio ─────────────────────────

// ClientID crea un campo para el client_id OAuth.
func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// GrantType crea un campo para el grant OAuth en curso.
func GrantType(v string) zap.Field {
	return zap.String("grant_type", v)
}

// Scope crea un campo para el scope string.
func Scope(v string) zap.Field {
	return zap.String("scope", v)
}

// WebhookID crea un campo para el ID de un webhook.
func WebhookID(v string) zap.Field {
	return zap.String("webhook_id", v)
}

// DeliveryID crea un campo para el ID de una entrega de webhook.
func DeliveryID(v string) zap.Field {
	return zap.String("delivery_id", v)
}

// Event crea un campo para el nombre de un evento de webhook.
func Event(v string) zap.Field {
	return zap.String("event", v)
}

// Attempt crea un campo para el número de intento de entrega.
func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// ───────────────────────── Sistema ─────────────────────────

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (controller, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// ───────────────────────── Genéricos ─────────────────────────

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Int64 crea un campo int64 genérico.
func Int64(key string, v int64) zap.Field {
	return zap.Int64(key, v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

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

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// IdentityID crea un campo para el ID de la identidad.
func IdentityID(v string) zap.Field {
	return zap.String("identity_id", v)
}

// Email crea un campo para el email, enmascarado para no exponer PII completa.
func Email(v string) zap.Field {
	return zap.String("email", maskEmail(v))
}

// ChallengeID crea un campo para el handle de un challenge de verificación.
func ChallengeID(v string) zap.Field {
	return zap.String("challenge_id", v)
}

// SessionID crea un campo para el ID de sesión (nunca el token).
func SessionID(v string) zap.Field {
	return zap.String("session_id", v)
}

// KeyHandle crea un campo para el handle opaco asignado por el signer remoto.
func KeyHandle(v string) zap.Field {
	return zap.String("key_handle", v)
}

// Address crea un campo para la dirección de cuenta derivada.
func Address(v string) zap.Field {
	return zap.String("address", v)
}

// Stage crea un campo para la etapa de la state machine de firma.
func Stage(v string) zap.Field {
	return zap.String("stage", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, service, repository).
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

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

// maskEmail deja visibles el primer caracter del local part y el dominio.
// "alice@example.com" -> "a***@example.com"
func maskEmail(s string) string {
	at := -1
	for i, r := range s {
		if r == '@' {
			at = i
			break
		}
	}
	if at <= 0 {
		return "***"
	}
	return s[:1] + "***" + s[at:]
}

// Package errors define la estructura estándar de errores HTTP del servicio
// y la lista de errores predefinidos que expone la API.
package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Causa original, útil para logs, no se expone al cliente
}

// Error implementa la interfaz error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError.
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// FromError intenta convertir un error genérico en un AppError.
// Si no es un AppError, devuelve un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WithDetail agrega detalle adicional. Devuelve una COPIA para no mutar
// las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega el error original (causa). Devuelve una COPIA.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// Errores predefinidos. El code es estable: los clientes hacen switch sobre él.
var (
	// 400
	ErrBadRequest = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "invalid_request",
		Message:    "La petición es inválida",
	}
	ErrInvalidContact = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "invalid_contact",
		Message:    "La dirección de contacto es inválida",
	}
	ErrInvalidDigest = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "invalid_digest",
		Message:    "El digest debe ser de 32 bytes",
	}

	// 401
	ErrUnauthenticated = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "unauthenticated",
		Message:    "Sesión inválida, vencida o revocada",
	}
	ErrInvalidOrExpiredCode = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "invalid_or_expired_code",
		Message:    "Código incorrecto o challenge vencido",
	}

	// 409
	ErrAssertionReplayed = &AppError{
		HTTPStatus: http.StatusConflict,
		Code:       "assertion_replayed",
		Message:    "La assertion ya fue consumida",
	}
	ErrAccountIncomplete = &AppError{
		HTTPStatus: http.StatusConflict,
		Code:       "account_incomplete",
		Message:    "La cuenta quedó provisionada de forma incompleta",
	}

	// 410
	ErrAssertionExpired = &AppError{
		HTTPStatus: http.StatusGone,
		Code:       "assertion_expired",
		Message:    "La assertion expiró",
	}

	// 404
	ErrAccountNotProvisioned = &AppError{
		HTTPStatus: http.StatusNotFound,
		Code:       "account_not_provisioned",
		Message:    "La identidad no tiene cuenta provisionada",
	}

	// 429
	ErrTooManyRequests = &AppError{
		HTTPStatus: http.StatusTooManyRequests,
		Code:       "too_many_requests",
		Message:    "Demasiadas peticiones, reintentá más tarde",
	}

	// 5xx
	ErrServerShareUnavailable = &AppError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "server_share_unavailable",
		Message:    "La share del servidor no está disponible",
	}
	ErrRemoteSigningFailed = &AppError{
		HTTPStatus: http.StatusBadGateway,
		Code:       "remote_signing_failed",
		Message:    "La ceremonia de firma remota falló",
	}
	ErrUpstreamTimeout = &AppError{
		HTTPStatus: http.StatusGatewayTimeout,
		Code:       "upstream_timeout",
		Message:    "El servicio upstream no respondió a tiempo",
	}
	ErrInternal = &AppError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "internal_error",
		Message:    "Error interno del servidor",
	}
)

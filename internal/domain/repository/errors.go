package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, unique violation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAssertionConsumed indica que la assertion ya fue consumida (replay).
	ErrAssertionConsumed = errors.New("assertion already consumed")

	// ErrAssertionExpired indica que la assertion está fuera de su ventana.
	ErrAssertionExpired = errors.New("assertion expired")

	// ErrSessionRevoked indica que la sesión fue revocada explícitamente.
	ErrSessionRevoked = errors.New("session revoked")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

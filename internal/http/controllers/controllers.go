package controllers

import (
	"context"
	"net/http"
	"time"
)

// Controllers agrupa todos los controllers para el wiring del router.
type Controllers struct {
	Verify  *VerifyController
	Account *AccountController
	Sign    *SignController
	Session *SessionController
	Health  *HealthController
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

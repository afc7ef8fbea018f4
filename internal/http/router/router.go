// Package router arma el árbol de rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/hellowallet/internal/http/controllers"
	mw "github.com/dropDatabas3/hellowallet/internal/http/middlewares"
	"github.com/dropDatabas3/hellowallet/internal/rate"
)

// Deps contiene todo lo necesario para armar el router.
type Deps struct {
	Controllers controllers.Controllers

	// IPLimiter limita por IP en todo /v1. Opcional.
	IPLimiter rate.Limiter
}

// New construye el handler raíz con middlewares aplicados.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	c := deps.Controllers

	// Infra endpoints: sin rate limit, sin logging verboso.
	r.Get("/healthz", c.Health.Healthz)
	r.Get("/readyz", c.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if deps.IPLimiter != nil {
			r.Use(mw.WithRateLimit(deps.IPLimiter))
		}

		r.Post("/verify/begin", c.Verify.Begin)
		r.Post("/verify/complete", c.Verify.Complete)
		r.Post("/accounts/resolve", c.Account.Resolve)
		r.Post("/sign", c.Sign.Sign)
		r.Post("/session/revoke", c.Session.Revoke)
	})

	// Middlewares globales: el request ID tiene que ser el más externo para
	// que logging lo vea.
	return mw.Chain(r,
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithSecurityHeaders(),
	)
}

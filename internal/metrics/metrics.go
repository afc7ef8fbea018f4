package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del core. Viven en un paquete standalone para evitar
// ciclos de import entre los coordinators y el paquete HTTP.

var (
	IssuanceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hellowallet_issuance_total",
		Help: "Resoluciones de cuenta por resultado (new, existing, error)",
	}, []string{"result"})

	SigningTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hellowallet_signing_total",
		Help: "Llamadas de firma por etapa alcanzada y resultado",
	}, []string{"stage", "result"})

	RemoteSignerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hellowallet_remote_signer_latency_ms",
		Help:    "Latencia de llamadas al signer remoto en milisegundos",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"op"})

	// DecryptionFailures dispara alerting: corrupción de datos o clave
	// comprometida, nunca debería ser mayor a cero.
	DecryptionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hellowallet_share_decryption_failures_total",
		Help: "Fallas de descifrado de server shares (auth tag inválido)",
	})

	VerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hellowallet_verification_total",
		Help: "Flujos de verificación de identidad por resultado",
	}, []string{"op", "result"})
)

// Register registra todas las métricas en el registry dado (default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		IssuanceTotal, SigningTotal, RemoteSignerLatency, DecryptionFailures, VerificationTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

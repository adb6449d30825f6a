package metrics

import "github.com/prometheus/client_golang/prometheus"

// Métricas del core de autorización. Package standalone para evitar ciclos
// de import entre jwt/rbac y HTTP.

var (
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Tokens de acceso emitidos",
	})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_verifications_total",
		Help: "Verificaciones de token por resultado",
	}, []string{"result"}) // ok | invalid | expired

	KeyRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_key_rotations_total",
		Help: "Claves de firma generadas (bootstrap + rotaciones)",
	})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_cache_lookups_total",
		Help: "Lecturas de la cache de autorización por colección y resultado",
	}, []string{"collection", "result"}) // hit | miss | error

	ScopeResolutions = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_scope_resolution_seconds",
		Help:    "Duración de la resolución de scopes contra el system of record",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registra las métricas en reg (o en el default si es nil).
// Tolera AlreadyRegistered para que los tests puedan re-registrar.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokensIssued, TokenVerifications, KeyRotations, CacheLookups, ScopeResolutions,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

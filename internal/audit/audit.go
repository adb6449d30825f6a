// Package audit registra eventos administrativos (mutaciones RBAC, rotación
// de claves, toggles de principal) como log estructurado. Hoy el sink es el
// logger del servicio; la firma deja cambiar el destino sin tocar callers.
package audit

import (
	"go.uber.org/zap"

	"github.com/dropDatabas3/authserve/internal/observability/logger"
)

// Record emite un evento de auditoría. Los fields identifican actor y
// objeto; el evento es un nombre estable estilo "role.created".
func Record(event string, fields ...zap.Field) {
	logger.Named("audit").Info(event, fields...)
}

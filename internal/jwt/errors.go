package jwt

import "errors"

// Taxonomía de errores del core. Autenticación (token inválido/expirado) y
// autorización (scopes, principal inactivo) son categorías distintas y no
// deben colapsarse en logs ni respuestas.
var (
	// ErrKeystoreUninitialized: existe el directorio de claves pero no hay
	// puntero de clave activa. Se recupera con un bootstrap administrativo.
	ErrKeystoreUninitialized = errors.New("keystore_uninitialized")

	// ErrNoKeys: no hay ninguna clave generada. Distinto de "hay claves pero
	// ninguna marcada como activa".
	ErrNoKeys = errors.New("no_signing_keys")

	// ErrInvalidToken: header malformado, kid ausente o desconocido, firma o
	// claims inválidos. Nunca se reintenta.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrExpiredToken: estructuralmente válido pero vencido. Se reporta
	// separado para que el caller pida re-autenticación en vez de tratarlo
	// como tampering.
	ErrExpiredToken = errors.New("expired_token")

	// ErrAccessDenied: la negociación de scopes dio vacío; no se emite token.
	ErrAccessDenied = errors.New("access_denied")

	// ErrInsufficientScope: token válido cuyos scopes no intersectan los
	// requeridos por la operación.
	ErrInsufficientScope = errors.New("insufficient_scope")

	// ErrInactivePrincipal: el principal existe pero está inactivo; deniega
	// siempre, antes de evaluar scopes.
	ErrInactivePrincipal = errors.New("inactive_principal")
)

package logger

import "go.uber.org/zap"

// Campos estándar del dominio, para mantener nombres consistentes en logs.

func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func KID(v string) zap.Field { return zap.String("kid", v) }

func Role(v string) zap.Field { return zap.String("role", v) }

func Scopes(v []string) zap.Field { return zap.Strings("scopes", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Err(err error) zap.Field { return zap.Error(err) }

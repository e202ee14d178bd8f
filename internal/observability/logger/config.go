package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configura el logger.
type Config struct {
	// Env: "dev" (consola con colores), "prod" (JSON) o "silent" (nop, para tests).
	Env string

	// Level: "debug", "info", "warn", "error". Default "info".
	Level string

	// ServiceName se agrega como campo "service" si no está vacío.
	ServiceName string

	// Version se agrega como campo "version" si no está vacío.
	Version string
}

// build construye el logger según la configuración.
// Los logs van siempre a stderr: stdout queda para la salida de los comandos.
func build(cfg Config) *zap.Logger {
	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	if env == "silent" {
		return zap.NewNop()
	}

	level := parseLevel(cfg.Level)

	var zcfg zap.Config
	if env == "prod" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	l, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		// Fallback a un logger básico si falla
		l, _ = zap.NewProduction()
	}

	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

// parseLevel convierte un string a zapcore.Level.
func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el logger singleton. Solo la primera llamada tiene efecto.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el logger singleton.
// Si Init() no fue llamado, crea un logger por defecto (dev, info).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named retorna un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With retorna un logger con campos adicionales.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Or devuelve l si no es nil, o el logger nombrado del singleton.
// Usado por los constructores que aceptan un *zap.Logger opcional.
func Or(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Named(name)
}

// Sync flushea buffers pendientes. Llamar con defer en main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

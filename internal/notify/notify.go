// Package notify entrega avisos al usuario (sesión vencida, login ok, error
// al guardar). Fire-and-forget: un Sink nunca devuelve error ni bloquea.
package notify

import (
	"sync"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification es un aviso corto.
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Sink recibe avisos.
type Sink interface {
	Notify(n Notification)
}

// Nop descarta todo.
type Nop struct{}

func (Nop) Notify(Notification) {}

// Zap loguea cada aviso. Es el sink por defecto de la CLI y del server.
type Zap struct {
	log *zap.Logger
}

// NewZap crea un sink sobre l (o el logger "notify" si es nil).
func NewZap(l *zap.Logger) *Zap {
	return &Zap{log: logger.Or(l, "notify")}
}

func (z *Zap) Notify(n Notification) {
	fields := []zap.Field{logger.String("title", n.Title), logger.String("level", string(n.Level))}
	switch n.Level {
	case LevelError:
		z.log.Error(n.Message, fields...)
	case LevelWarning:
		z.log.Warn(n.Message, fields...)
	default:
		z.log.Info(n.Message, fields...)
	}
}

// Recorder guarda los avisos en memoria. Pensado para tests y para el
// dashboard, que muestra los últimos avisos.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	max   int
}

// NewRecorder guarda como mucho max avisos (0 = sin límite).
func NewRecorder(max int) *Recorder {
	return &Recorder{max: max}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if r.max > 0 && len(r.items) > r.max {
		r.items = append([]Notification(nil), r.items[len(r.items)-r.max:]...)
	}
}

// All devuelve una copia de los avisos, del más viejo al más nuevo.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last devuelve el último aviso, si hay.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Multi reparte cada aviso a varios sinks.
type Multi []Sink

func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

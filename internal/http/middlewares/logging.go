package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
)

// StatusRecorder captura el status code y bytes escritos de la respuesta.
type StatusRecorder struct {
	http.ResponseWriter
	Status      int
	Bytes       int
	wroteHeader bool
}

// NewStatusRecorder envuelve w con status 200 por defecto.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

func (s *StatusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.Status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.Bytes += n
	return n, err
}

// WithLogging registra cada request con campos estructurados e inyecta un
// logger con request_id, method y path en el contexto.
//
// Ejemplo de log (dev):
//
//	INFO  [15:04:05.000] request completed  {"request_id": "…", "method": "GET", "path": "/dashboard", "status": 200, "duration": "1.2ms"}
func WithLogging(base *zap.Logger) Middleware {
	base = logger.Or(base, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := w.Header().Get(HeaderRequestID)
			if requestID == "" {
				requestID = GetRequestID(r.Context())
			}
			reqLog := base.With(
				logger.RequestID(requestID),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			ctx := logger.ToContext(r.Context(), reqLog)

			rec := NewStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := []zap.Field{logger.Status(rec.Status), zap.Int("bytes", rec.Bytes), logger.Duration(time.Since(start))}
			switch {
			case rec.Status >= 500:
				reqLog.Error("request failed", fields...)
			case rec.Status >= 400:
				reqLog.Warn("request completed with client error", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}

package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout acota el drenaje de requests al apagar.
const DefaultShutdownTimeout = 10 * time.Second

// Server es el dashboard local: expone la sesión del proceso por HTTP.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	log             *zap.Logger
}

// New arma el server con sus rutas.
func New(cfg Config) (*Server, error) {
	h, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	to := cfg.ShutdownTimeout
	if to <= 0 {
		to = DefaultShutdownTimeout
	}
	return &Server{
		addr:            cfg.Addr,
		handler:         h,
		shutdownTimeout: to,
		log:             logger.Or(cfg.Logger, "http"),
	}, nil
}

// Handler devuelve el router completo (útil en tests).
func (s *Server) Handler() http.Handler { return s.handler }

// Serve atiende en ln hasta que ctx se cancela; luego drena con timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("dashboard listening", logger.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("dashboard shutdown", logger.Err(err))
		return err
	}
	s.log.Info("dashboard stopped")
	return nil
}

// ListenAndServe escucha en la dirección configurada.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

package main

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/portal/internal/guard"
	httpserver "github.com/dropDatabas3/portal/internal/http"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/rate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// loginAttempts por IP y por minuto en POST /login.
const loginAttempts = 10

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Dashboard local: sesión, guards y /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			mcfg := httpserver.MetricsConfig{Registry: prometheus.DefaultRegisterer}
			if pg, ok := a.storage.(*kv.Postgres); ok {
				mcfg.StoragePool = func() *pgxpool.Pool { return pg.Pool() }
			}
			metricsHandler, err := httpserver.RegisterMetrics(mcfg)
			if err != nil {
				return err
			}

			// con storage redis el límite se comparte entre dashboards
			var limiter rate.Limiter = rate.NewMemoryLimiter(loginAttempts, time.Minute)
			if rd, ok := a.storage.(*kv.Redis); ok {
				limiter = rate.NewRedisLimiter(rd.Client(), "portal:rl:", loginAttempts, time.Minute)
			}

			srv, err := httpserver.New(httpserver.Config{
				Addr:    addr,
				Session: a.store,
				Plans:   a.plans,
				Notices: a.notices,
				Guard: guard.Options{
					LoginPath:     a.cfg.Session.LoginPath,
					DashboardPath: a.cfg.Session.DashboardPath,
					ReturnParam:   a.cfg.Session.ReturnParam,
				},
				Metrics:      metricsHandler,
				LoginLimiter: limiter,
				Logger:       logger.Named("http"),
			})
			if err != nil {
				return err
			}
			r, err := a.newRefresher()
			if err != nil {
				return err
			}
			p, err := a.newProvider()
			if err != nil {
				return err
			}

			// refresher y provider terminan con el server, también si no pudo escuchar
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); r.Run(ctx) }()
			go func() { defer wg.Done(); p.Run(ctx) }()

			err = srv.ListenAndServe(ctx)
			cancel()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Dirección de escucha (default server.addr)")
	return cmd
}

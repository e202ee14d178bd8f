package main

import (
	"context"
	"sync"

	"github.com/dropDatabas3/portal/internal/session"
	"github.com/spf13/cobra"
)

func newRefreshCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Renovar el token si está por vencer",
		Long: `Sin --watch hace un único chequeo: si el token vence dentro de la
ventana configurada (session.refresh_lookahead) lo renueva.

Con --watch queda corriendo: chequea cada session.refresh_interval y
sincroniza el usuario con la API hasta Ctrl+C o hasta que la sesión termine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.store.Snapshot().Authenticated() {
				return session.ErrNotAuthenticated
			}
			r, err := a.newRefresher()
			if err != nil {
				return err
			}
			if !watch {
				out, err := r.Check(cmd.Context())
				if err != nil {
					return describeError(err)
				}
				if a.out == "json" {
					return a.printJSON(map[string]string{"outcome": out.String()})
				}
				a.printf("%s\n", out)
				return nil
			}

			p, err := a.newProvider()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			unsubscribe := a.store.Subscribe(func(st session.State) {
				if !st.Authenticated() {
					cancel()
				}
			})
			defer unsubscribe()

			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); r.Run(ctx) }()
			go func() { defer wg.Done(); p.Run(ctx) }()
			wg.Wait()

			if a.store.Snapshot().Authenticated() {
				return nil
			}
			if n, ok := a.notices.Last(); ok {
				a.printf("%s: %s\n", n.Title, n.Message)
			}
			return session.ErrNotAuthenticated
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Quedar corriendo y renovar en segundo plano")
	return cmd
}

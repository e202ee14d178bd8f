package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropDatabas3/portal/internal/config"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath = envOr("PORTAL_CONFIG", "~/.config/portal/config.yaml")
		envFile = ".env"
		out     = envOr("PORTAL_OUT", "text")
	)
	a := &app{}

	root := &cobra.Command{
		Use:           "portal",
		Short:         "Sesión del portal de socios: login, refresh y dashboard local",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("env file %s: %w", envFile, err)
			}
			path, err := expandPath(cfgPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger.Init(cfg.Logger(version))
			if out != "text" && out != "json" {
				return fmt.Errorf("--out debe ser text|json, no %q", out)
			}
			a.out = out
			a.stdout, a.stdin = cmd.OutOrStdout(), cmd.InOrStdin()
			return a.open(cmd.Context(), cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Archivo YAML de configuración (env PORTAL_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env a cargar si existe")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text (env PORTAL_OUT)")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newRefreshCmd(a),
		newServeCmd(a),
		newPlansCmd(a),
		newTokenCmd(a),
		newPasswordCmd(a),
	)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

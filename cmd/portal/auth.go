package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/session"
	"github.com/spf13/cobra"
)

func (a *app) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("PORTAL_PASSWORD"); v != "" {
		return v, nil
	}
	return a.readLine("Password: ")
}

// describeError agrega los errores por campo al mensaje corto.
func describeError(err error) error {
	var ae *api.Error
	if !errors.As(err, &ae) {
		return err
	}
	msg := api.Message(err)
	for field, errs := range ae.Fields {
		for _, e := range errs {
			msg += fmt.Sprintf("\n  %s: %s", field, e)
		}
	}
	return errors.New(msg)
}

func (a *app) printLogin(res session.LoginResult) error {
	if a.out == "json" {
		return a.printJSON(map[string]any{"user": res.User, "needs_verification": res.NeedsVerification})
	}
	a.printf("Logged in as %s\n", res.User.DisplayName())
	if res.NeedsVerification {
		a.printf("Check your inbox: your email address is not verified yet.\n")
	}
	return nil
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Iniciar sesión con email y password",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			res, err := a.store.Login(cmd.Context(), api.Credentials{Email: email, Password: pw})
			if err != nil {
				return describeError(err)
			}
			return a.printLogin(res)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "Password (env PORTAL_PASSWORD o stdin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crear una cuenta e iniciar sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			res, err := a.store.Register(cmd.Context(), api.RegisterRequest{
				Username: username, Email: email, Password: pw, PasswordConfirmation: pw,
			})
			if err != nil {
				return describeError(err)
			}
			return a.printLogin(res)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Nombre de usuario")
	cmd.Flags().StringVar(&email, "email", "", "Email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "Password (env PORTAL_PASSWORD o stdin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cerrar la sesión (local y remota)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Logout(cmd.Context()); err != nil {
				a.printf("Logged out locally (server said: %s)\n", api.Message(err))
				return nil
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostrar el usuario de la sesión, sincronizado con la API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.store.Snapshot().Authenticated() {
				return session.ErrNotAuthenticated
			}
			p, err := a.newProvider()
			if err != nil {
				return err
			}
			res := p.Sync(cmd.Context())
			if res.Err != nil && api.IsAuth(res.Err) {
				return errors.New(api.Message(res.Err))
			}
			u := a.store.Snapshot().User
			if a.out == "json" {
				return a.printJSON(u)
			}
			printUser(a, u)
			if res.Err != nil {
				a.printf("(could not refresh from the server: %s)\n", api.Message(res.Err))
			}
			return nil
		},
	}
}

func printUser(a *app, u *types.AuthUser) {
	a.printf("%s <%s>\n", u.DisplayName(), u.Email)
	if u.NeedsVerification() {
		a.printf("email: not verified\n")
	}
	if u.AdminAccess.CanAccessAdmin {
		a.printf("admin: yes\n")
	}
	for _, c := range u.Permissions.Granted() {
		a.printf("  %s\n", c)
	}
}

func newProfileCmd(a *app) *cobra.Command {
	var username, avatar string
	root := &cobra.Command{Use: "profile", Short: "Perfil del usuario"}
	update := &cobra.Command{
		Use:   "update",
		Short: "Actualizar username y/o avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch types.UserPatch
			if cmd.Flags().Changed("username") {
				patch.Username = &username
			}
			if cmd.Flags().Changed("avatar-url") {
				patch.AvatarURL = &avatar
			}
			if patch.Username == nil && patch.AvatarURL == nil {
				return errors.New("nada para actualizar: usar --username o --avatar-url")
			}
			u, err := a.store.UpdateProfile(cmd.Context(), patch)
			if err != nil {
				return describeError(err)
			}
			if a.out == "json" {
				return a.printJSON(u)
			}
			printUser(a, u)
			return nil
		},
	}
	update.Flags().StringVar(&username, "username", "", "Nuevo username")
	update.Flags().StringVar(&avatar, "avatar-url", "", "Nueva URL de avatar")
	root.AddCommand(update)
	return root
}

func newPasswordCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "password", Short: "Recuperación de password"}

	var forgotEmail string
	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Pedir el email de reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.ForgotPassword(cmd.Context(), forgotEmail); err != nil {
				return describeError(err)
			}
			a.printf("If the address exists, a reset link is on its way.\n")
			return nil
		},
	}
	forgot.Flags().StringVar(&forgotEmail, "email", "", "Email de la cuenta")
	_ = forgot.MarkFlagRequired("email")

	var token, email, password string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Confirmar el reset con el token del email",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			err = a.client.ResetPassword(cmd.Context(), api.ResetPasswordRequest{
				Token: token, Email: email, Password: pw, PasswordConfirmation: pw,
			})
			if err != nil {
				return describeError(err)
			}
			a.printf("Password updated. You can log in now.\n")
			return nil
		},
	}
	reset.Flags().StringVar(&token, "token", "", "Token recibido por email")
	reset.Flags().StringVar(&email, "email", "", "Email de la cuenta")
	reset.Flags().StringVar(&password, "password", "", "Nuevo password (env PORTAL_PASSWORD o stdin)")
	_ = reset.MarkFlagRequired("token")
	_ = reset.MarkFlagRequired("email")

	root.AddCommand(forgot, reset)
	return root
}

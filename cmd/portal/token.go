package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "token",
		Short: "Cifrar o descifrar tokens con el formato del almacenamiento",
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "encrypt <token>",
			Short: "Cifrar un token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a.printf("%s\n", a.cipher.Encrypt(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "decrypt <blob>",
			Short: "Descifrar un token guardado",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pt, ok := a.cipher.Decrypt(args[0])
				if !ok {
					return errors.New("el valor no se pudo descifrar")
				}
				a.printf("%s\n", pt)
				return nil
			},
		},
	)
	return root
}

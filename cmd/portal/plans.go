package main

import (
	"fmt"
	"strconv"

	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

func newPlansCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "plans", Short: "Planes de membresía (admin)"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Listar planes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := a.plans.List(cmd.Context())
			if err != nil {
				return describeError(err)
			}
			if a.out == "json" {
				return a.printJSON(ps)
			}
			if len(ps) == 0 {
				a.printf("No plans found.\n")
				return nil
			}
			table := uitable.New()
			table.AddRow("ID", "NAME", "PRICE", "INTERVAL", "ACTIVE?")
			for _, p := range ps {
				table.AddRow(p.ID, p.Name, formatPrice(p), p.Interval, p.Active)
			}
			a.printf("%s\n", table)
			return nil
		},
	}

	var in types.PlanInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Crear un plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.plans.Create(cmd.Context(), in)
			if err != nil {
				return describeError(err)
			}
			if a.out == "json" {
				return a.printJSON(p)
			}
			a.printf("Plan %d created\n", p.ID)
			return nil
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "Nombre del plan")
	create.Flags().StringVar(&in.Description, "description", "", "Descripción")
	create.Flags().Int64Var(&in.PriceCents, "price-cents", 0, "Precio en centavos")
	create.Flags().StringVar(&in.Currency, "currency", "EUR", "Moneda")
	create.Flags().StringVar(&in.Interval, "interval", "month", "Período: month|year")
	create.Flags().BoolVar(&in.Active, "active", true, "Plan activo")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Borrar un plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id inválido %q", args[0])
			}
			if err := a.plans.Delete(cmd.Context(), id); err != nil {
				return describeError(err)
			}
			a.printf("Plan %d deleted\n", id)
			return nil
		},
	}

	root.AddCommand(list, create, del)
	return root
}

func formatPrice(p types.Plan) string {
	return fmt.Sprintf("%d.%02d %s", p.PriceCents/100, p.PriceCents%100, p.Currency)
}

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/gym"
)

func newOrdersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect or cancel booking orders",
	}
	cmd.AddCommand(newOrdersListCmd(g))
	cmd.AddCommand(newOrdersCancelCmd(g))
	return cmd
}

func newOrdersListCmd(g *globalFlags) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := prepare(ctx, g, nil)
			if err != nil {
				return err
			}
			client := newGymClient(cfg, logger)
			orders, err := client.Orders(ctx, status, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCOURTS\tPAY")
			for _, o := range orders {
				pay := ""
				if o.Status == "created" {
					pay = client.PaymentURL(o.ID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Status, describeScenes(o.Scenes), pay)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "created", "order status: created, paid, expired or finish")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum orders to list")
	return cmd
}

func newOrdersCancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an unpaid order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := prepare(ctx, g, nil)
			if err != nil {
				return err
			}
			if err := newGymClient(cfg, logger).Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

// describeScenes renders scenes as "day field:hour,hour; ..." with fields in id order.
func describeScenes(scenes []gym.Scene) string {
	var parts []string
	for _, sc := range scenes {
		ids := make([]string, 0, len(sc.Fields))
		for id := range sc.Fields {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			hours := make([]string, len(sc.Fields[id]))
			for i, h := range sc.Fields[id] {
				hours[i] = fmt.Sprint(h)
			}
			parts = append(parts, fmt.Sprintf("%s %s:%s", sc.Day, id, strings.Join(hours, ",")))
		}
	}
	return strings.Join(parts, "; ")
}

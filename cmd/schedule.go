package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/gym"
)

func newScheduleCmd(g *globalFlags) *cobra.Command {
	var offset int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the court availability grid for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := prepare(ctx, g, nil)
			if err != nil {
				return err
			}
			client := newGymClient(cfg, logger)
			if err := client.Setup(ctx); err != nil {
				return err
			}
			date := time.Now().AddDate(0, 0, offset)
			grid, err := client.Schedule(ctx, date)
			if err != nil {
				return err
			}
			return writeGrid(cmd.OutOrStdout(), grid.Date, grid.Fields, grid.Hours, grid.Open)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "day offset from today")
	return cmd
}

// writeGrid prints one row per hour and one column per court; X marks a free unit.
func writeGrid(w io.Writer, date string, fields []gym.Field, hours []gym.Hour, open func(fieldID string, hourID int) bool) error {
	fmt.Fprintln(w, date)
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprint(tw, "time")
	for _, f := range fields {
		fmt.Fprintf(tw, "\t%s", f.Name)
	}
	fmt.Fprintln(tw)
	for _, h := range hours {
		fmt.Fprintf(tw, "%s-%s", h.Begin, h.End)
		for _, f := range fields {
			mark := " "
			if open(f.ID, h.ID) {
				mark = "X"
			}
			fmt.Fprintf(tw, "\t%s", mark)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show persisted counters and recent actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		totals, err := st.Totals(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Detections:   %d\n", totals.Detections)
		fmt.Fprintf(out, "Auto-buys:    %d\n", totals.AutoBuys)
		fmt.Fprintf(out, "Today:        %d\n", totals.TodayBuys)

		if statsLimit <= 0 {
			return nil
		}
		actions, err := st.RecentActions(ctx, statsLimit)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintln(out, "\nNo actions recorded.")
			return nil
		}

		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTOKEN\tKEY\tN\tRESULT")
		for _, a := range actions {
			result := "ok"
			if !a.OK {
				result = "failed: " + a.Error
			}
			if a.DryRun {
				result += " (dry run)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				a.At.Local().Format("01-02 15:04:05"), a.Identity.Short(), a.Key, a.Distinct, result)
		}
		return tw.Flush()
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "actions", "n", 20, "number of recent actions to list")
}

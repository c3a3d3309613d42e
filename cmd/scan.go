package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/esg-hub/internal/missing"
	"github.com/sells-group/esg-hub/internal/notify"
)

var (
	scanPeriod string
	scanNotify bool
	scanJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List required KPIs with no observation for a period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("scan"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		period := scanPeriod
		if period == "" {
			period = missing.CurrentQuarter(time.Now())
		}

		rep, err := missing.NewService(st, notify.NewSlack(cfg.Slack)).Scan(ctx, period, scanNotify)
		if err != nil {
			return err
		}
		if scanJSON {
			return printJSON(cmd.OutOrStdout(), rep)
		}
		printMissing(cmd.OutOrStdout(), rep)
		return nil
	},
}

func printMissing(out io.Writer, rep *missing.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KPI\tNAME\tCATEGORY\tURGENCY\tLAST_REPORTED")
	_, _ = fmt.Fprintln(w, "---\t----\t--------\t-------\t-------------")
	for _, a := range rep.MissingKPIs {
		last := "never"
		if a.LastReported != nil {
			last = a.LastReported.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.KPIID, a.KPIName, a.Category, a.Urgency, last)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d of %d required KPIs missing for %s", rep.Summary.TotalMissing, rep.Summary.TotalRequired, rep.Period)
	if rep.AlertSent {
		_, _ = fmt.Fprint(out, " (alert sent)")
	}
	_, _ = fmt.Fprintln(out)
}

func init() {
	scanCmd.Flags().StringVar(&scanPeriod, "period", "", "reporting period, e.g. 2025 or 2025-Q2 (default current quarter)")
	scanCmd.Flags().BoolVar(&scanNotify, "notify", false, "post the missing list to Slack")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(scanCmd)
}

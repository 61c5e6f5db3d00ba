package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/reporting"
)

func newReportCmd() *cobra.Command {
	var (
		input  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a JSON-lines audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open audit log: %w", err)
				}
				defer f.Close()
				r = f
			}
			return runReport(r, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "audit log to read, - or empty for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runReport(r io.Reader, w io.Writer, asJSON bool) error {
	events, err := audit.ReadEvents(r)
	if err != nil {
		return err
	}
	report, err := reporting.NewRetrospectiveReporter().GenerateRetrospective(events)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window\t%s .. %s\n", report.DateFrom.Format("2006-01-02T15:04:05Z07:00"), report.DateTo.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(tw, "Attempts\t%d\n", report.TotalAttempts)
	fmt.Fprintf(tw, "Authorized\t%d (%.1f%%)\n", report.AuthorizedPayments, report.AuthorizationRatePct)
	fmt.Fprintf(tw, "Declined\t%d\n", report.DeclinedPayments)
	fmt.Fprintf(tw, "Compensated\t%d (%.1f%%)\n", report.CompensatedPayments, report.CompensationRatePct)

	for _, cur := range sortedKeys(report.AuthorizedAmount) {
		fmt.Fprintf(tw, "Authorized %s\t%d\n", cur, report.AuthorizedAmount[cur])
	}
	for _, reason := range sortedKeys(report.FailureReasons) {
		fmt.Fprintf(tw, "Failure %s\t%d\n", reason, report.FailureReasons[reason])
	}
	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/app/report"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

func newCasesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Browse stored cases and export reports",
	}
	cmd.AddCommand(newCasesListCmd(opts), newCasesShowCmd(opts), newCasesReportCmd(opts))
	return cmd
}

func newCasesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.controller.History(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cases yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tTITLE\tMESSAGES")
			for _, c := range all {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n",
					c.ID, c.StartTime.Local().Format("2006-01-02 15:04"), c.Title, len(c.Chat))
			}
			return tw.Flush()
		},
	}
}

func newCasesShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a case transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCaseID(args[0])
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.controller.Lookup(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Case #%d: %s\n", c.ID, c.Title)
			fmt.Fprintf(out, "Started: %s\n", c.StartTime.Local().Format("2006-01-02 15:04"))
			fmt.Fprintf(out, "Patient: %s\n", c.PatientData.Summary())
			for _, m := range c.Chat {
				who := "You"
				if m.Sender == domain.SenderAI {
					who = "Suma"
				}
				fmt.Fprintf(out, "\n[%s] %s:\n%s\n", m.Timestamp.Local().Format("15:04"), who, m.Text)
			}
			return nil
		},
	}
}

func newCasesReportCmd(opts *rootOptions) *cobra.Command {
	var (
		outPath string
		share   bool
	)

	cmd := &cobra.Command{
		Use:   "report ID",
		Short: "Export a case as a PDF report",
		Long: `Export a case as a PDF report.

Examples:
  suma cases report 3
  suma cases report 3 --out /tmp/case3.pdf --share`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCaseID(args[0])
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.controller.Lookup(cmd.Context(), id)
			if err != nil {
				return err
			}

			now := time.Now()
			path := outPath
			if path == "" {
				path = filepath.Join(".", report.FileName(now))
			}
			if err := writeReport(path, c, now); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Report saved to "+path)
			if share {
				fmt.Fprintln(out, report.ShareTitle(c))
				fmt.Fprintln(out, report.ShareText(c))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default Report_<date>.pdf in the current directory)")
	cmd.Flags().BoolVar(&share, "share", false, "also print the share caption")
	return cmd
}

func parseCaseID(s string) (domain.CaseID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("invalid case id %q", s)}
	}
	return domain.CaseID(n), nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strrl/ng12-assist/internal/assess"
	"github.com/strrl/ng12-assist/internal/db"
)

func newAssessCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <patient-id>",
		Short: "Run an NG12 risk assessment for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recorder assess.Recorder
			ledger, err := db.Open(a.cfg.LedgerPath)
			if err != nil {
				a.logger.Warn("assessment ledger unavailable", zap.String("path", a.cfg.LedgerPath), zap.Error(err))
			} else {
				defer ledger.Close()
				recorder = ledger
			}

			result, err := assess.NewRunner(a.client(), recorder, a.logger).Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), assess.Format(*result))
			return nil
		},
	}

	cmd.AddCommand(newAssessLogCommand(a))
	return cmd
}

func newAssessLogCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent assessments recorded on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := db.Open(a.cfg.LedgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No assessments recorded")
				return nil
			}
			for i, run := range runs {
				fmt.Fprintf(out, "%d. %s  %-10s  %s\n", i+1, run.RanAt.Local().Format("2006-01-02 15:04"), run.PatientID, run.Label)
				fmt.Fprintf(out, "   %s\n", truncateString(run.Reasoning, 100))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of assessments to show")
	return cmd
}

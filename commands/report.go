package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/staging"
)

// NewReportCommand prints the validation report for the current session.
func NewReportCommand(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the validation report for the staged session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Controller.Report(cmd.Context(), rt.Key)
			if errors.Is(err, staging.ErrSessionNotFound) {
				return fmt.Errorf("no staged session for %s", rt.Key)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			writeReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the validation report as JSON")
	return cmd
}

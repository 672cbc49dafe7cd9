package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/staging"
)

// NewRollbackCommand restores the session to an earlier save point.
func NewRollbackCommand(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rollback <save-point-id>",
		Short: "Restore the session to a save point and revalidate",
		Long: `Rollback restores the session's staged files to the state captured by
the named save point. Save points newer than the target are removed; use
"stageground savepoints" to list candidates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Controller.Rollback(cmd.Context(), rt.Key, args[0])
			if errors.Is(err, staging.ErrSavePointNotFound) {
				return fmt.Errorf("save point %s not found", args[0])
			}
			if errors.Is(err, staging.ErrSessionNotFound) {
				return fmt.Errorf("no staged session for %s", rt.Key)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back to %s\n", args[0])
			writeReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the validation report as JSON")
	return cmd
}

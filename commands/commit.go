package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/session"
)

// NewCommitCommand pushes the staged session through the commit sink.
func NewCommitCommand(env *Env) *cobra.Command {
	var (
		message  string
		override bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged session to the target branch",
		Long: `Commit revalidates the session, checks the target branch for divergent
upstream changes, and hands all staged files to the commit sink as one unit.
A blocked session commits only with --override; staged content is kept
whenever the commit does not succeed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Controller.Commit(cmd.Context(), rt.Key, message, override)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if result.State != session.StateCommitted {
					return fmt.Errorf("commit did not complete: %s", result.State)
				}
				return nil
			}

			out := cmd.OutOrStdout()
			switch result.State {
			case session.StateCommitted:
				if result.Overridden {
					fmt.Fprintln(out, "validation errors overridden")
				}
				fmt.Fprintf(out, "committed %s as %s\n", rt.Key, result.CommitID)
				return nil

			case session.StateBlocked:
				if result.Report != nil {
					writeReport(out, result.Report)
				}
				return fmt.Errorf("commit blocked by validation errors (use --override to force)")

			case session.StateConflictDetected:
				fmt.Fprintln(out, "upstream changes conflict with staged files:")
				for _, path := range result.DivergentPaths {
					fmt.Fprintf(out, "  %s\n", path)
				}
				return fmt.Errorf("commit aborted; staged content is preserved")

			default:
				return fmt.Errorf("commit failed: %s (staged content is preserved)", result.Reason)
			}
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (falls back to the session's pending message)")
	cmd.Flags().BoolVar(&override, "override", false, "Commit even when validation errors block the session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the commit result as JSON")
	return cmd
}

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/session"
)

// NewRmCommand unstages one file and prints the resulting report.
func NewRmCommand(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a staged file from the session and revalidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := checkRelativePath(path); err != nil {
				return err
			}

			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Controller.RemoveFile(cmd.Context(), rt.Key, path)
			if errors.Is(err, session.ErrNotStaged) {
				return fmt.Errorf("%s is not staged", path)
			}
			if err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
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

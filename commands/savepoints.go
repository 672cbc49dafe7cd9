package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/staging"
)

// NewSavePointsCommand lists the session's save-point history.
func NewSavePointsCommand(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "savepoints",
		Aliases: []string{"sp"},
		Short:   "List the session's save points, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			infos, err := rt.Controller.ListSavePoints(cmd.Context(), rt.Key)
			if errors.Is(err, staging.ErrSessionNotFound) {
				return fmt.Errorf("no staged session for %s", rt.Key)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			writeSavePoints(cmd.OutOrStdout(), infos)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print save points as JSON")
	return cmd
}

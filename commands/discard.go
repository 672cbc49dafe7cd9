package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDiscardCommand deletes the staged session.
func NewDiscardCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Discard the staged session and its save points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Controller.Discard(cmd.Context(), rt.Key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded session for %s\n", rt.Key)
			return nil
		},
	}
	return cmd
}

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewMessageCommand sets the session's pending commit message.
func NewMessageCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message <text>...",
		Short: "Set the pending commit message for the staged session",
		Long: `Message stores a commit message with the session. A later
"stageground commit" without -m uses it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			message := strings.Join(args, " ")
			if err := rt.Controller.SetMessage(cmd.Context(), rt.Key, message); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending commit message set for %s\n", rt.Key)
			return nil
		},
	}
	return cmd
}

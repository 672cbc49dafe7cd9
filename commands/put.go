package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewPutCommand stages one file from the local checkout into the session
// and prints the resulting validation report.
func NewPutCommand(env *Env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Stage a file and validate the session",
		Long: `Put reads <path> (relative to the checkout root) from disk, stages it
into the session, creates a save point, and runs validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.ToSlash(args[0])
			if err := checkRelativePath(path); err != nil {
				return err
			}

			rt, err := env.OpenRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			content, err := os.ReadFile(filepath.Join(rt.Config.Repo.Path, filepath.FromSlash(path)))
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			report, err := rt.Controller.PutFile(cmd.Context(), rt.Key, path, string(content))
			if err != nil {
				return fmt.Errorf("stage %s: %w", path, err)
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

// checkRelativePath rejects paths that could escape the checkout root.
func checkRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative to the checkout root: %s", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("path cannot contain ..: %s", path)
		}
	}
	return nil
}

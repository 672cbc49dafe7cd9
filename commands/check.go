package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/rules/guideline"
	"github.com/guidelab/stageground/validation"
)

// NewCheckCommand validates one file on disk without touching the session.
func NewCheckCommand(env *Env) *cobra.Command {
	var (
		component string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a single file without staging it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.ToSlash(args[0])
			if err := checkRelativePath(path); err != nil {
				return err
			}

			cfg, err := env.LoadConfig()
			if err != nil {
				return err
			}
			if component == "" {
				component = cfg.Validation.Component
			}

			content, err := os.ReadFile(filepath.Join(cfg.Repo.Path, filepath.FromSlash(path)))
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			registry, err := guideline.NewRegistry()
			if err != nil {
				return fmt.Errorf("build rule registry: %w", err)
			}
			engine := validation.NewEngine(registry, env.Logger())

			result := engine.ValidateFile(cmd.Context(), path, content, component)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			if len(result.Violations) == 0 {
				fmt.Fprintf(out, "%s: ok\n", path)
				return nil
			}
			fmt.Fprintf(out, "%s:\n", path)
			for _, v := range result.Violations {
				writeViolation(out, v)
			}
			if result.Blocked {
				return fmt.Errorf("%s has blocking errors", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "Narrow rules to one logical component")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the file result as JSON")
	return cmd
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/session"
	"github.com/guidelab/stageground/validation"
)

// NewWatchCommand stages local edits into the session as they happen.
func NewWatchCommand(env *Env) *cobra.Command {
	var (
		debounce   time.Duration
		extensions []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the checkout and stage artifact edits automatically",
		Long: `Watch monitors the checkout root for changes to guideline artifacts
(.bpmn, .dmn, .json by default). Each saved file is staged into the session
and validated; deleting a staged file removes it from the session. Press
Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := env.OpenRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			watcher, err := NewWatcher(rt.Config.Repo.Path, debounce, extensions, env.Logger())
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer watcher.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s for %s\n", rt.Config.Repo.Path, rt.Key)

			for event := range watcher.Events() {
				if ctx.Err() != nil {
					break
				}
				if err := stageEvent(ctx, rt, event, out); err != nil {
					env.Logger().Warn("Failed to stage change", "path", event.Path, "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "How long to wait for further changes before staging")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Artifact extensions to watch (default .bpmn,.dmn,.json)")
	return cmd
}

// stageEvent applies one watch event to the session and prints a summary.
func stageEvent(ctx context.Context, rt *Runtime, event WatchEvent, out io.Writer) error {
	if event.Removed {
		report, err := rt.Controller.RemoveFile(ctx, rt.Key, event.Path)
		if errors.Is(err, session.ErrNotStaged) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %s: %s\n", event.Path, summarize(report))
		return nil
	}

	content, err := os.ReadFile(filepath.Join(rt.Config.Repo.Path, filepath.FromSlash(event.Path)))
	if err != nil {
		return err
	}
	report, err := rt.Controller.PutFile(ctx, rt.Key, event.Path, string(content))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "staged %s: %s\n", event.Path, summarize(report))
	return nil
}

// summarize renders a one-line report rollup.
func summarize(report *validation.Report) string {
	status := "ready"
	if !report.CanCommit {
		status = "blocked"
	}
	return fmt.Sprintf("%d error(s), %d warning(s), %d info (%s)",
		report.Rollup.Errors, report.Rollup.Warnings, report.Rollup.Info, status)
}

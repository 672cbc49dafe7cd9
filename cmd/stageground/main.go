// Package main provides the stageground binary entry point. Stageground
// stages healthcare guideline artifacts, validates them against the
// guideline rule set, and commits clean sessions to the target branch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guidelab/stageground/commands"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "stageground"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	env := &commands.Env{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Staging and validation for guideline artifacts",
		Long: `Stageground stages BPMN, DMN, and FHIR artifacts into a server-side
session, validates every edit against the guideline rule set, and commits
clean sessions to the target branch as a single unit.

Subcommands operate on the repository configured in stageground.yaml;
"serve" runs the NATS staging service used by collaborative editors.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&env.ConfigPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&env.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		commands.NewPutCommand(env),
		commands.NewRmCommand(env),
		commands.NewReportCommand(env),
		commands.NewSavePointsCommand(env),
		commands.NewRollbackCommand(env),
		commands.NewDiscardCommand(env),
		commands.NewCommitCommand(env),
		commands.NewMessageCommand(env),
		commands.NewCheckCommand(env),
		commands.NewWatchCommand(env),
		serveCmd(env),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(env *commands.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the staging service over NATS",
		Long: `Serve starts NATS (embedded unless nats.url is configured), ensures the
STAGING stream exists, and runs the staging-api component until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(env)
		},
	}
}

func runServe(env *commands.Env) error {
	logger := env.Logger()

	cfg, err := env.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Repo.Owner == "" || cfg.Repo.Name == "" {
		return fmt.Errorf("repo.owner and repo.name must be configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	app.Shutdown(shutdownCtx, 10*time.Second)
	return nil
}

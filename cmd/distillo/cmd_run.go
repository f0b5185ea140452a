package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/distillo"
)

var runFlags struct {
	web     string
	prompts string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the board and speech services and start serving guests",
	RunE:  runRobot,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.web, "web", "", "Serve the status API on this address, e.g. :8080")
	f.StringVar(&runFlags.prompts, "prompts", "", "Directory with <MODE>/system_prompt.md overrides")
}

func runRobot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.web != "" {
		cfg.WebAddr = runFlags.web
	}
	if runFlags.prompts != "" {
		cfg.Agent.PromptDir = runFlags.prompts
	}

	app, err := distillo.New(cfg, distillo.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}

// Command distillo runs the Don Distillo cocktail robot: it listens through
// the board microphone, talks to the guest through an LLM agent and guides
// each pour with the scale.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/distillo"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config   string
	debug    bool
	logLevel string
	espHost  string
}

var rootCmd = &cobra.Command{
	Use:   "distillo",
	Short: "Voice-driven cocktail robot",
	Long:  "Distillo connects the bar board, speech recognition, speech synthesis\nand an LLM agent, and mixes the drink the guest asks for.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootFlags.config, "config", "c", "", "YAML config file")
	f.BoolVar(&rootFlags.debug, "debug", false, "Enable verbose debug logging")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&rootFlags.espHost, "esp-host", "", "Board address (overrides ESP_HOST)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scaleCmd)
	rootCmd.Version = version
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig() (distillo.Config, error) {
	cfg := distillo.DefaultConfig()
	if rootFlags.config != "" {
		if err := cfg.LoadFile(rootFlags.config); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnvConfig()

	if rootFlags.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.espHost != "" {
		cfg.ESP.Host = rootFlags.espHost
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-distillo/internal/config"
	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/esp"
	"github.com/teslashibe/go-distillo/pkg/node"
	"github.com/teslashibe/go-distillo/pkg/stream"
)

var scaleFlags struct {
	zero     bool
	duration time.Duration
}

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Print scale readings from the board",
	Long:  "Connects to the board control port and prints every weight reading\ntogether with the stable weight the workflow would see.",
	RunE:  runScale,
}

func init() {
	f := scaleCmd.Flags()
	f.BoolVar(&scaleFlags.zero, "zero", false, "Tare the scale before reading")
	f.DurationVarP(&scaleFlags.duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
}

func runScale(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.L()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if scaleFlags.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, scaleFlags.duration)
		defer cancel()
	}

	conn, err := stream.Dial(ctx, config.Addr(cfg.ESP.Host, cfg.ESP.ControlPort),
		stream.Bytes(), stream.RawBytes(),
		stream.WithName("esp-control"), stream.WithLogger(logger))
	if err != nil {
		return err
	}
	defer conn.Close()

	watcher := esp.NewWeightWatcher("weight-watcher", cfg.ESP.Window, cfg.ESP.Tolerance, logger)
	control := esp.NewControl("esp-control", watcher, logger)
	control.Attach(conn)
	conn.Subscribe(control)
	control.Subscribe(watcher)

	out := cmd.OutOrStdout()
	control.Subscribe(node.ReceiverFunc[esp.Telemetry](func(t esp.Telemetry, _ string) error {
		if w, ok := watcher.Stable(); ok {
			fmt.Fprintf(out, "%8.1f g  (stable %.1f g)\n", t.Value, w)
		} else {
			fmt.Fprintf(out, "%8.1f g\n", t.Value)
		}
		return nil
	}))

	if scaleFlags.zero {
		if err := control.ZeroScale(); err != nil {
			return err
		}
	}
	return conn.Run(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral"
	"github.com/srg/blecentral/internal/lua"
)

var runCmd = &cobra.Command{
	Use:   "run [script.lua]",
	Short: "Run a Lua script against the engine",
	Long: `Run a Lua script with the global 'ble' table bound to the engine.

Scripts are event driven: register handlers with ble.on(event, fn) and
timers with ble.after(ms, fn), then finish with ble.exit(code). The command
exits with the script's code, or when --timeout elapses or Ctrl+C is pressed.

Example:
  ble.on("device_found", function(e) print(e.address, e.name, e.rssi) end)
  ble.start_scan()
  ble.after(5000, function() ble.stop_scan(); ble.exit(0) end)

Bundled scripts run with --example: ` + strings.Join(blecentral.ExampleNames(), ", "),
	Args: cobra.MaximumNArgs(1),
	RunE: runScript,
}

var (
	runTimeout    time.Duration
	runBufferSize uint32
	runExample    string
)

const (
	scriptOutputCapacity = 1024
	drainInterval        = 50 * time.Millisecond
)

func init() {
	runCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 0, "Stop the script after this long (0 runs until exit or Ctrl+C)")
	runCmd.Flags().Uint32Var(&runBufferSize, "output-buffer", 4096, "Script output lines kept while the terminal catches up")
	runCmd.Flags().StringVarP(&runExample, "example", "e", "", "Run a bundled example instead of a file")
}

// loadScript returns the source and display name of the script to run.
func loadScript(args []string) (string, string, error) {
	switch {
	case runExample != "" && len(args) > 0:
		return "", "", fmt.Errorf("give either a script file or --example, not both")
	case runExample != "":
		source, err := blecentral.ExampleScript(runExample)
		return source, runExample + ".lua", err
	case len(args) == 0:
		return "", "", fmt.Errorf("a script file or --example is required")
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(source), filepath.Base(args[0]), nil
}

func runScript(cmd *cobra.Command, args []string) error {
	source, name, err := loadScript(args)
	if err != nil {
		return err
	}

	c, _, logger, err := openCentral(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	api := lua.NewAPI(c, scriptOutputCapacity, logger)
	defer api.Close()

	collector, err := lua.NewOutputCollector(api.Engine().Output(), runBufferSize)
	if err != nil {
		return err
	}
	if err := collector.Start(); err != nil {
		return err
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	drain := func() {
		_ = collector.Drain(func(rec lua.OutputRecord) {
			w := stdout
			if rec.Source == "stderr" {
				w = stderr
			}
			io.WriteString(w, rec.Content)
		})
	}

	drainDone := make(chan struct{})
	stopDrain := make(chan struct{})
	go func() {
		defer close(drainDone)
		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				drain()
			case <-stopDrain:
				return
			}
		}
	}()

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if runTimeout > 0 {
		var cancel context.CancelFunc
		base, cancel = context.WithTimeout(base, runTimeout)
		defer cancel()
	}
	ctx, cancel := interruptContext(cmd, base)
	defer cancel()

	code, runErr := api.Run(ctx, source, name)

	// Let records already pushed by the engine reach the ring before the
	// final drain.
	time.Sleep(drainInterval)
	close(stopDrain)
	<-drainDone
	collector.Stop()
	drain()

	if m := collector.Metrics(); m.RecordsOverwritten > 0 {
		logger.WithField("lines", m.RecordsOverwritten).Warn("Script output dropped while the terminal was busy")
	}

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		return nil
	case runErr != nil:
		return runErr
	case code != 0:
		return &exitCodeError{code: code}
	}
	return nil
}

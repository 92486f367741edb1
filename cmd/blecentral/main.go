package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "blecentral",
	Short: "BLE central-role engine CLI",
	Long: `Bluetooth Low Energy central-role command-line tool:

- Scan for nearby peripherals, ranked by signal strength
- Connect, inspect the GATT catalog, read and write characteristics
- Watch notifications and indications as they arrive
- Drive the engine from Lua scripts
- Mirror engine events to an MQTT broker`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Colors only when a human is watching
		color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mqttCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "Radio backend (goble, hci)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

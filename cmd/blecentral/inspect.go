package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/device"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <address>",
	Short: "Connect and print the GATT catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var (
	inspectTimeout time.Duration
	inspectFormat  string
)

func init() {
	inspectCmd.Flags().DurationVarP(&inspectTimeout, "timeout", "t", 30*time.Second, "Time to wait for the connection to become ready")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", formatText, "Output format (text, json)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := validateFormat(inspectFormat, formatText, formatJSON); err != nil {
		return err
	}
	return withConnection(cmd, args[0], inspectTimeout, func(_ context.Context, c *central.Central, address string) error {
		services, err := c.Services(address)
		if err != nil {
			return err
		}
		if inspectFormat == formatJSON {
			return writeJSON(cmd.OutOrStdout(), services)
		}
		writeCatalog(cmd.OutOrStdout(), address, services)
		return nil
	})
}

// withConnection opens the engine, connects to address and runs fn once the
// connection is ready. The connection is dropped when fn returns.
func withConnection(cmd *cobra.Command, address string, timeout time.Duration,
	fn func(ctx context.Context, c *central.Central, address string) error) error {
	c, _, logger, err := openCentral(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := interruptContext(cmd, base)
	defer cancel()

	key := device.NormalizeAddress(address)
	connectCtx, connectCancel := context.WithTimeout(ctx, timeout)
	defer connectCancel()
	if err := connectReady(connectCtx, c, key); err != nil {
		_ = c.Disconnect(key)
		return err
	}
	logger.WithField("address", key).Info("Connection ready")

	defer func() {
		if c.IsConnected(key) {
			_ = c.Disconnect(key)
		}
	}()
	return fn(ctx, c, key)
}

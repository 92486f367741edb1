package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy peripherals and print them ranked by
signal strength, strongest first.

With --watch, discovery events are streamed as they happen until Ctrl+C.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 scans until Ctrl+C)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", formatTable, "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Only keep devices advertising these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only keep devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Drop devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", false, "Report only the first advertisement of each device")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Stream discovery events instead of printing a table")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(scanFormat, formatTable, formatJSON); err != nil {
		return err
	}
	if len(scanServices) > 0 {
		if _, err := device.ValidateUUID(scanServices...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if len(scanServices) > 0 {
		cfg.Filter.Services = scanServices
	}
	if len(scanAllowList) > 0 {
		cfg.Filter.AllowList = scanAllowList
	}
	if len(scanBlockList) > 0 {
		cfg.Filter.BlockList = scanBlockList
	}
	if cmd.Flags().Changed("no-duplicates") {
		cfg.AllowDuplicates = !scanNoDuplicate
	}

	c, err := newCentral(cfg, logger)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return fmt.Errorf("failed to create BLE central: %w", err)
	}
	defer c.Close()

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if scanDuration > 0 && (!scanWatch || cmd.Flags().Changed("duration")) {
		var cancel context.CancelFunc
		base, cancel = context.WithTimeout(base, scanDuration)
		defer cancel()
	}
	ctx, cancel := interruptContext(cmd, base)
	defer cancel()

	if scanWatch {
		return watchScan(ctx, cmd, c)
	}
	return timedScan(ctx, cmd, c)
}

func timedScan(ctx context.Context, cmd *cobra.Command, c *central.Central) error {
	if err := c.StartScan(); err != nil {
		return err
	}
	if scanFormat == formatTable {
		fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for BLE devices (%s)...\n", scanDuration)
	}

	<-ctx.Done()
	if err := c.StopScan(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}

	devices := c.Devices()
	if scanFormat == formatJSON {
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	return writePeripheralTable(cmd.OutOrStdout(), devices)
}

func watchScan(ctx context.Context, cmd *cobra.Command, c *central.Central) error {
	out := cmd.OutOrStdout()
	unsub := c.OnAll(func(e events.Event) {
		switch {
		case e.Type == events.DeviceFound,
			e.Type == events.RSSIChanged && e.Source == events.SourceDiscovery,
			e.Type == events.ErrorOccurred && e.Address == "":
		default:
			return
		}
		if scanFormat == formatJSON {
			_ = writeJSON(out, e)
			return
		}
		writeEventLine(out, e)
	})
	defer unsub()

	if err := c.StartScan(); err != nil {
		return err
	}
	<-ctx.Done()
	return c.StopScan()
}

package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
)

var watchCmd = &cobra.Command{
	Use:   "watch <address> [<service> <characteristic>]",
	Short: "Read a characteristic, then stream its notifications",
	Long: `Connect, read the characteristic (which also enables notifications or
indications when it supports them) and print every value change until
Ctrl+C or --duration elapses.`,
	Args: readArgs,
	RunE: runWatch,
}

var (
	watchKnown    string
	watchDuration time.Duration
	watchTimeout  time.Duration
	watchFormat   string
	watchRSSI     time.Duration
)

func init() {
	watchCmd.Flags().StringVarP(&watchKnown, "known", "k", "", "Well-known value to watch: "+knownNames())
	watchCmd.Flags().DurationVarP(&watchDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	watchCmd.Flags().DurationVarP(&watchTimeout, "timeout", "t", 30*time.Second, "Time to wait for the connection and the first value")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", formatText, "Output format (text, json)")
	watchCmd.Flags().DurationVar(&watchRSSI, "rssi-interval", 0, "Also poll the link RSSI at this interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := validateFormat(watchFormat, formatText, formatJSON); err != nil {
		return err
	}
	service, char := resolveTarget(watchKnown, args)
	charKey := device.CanonicalUUID(char)

	return withConnection(cmd, args[0], watchTimeout, func(ctx context.Context, c *central.Central, address string) error {
		if watchDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchDuration)
			defer cancel()
		}

		out := cmd.OutOrStdout()
		lost := make(chan struct{})
		var lostOnce sync.Once
		unsub := c.OnAll(func(e events.Event) {
			if e.Address != address {
				return
			}
			switch {
			case e.Type == events.Disconnected:
				lostOnce.Do(func() { close(lost) })
				return
			case (e.Type == events.ValueRead || e.Type == events.ValueChanged) && e.Characteristic == charKey,
				e.Type == events.RSSIChanged && e.Source == events.SourceLink,
				e.Type == events.ErrorOccurred:
			default:
				return
			}
			if watchFormat == formatJSON {
				_ = writeJSON(out, e)
				return
			}
			writeEventLine(out, e)
		})
		defer unsub()

		readCtx, cancel := context.WithTimeout(ctx, watchTimeout)
		err := await(readCtx, c,
			func() error { return c.Read(address, service, char, codec.Offsets{}) },
			valueResult(address, char, nil, events.ValueRead, events.ValueChanged))
		cancel()
		if err != nil {
			return err
		}

		var tick <-chan time.Time
		if watchRSSI > 0 {
			ticker := time.NewTicker(watchRSSI)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-lost:
				return ErrConnectionLost
			case <-tick:
				if err := c.ReadRSSI(address); err != nil {
					return err
				}
			}
		}
	})
}

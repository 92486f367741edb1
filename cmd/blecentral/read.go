package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/events"
)

var readCmd = &cobra.Command{
	Use:   "read <address> [<service> <characteristic>]",
	Short: "Read a characteristic value",
	Long: `Connect to a peripheral, read one characteristic and print every decoded
representation of its value.

The characteristic is given either as service and characteristic UUIDs or
with --known for the well-known profiles (battery, temperature, heart_rate,
tx_power, link_loss).`,
	Args: readArgs,
	RunE: runRead,
}

var (
	readKnown       string
	readIntOffset   int
	readFloatOffset int
	readTextOffset  int
	readTimeout     time.Duration
	readFormat      string
)

func init() {
	readCmd.Flags().StringVarP(&readKnown, "known", "k", "", "Well-known value to read: "+knownNames())
	readCmd.Flags().IntVar(&readIntOffset, "int-offset", 0, "Byte offset of the integer representation")
	readCmd.Flags().IntVar(&readFloatOffset, "float-offset", 0, "Byte offset of the float representation")
	readCmd.Flags().IntVar(&readTextOffset, "text-offset", 0, "Byte offset of the text representation")
	readCmd.Flags().DurationVarP(&readTimeout, "timeout", "t", 30*time.Second, "Time to wait for the connection and the value")
	readCmd.Flags().StringVarP(&readFormat, "format", "f", formatText, "Output format (text, json)")
}

func knownNames() string {
	names := make([]string, 0, len(central.KnownReads))
	for name := range central.KnownReads {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func readArgs(cmd *cobra.Command, args []string) error {
	known, _ := cmd.Flags().GetString("known")
	if known != "" {
		if _, ok := central.KnownReads[known]; !ok {
			return fmt.Errorf("unknown --known value %q: must be one of %s", known, knownNames())
		}
		return cobra.ExactArgs(1)(cmd, args)
	}
	return cobra.ExactArgs(3)(cmd, args)
}

// resolveTarget returns the service and characteristic a command addresses.
func resolveTarget(known string, args []string) (string, string) {
	if known != "" {
		target := central.KnownReads[known]
		return target[0], target[1]
	}
	return args[1], args[2]
}

func runRead(cmd *cobra.Command, args []string) error {
	if err := validateFormat(readFormat, formatText, formatJSON); err != nil {
		return err
	}
	service, char := resolveTarget(readKnown, args)
	offsets := codec.Offsets{Int: readIntOffset, Float: readFloatOffset, Text: readTextOffset}

	return withConnection(cmd, args[0], readTimeout, func(ctx context.Context, c *central.Central, address string) error {
		ctx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		var got events.Event
		err := await(ctx, c,
			func() error { return c.Read(address, service, char, offsets) },
			valueResult(address, char, &got, events.ValueRead, events.ValueChanged))
		if err != nil {
			return err
		}

		if readFormat == formatJSON {
			return writeJSON(cmd.OutOrStdout(), got)
		}
		writeReading(cmd.OutOrStdout(), got.Value)
		return nil
	})
}

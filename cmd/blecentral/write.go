package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
)

var writeCmd = &cobra.Command{
	Use:   "write <address> <service> <characteristic> <value>",
	Short: "Write a characteristic value",
	Long: `Connect to a peripheral and write one characteristic.

The value is interpreted according to --type:
  text   UTF-8 text, replacing the whole value (default)
  int    integer encoded with --int-format at --offset
  float  IEEE-754 single at --offset
  hex    raw bytes, e.g. "01 ff 10" or "01:ff:10"

Integer and float writes are applied over the characteristic's last known
value, so use 'read' first when writing into the middle of a record.`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeType      string
	writeIntFormat string
	writeOffset    int
	writeReadFirst bool
	writeTimeout   time.Duration
)

func init() {
	writeCmd.Flags().StringVar(&writeType, "type", "text", "Value type (text, int, float, hex)")
	writeCmd.Flags().StringVar(&writeIntFormat, "int-format", "uint8", "Integer format (uint8, uint16, uint32, sint8, sint16, sint32)")
	writeCmd.Flags().IntVar(&writeOffset, "offset", 0, "Byte offset for int and float values")
	writeCmd.Flags().BoolVar(&writeReadFirst, "read-first", false, "Read the current value before writing")
	writeCmd.Flags().DurationVarP(&writeTimeout, "timeout", "t", 30*time.Second, "Time to wait for the connection and the write")
}

// parseWriteValue builds the payload for a write from its textual form.
func parseWriteValue(kind, value, intFormat string, offset int) (central.Payload, error) {
	switch kind {
	case "text":
		return central.TextPayload(value), nil
	case "int":
		format, err := codec.ParseFormat(intFormat)
		if err != nil {
			return central.Payload{}, err
		}
		var n int64
		if _, err := fmt.Sscan(value, &n); err != nil {
			return central.Payload{}, fmt.Errorf("%w: %q is not an integer", device.ErrInvalidArgument, value)
		}
		return central.IntPayload(n, format, offset), nil
	case "float":
		var f float32
		if _, err := fmt.Sscan(value, &f); err != nil {
			return central.Payload{}, fmt.Errorf("%w: %q is not a number", device.ErrInvalidArgument, value)
		}
		return central.FloatPayload(f, offset), nil
	case "hex":
		cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(value)
		cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "0x")
		b, err := hex.DecodeString(cleaned)
		if err != nil {
			return central.Payload{}, fmt.Errorf("%w: invalid hex %q", device.ErrInvalidArgument, value)
		}
		return central.RawPayload(b), nil
	default:
		return central.Payload{}, fmt.Errorf("invalid type '%s': must be one of [text int float hex]", kind)
	}
}

func runWrite(cmd *cobra.Command, args []string) error {
	payload, err := parseWriteValue(writeType, args[3], writeIntFormat, writeOffset)
	if err != nil {
		return err
	}
	service, char := args[1], args[2]

	return withConnection(cmd, args[0], writeTimeout, func(ctx context.Context, c *central.Central, address string) error {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		if writeReadFirst {
			err := await(ctx, c,
				func() error { return c.Read(address, service, char, codec.Offsets{}) },
				valueResult(address, char, nil, events.ValueRead, events.ValueChanged))
			if err != nil {
				return fmt.Errorf("read before write: %w", err)
			}
		}

		err := await(ctx, c,
			func() error { return c.Write(address, service, char, payload) },
			valueResult(address, char, nil, events.ValueWrite))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", payload, device.NormalizeUUID(char))
		return nil
	})
}

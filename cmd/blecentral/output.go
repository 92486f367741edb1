package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/registry"
)

const (
	formatTable = "table"
	formatText  = "text"
	formatJSON  = "json"
)

var (
	addressColor = color.New(color.FgCyan)
	goodColor    = color.New(color.FgGreen)
	badColor     = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
)

func validateFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, allowed)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePeripheralTable renders the ranking, strongest signal first.
func writePeripheralTable(w io.Writer, peripherals []registry.Peripheral) error {
	if len(peripherals) == 0 {
		_, err := fmt.Fprintln(w, "No devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tNAME\tRSSI\tCONNECTABLE\tSERVICES")
	for i, p := range peripherals {
		name := p.Name
		if name == "" {
			name = "-"
		}
		services := "-"
		if len(p.Services) > 0 {
			services = strings.Join(p.Services, ",")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\n",
			i+1, addressColor.Sprint(p.Address), name, p.RSSI, p.Connectable, services)
	}
	return tw.Flush()
}

// writeCatalog renders the discovered services as an indented tree.
func writeCatalog(w io.Writer, address string, services []central.ServiceView) {
	fmt.Fprintf(w, "%s\n", addressColor.Sprint(address))
	for _, svc := range services {
		fmt.Fprintf(w, "  service %s\n", svc.UUID)
		for _, ch := range svc.Characteristics {
			fmt.Fprintf(w, "    characteristic %s [%s]\n", ch.UUID, ch.Flags)
		}
	}
}

// writeReading prints every decoded representation of a value.
func writeReading(w io.Writer, r codec.Reading) {
	fmt.Fprintf(w, "int:   %d\n", r.Int)
	fmt.Fprintf(w, "float: %g\n", r.Float)
	fmt.Fprintf(w, "text:  %q\n", r.Text)
	fmt.Fprintf(w, "raw:   %s\n", r.Raw)
	fmt.Fprintf(w, "hex:   % x\n", r.Bytes)
}

// writeEventLine prints one event per line for streaming commands.
func writeEventLine(w io.Writer, e events.Event) {
	ts := dimColor.Sprint(e.Timestamp.Format("15:04:05.000"))
	label := string(e.Type)
	switch e.Type {
	case events.ErrorOccurred, events.Disconnected:
		label = badColor.Sprint(label)
	case events.Ready, events.Connected:
		label = goodColor.Sprint(label)
	}

	switch e.Type {
	case events.DeviceFound:
		fmt.Fprintf(w, "%s %s %s %q rssi=%d\n", ts, label, addressColor.Sprint(e.Address), e.Name, e.RSSI)
	case events.RSSIChanged:
		fmt.Fprintf(w, "%s %s %s rssi=%d (%s)\n", ts, label, addressColor.Sprint(e.Address), e.RSSI, e.Source)
	case events.ValueRead, events.ValueChanged:
		fmt.Fprintf(w, "%s %s %s %s int=%d text=%q raw=%s\n", ts, label, addressColor.Sprint(e.Address),
			device.NormalizeUUID(e.Characteristic), e.Value.Int, e.Value.Text, e.Value.Raw)
	case events.ErrorOccurred:
		fmt.Fprintf(w, "%s %s %s %v\n", ts, label, addressColor.Sprint(e.Address), e.Err)
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, label, addressColor.Sprint(e.Address))
	}
}

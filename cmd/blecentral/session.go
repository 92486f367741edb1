package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/pkg/config"
)

// newCentral builds the engine for a command; tests swap in a mock radio.
var newCentral = func(cfg *config.Config, logger *logrus.Logger) (*central.Central, error) {
	return central.New(cfg.RadioFactory(), cfg.CentralOptions(), logger)
}

// setup loads --config and applies the --log-level and --backend overrides.
// Without an explicit level the CLI logs nothing below panic, so command
// output stays clean.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	level, _ := cmd.Flags().GetString("log-level")
	if level != "" {
		cfg.LogLevel = level
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	if level == "" && path == "" {
		logger.SetLevel(logrus.PanicLevel)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	return cfg, logger, nil
}

// openCentral runs setup and creates the engine.
func openCentral(cmd *cobra.Command) (*central.Central, *config.Config, *logrus.Logger, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := newCentral(cfg, logger)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, nil, nil, err
	}
	return c, cfg, logger, nil
}

// interruptContext is cancelled on Ctrl+C or SIGTERM.
func interruptContext(cmd *cobra.Command, parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// await registers match on the bus, runs issue, then waits for match to
// accept an event. match returns done=true to finish, with err as the result.
func await(ctx context.Context, c *central.Central, issue func() error, match func(events.Event) (done bool, err error)) error {
	result := make(chan error, 1)
	unsub := c.OnAll(func(e events.Event) {
		if done, err := match(e); done {
			select {
			case result <- err:
			default:
			}
		}
	})
	defer unsub()

	if err := issue(); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectReady connects to address and waits for the Ready event.
func connectReady(ctx context.Context, c *central.Central, address string) error {
	key := device.NormalizeAddress(address)
	return await(ctx, c, func() error { return c.Connect(key) }, func(e events.Event) (bool, error) {
		if e.Address != key {
			return false, nil
		}
		switch e.Type {
		case events.Ready:
			return true, nil
		case events.ErrorOccurred:
			if e.Characteristic == "" {
				return true, e.Err
			}
		case events.Disconnected:
			if e.Err != nil {
				return true, fmt.Errorf("%w: %w", ErrConnectionLost, e.Err)
			}
			return true, ErrConnectionLost
		}
		return false, nil
	})
}

// valueResult waits for the outcome of an operation on one characteristic.
func valueResult(address, charUUID string, out *events.Event, want ...events.Type) func(events.Event) (bool, error) {
	key := device.NormalizeAddress(address)
	char := device.CanonicalUUID(charUUID)
	return func(e events.Event) (bool, error) {
		if e.Address != key {
			return false, nil
		}
		switch {
		case e.Type == events.Disconnected:
			return true, ErrConnectionLost
		case e.Type == events.ErrorOccurred && (e.Characteristic == "" || e.Characteristic == char):
			return true, e.Err
		case slices.Contains(want, e.Type) && e.Characteristic == char:
			if out != nil {
				*out = e
			}
			return true, nil
		}
		return false, nil
	}
}

//go:build test

package main

import (
	"bytes"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/config"
)

// syncBuffer is a bytes.Buffer safe for the event goroutine and the test to
// share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite extends PeripheralSuite with command testing utilities.
// Commands get their engine from the suite's simulated radio.
// All cmd/blecentral test suites should embed this instead of PeripheralSuite.
type CommandTestSuite struct {
	testutils.PeripheralSuite

	originalNewCentral func(*config.Config, *logrus.Logger) (*central.Central, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.PeripheralSuite.SetupTest()

	s.originalNewCentral = newCentral
	newCentral = func(cfg *config.Config, logger *logrus.Logger) (*central.Central, error) {
		opts := cfg.CentralOptions()
		opts.RSSIDelay = s.CentralOptions().RSSIDelay
		return central.New(s.Radio.Factory(), opts, logger)
	}
	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	newCentral = s.originalNewCentral
	s.PeripheralSuite.TearDownTest()
}

// resetFlags restores every flag of cmd and its subcommands to its default.
// pflag remembers Changed across Execute calls, and package-level flag
// variables keep the previous test's values.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SilenceUsage = false
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// ExecuteCommand runs the root command with args and returns stdout, stderr
// and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(syncBuffer), new(syncBuffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// Lines splits command output into non-empty lines.
func (s *CommandTestSuite) Lines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

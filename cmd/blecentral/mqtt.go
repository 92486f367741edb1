package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/mqttbridge"
	"github.com/srg/blecentral/pkg/config"
)

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Bridge engine events and commands to an MQTT broker",
	Long: `Publish every engine event to an MQTT broker and accept commands until
Ctrl+C.

  <prefix>/bridge/state                   online | offline (retained)
  <prefix>/bridge/error                   failed commands
  <prefix>/scan/<address>/<event>         discovery events
  <prefix>/<address>/<event>              connection and value events
  <prefix>/<address>/set/connect          {}
  <prefix>/<address>/set/disconnect       {}
  <prefix>/<address>/set/read             {"service":"180f","characteristic":"2a19"}
  <prefix>/<address>/set/write            {"service":"..","characteristic":"..","int":1,"format":"uint8"}

Broker settings come from the mqtt section of --config; flags override them.`,
	Args: cobra.NoArgs,
	RunE: runMQTT,
}

var (
	mqttBroker string
	mqttPrefix string
	mqttScan   bool
)

func init() {
	mqttCmd.Flags().StringVar(&mqttBroker, "broker", "", "Broker URL, e.g. tcp://localhost:1883")
	mqttCmd.Flags().StringVar(&mqttPrefix, "prefix", "", "Topic prefix")
	mqttCmd.Flags().BoolVar(&mqttScan, "scan", true, "Scan while the bridge runs")
}

// bridgeConfig merges the flag overrides into the mqtt config section.
func bridgeConfig(section config.MQTT) mqttbridge.Config {
	if mqttBroker != "" {
		section.Broker = mqttBroker
	}
	if mqttPrefix != "" {
		section.TopicPrefix = mqttPrefix
	}
	return mqttbridge.Config{
		Broker:      section.Broker,
		ClientID:    section.ClientID,
		Username:    section.Username,
		Password:    section.Password,
		TopicPrefix: section.TopicPrefix,
	}
}

func runMQTT(cmd *cobra.Command, _ []string) error {
	c, cfg, logger, err := openCentral(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	bridge, err := mqttbridge.NewBridge(c, bridgeConfig(cfg.MQTT), logger)
	if err != nil {
		return err
	}
	bridge.Start()
	defer bridge.Stop()

	if mqttScan {
		if err := c.StartScan(); err != nil {
			return err
		}
		defer c.StopScan()
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := interruptContext(cmd, base)
	defer cancel()

	fmt.Fprintf(cmd.ErrOrStderr(), "Bridging to %s, press Ctrl+C to stop\n", bridgeConfig(cfg.MQTT).Broker)
	<-ctx.Done()
	return nil
}

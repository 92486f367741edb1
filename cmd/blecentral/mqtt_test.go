package main

import (
	"testing"

	"github.com/srg/blecentral/internal/mqttbridge"
	"github.com/srg/blecentral/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestBridgeConfig(t *testing.T) {
	// GOAL: Verify --broker and --prefix override the mqtt config section and nothing else
	//
	// TEST SCENARIO: config section with credentials + flag overrides → merged bridge config

	oldBroker, oldPrefix := mqttBroker, mqttPrefix
	defer func() { mqttBroker, mqttPrefix = oldBroker, oldPrefix }()

	section := config.MQTT{
		Broker:      "tcp://config:1883",
		ClientID:    "central-1",
		TopicPrefix: "home/ble",
		Username:    "user",
		Password:    "secret",
	}

	mqttBroker, mqttPrefix = "", ""
	assert.Equal(t, mqttbridge.Config{
		Broker:      "tcp://config:1883",
		ClientID:    "central-1",
		Username:    "user",
		Password:    "secret",
		TopicPrefix: "home/ble",
	}, bridgeConfig(section), "without flags the config section MUST be used as is")

	mqttBroker, mqttPrefix = "tcp://flag:1883", "lab"
	cfg := bridgeConfig(section)
	assert.Equal(t, "tcp://flag:1883", cfg.Broker)
	assert.Equal(t, "lab", cfg.TopicPrefix)
	assert.Equal(t, "central-1", cfg.ClientID, "flags MUST NOT touch fields they do not name")
}

// Package mqttbridge mirrors engine events onto an MQTT broker and turns
// command messages back into engine calls.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/bridge/state                     online | offline (retained, last will)
//	<prefix>/bridge/error                     failed commands
//	<prefix>/scan/<address>/<event_type>      discovery events
//	<prefix>/<address>/<event_type>           connection events
//	<prefix>/<address>/set/<command>          connect | disconnect | read | write
package mqttbridge

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	quiesceMillis  = 1000
)

// Command names accepted under <prefix>/<address>/set/.
const (
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandRead       = "read"
	CommandWrite      = "write"
)

// ErrUnknownCommand is reported for a set/ topic the bridge does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// Engine is the part of the central the bridge drives.
type Engine interface {
	OnAll(h events.Handler) func()
	Connect(address string) error
	Disconnect(address string) error
	Read(address, serviceUUID, charUUID string, offsets codec.Offsets) error
	Write(address, serviceUUID, charUUID string, payload central.Payload) error
}

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Request is the JSON body of read and write commands. Exactly one of Text,
// Int, Float or Raw selects the write payload.
type Request struct {
	Service        string        `json:"service"`
	Characteristic string        `json:"characteristic"`
	Offsets        codec.Offsets `json:"offsets"`

	Text   *string  `json:"text,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Float  *float32 `json:"float,omitempty"`
	Raw    *string  `json:"raw,omitempty"`
	Format string   `json:"format,omitempty"`
	Offset int      `json:"offset,omitempty"`
}

// Failure is published to <prefix>/bridge/error when a command fails.
type Failure struct {
	Address   string    `json:"address"`
	Command   string    `json:"command"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge connects the engine's event stream to MQTT.
type Bridge struct {
	client pahomqtt.Client
	engine Engine
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	unsub func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(engine Engine, cfg Config, logger *logrus.Logger) (*Bridge, error) {
	b := newBridge(engine, cfg.TopicPrefix, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.stateTopic(), "offline", 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.WithError(err).Warn("MQTT connection lost")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(engine Engine, prefix string, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		engine: engine,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
	}
}

// Start subscribes to engine events and begins publishing.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsub != nil {
		return
	}
	b.unsub = b.engine.OnAll(b.handleEvent)
	b.logger.WithField("prefix", b.prefix).Info("MQTT bridge started")
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsub := b.unsub
	b.unsub = nil
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	token := b.client.Publish(b.stateTopic(), 1, true, "offline")
	token.WaitTimeout(publishTimeout)
	b.client.Disconnect(quiesceMillis)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: subscriptions do not survive a clean
// session.
func (b *Bridge) onConnect(client pahomqtt.Client) {
	b.logger.WithField("prefix", b.prefix).Info("MQTT connected")
	b.publish(b.stateTopic(), []byte("online"), true)

	filter := b.prefix + "/+/set/+"
	token := client.Subscribe(filter, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.WithField("topic", filter).Warn("MQTT subscribe timeout")
		} else if err := token.Error(); err != nil {
			b.logger.WithError(err).WithField("topic", filter).Warn("MQTT subscribe error")
		}
	}()
}

func (b *Bridge) stateTopic() string {
	return b.prefix + "/bridge/state"
}

func (b *Bridge) errorTopic() string {
	return b.prefix + "/bridge/error"
}

// EventTopic returns the topic an event is published on.
func (b *Bridge) EventTopic(e events.Event) string {
	addr := device.NormalizeAddress(e.Address)
	scanLevel := e.Type == events.DeviceFound ||
		(e.Type == events.RSSIChanged && e.Source == events.SourceDiscovery)

	switch {
	case addr == "":
		return b.prefix + "/scan/" + string(e.Type)
	case scanLevel:
		return b.prefix + "/scan/" + addr + "/" + string(e.Type)
	default:
		return b.prefix + "/" + addr + "/" + string(e.Type)
	}
}

func (b *Bridge) handleEvent(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.WithError(err).WithField("type", e.Type).Warn("Failed to encode event")
		return
	}
	b.publish(b.EventTopic(e), payload, false)
}

// parseCommandTopic splits <prefix>/<address>/set/<command>.
func (b *Bridge) parseCommandTopic(topic string) (address, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" {
		return "", "", false
	}
	return device.NormalizeAddress(parts[0]), parts[2], true
}

func (b *Bridge) handleMessage(topic string, payload []byte) {
	address, command, ok := b.parseCommandTopic(topic)
	if !ok {
		b.logger.WithField("topic", topic).Debug("Ignoring message on unexpected topic")
		return
	}

	log := b.logger.WithFields(logrus.Fields{"address": address, "command": command})
	if err := b.execute(address, command, payload); err != nil {
		log.WithError(err).Warn("MQTT command failed")
		b.publishFailure(address, command, err)
		return
	}
	log.Debug("MQTT command forwarded")
}

func (b *Bridge) execute(address, command string, payload []byte) error {
	switch command {
	case CommandConnect:
		return b.engine.Connect(address)
	case CommandDisconnect:
		return b.engine.Disconnect(address)
	case CommandRead, CommandWrite:
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, command)
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: invalid command JSON: %w", device.ErrInvalidArgument, err)
	}
	if req.Service == "" || req.Characteristic == "" {
		return fmt.Errorf("%w: service and characteristic are required", device.ErrInvalidArgument)
	}

	if command == CommandRead {
		return b.engine.Read(address, req.Service, req.Characteristic, req.Offsets)
	}
	p, err := req.Payload()
	if err != nil {
		return err
	}
	return b.engine.Write(address, req.Service, req.Characteristic, p)
}

// Payload builds the write payload a Request describes.
func (r Request) Payload() (central.Payload, error) {
	set := 0
	for _, present := range []bool{r.Text != nil, r.Int != nil, r.Float != nil, r.Raw != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return central.Payload{}, fmt.Errorf("%w: exactly one of text, int, float, raw is required", device.ErrInvalidArgument)
	}

	switch {
	case r.Text != nil:
		return central.TextPayload(*r.Text), nil
	case r.Float != nil:
		return central.FloatPayload(*r.Float, r.Offset), nil
	case r.Raw != nil:
		b, err := hex.DecodeString(strings.ReplaceAll(*r.Raw, " ", ""))
		if err != nil {
			return central.Payload{}, fmt.Errorf("%w: raw must be hex: %w", device.ErrInvalidArgument, err)
		}
		return central.RawPayload(b), nil
	}

	format := codec.FormatUint8
	if r.Format != "" {
		f, err := codec.ParseFormat(r.Format)
		if err != nil {
			return central.Payload{}, fmt.Errorf("%w: %w", device.ErrInvalidArgument, err)
		}
		format = f
	}
	return central.IntPayload(*r.Int, format, r.Offset), nil
}

func (b *Bridge) publishFailure(address, command string, err error) {
	body, mErr := json.Marshal(Failure{
		Address:   address,
		Command:   command,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
	if mErr != nil {
		return
	}
	b.publish(b.errorTopic(), body, false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.WithField("topic", topic).Warn("MQTT publish timeout")
		} else if err := token.Error(); err != nil {
			b.logger.WithError(err).WithField("topic", topic).Warn("MQTT publish error")
		}
	}()
}

package central

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/radio"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
	opSubscribe
)

func (k opKind) String() string {
	switch k {
	case opWrite:
		return "write"
	case opSubscribe:
		return "subscribe"
	default:
		return "read"
	}
}

type opStage int

const (
	stageSubscribing opStage = iota
	stageReading
	stageWriting
)

// pendingOp is the single outstanding GATT operation of a connection.
type pendingOp struct {
	kind     opKind
	stage    opStage
	char     *Characteristic
	payload  []byte
	issuedAt time.Time
}

// requireReady returns the connection when it can accept GATT operations.
func (c *Central) requireReady(address string) (*connection, error) {
	conn, err := c.connectionFor(address)
	if err != nil {
		return nil, err
	}
	if st := conn.State(); st != Ready {
		return nil, device.NewConnectionError(device.NotReady, "%s is %s", conn.address, st)
	}
	if conn.pending != nil {
		return nil, device.NewConnectionError(device.OperationInProgress, "%s: %s of %s pending",
			conn.address, conn.pending.kind, conn.pending.char.UUID)
	}
	return conn, nil
}

// Read reads a characteristic and decodes it at offsets. Notifiable
// characteristics are subscribed first (indications preferred), so later
// ValueChanged events decode at the same offsets.
func (c *Central) Read(address, serviceUUID, charUUID string, offsets codec.Offsets) error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.do(func() error {
		conn, err := c.requireReady(address)
		if err != nil {
			return err
		}
		ch, err := conn.catalog.Lookup(serviceUUID, charUUID)
		if err != nil {
			return err
		}
		ch.offsets = offsets

		if !ch.Properties.Has(radio.PropRead) {
			if !ch.Properties.CanSubscribe() {
				return fmt.Errorf("%w: characteristic %s is not readable", device.ErrUnsupported, ch.UUID)
			}
			// Notify-only characteristics deliver their value as ValueChanged.
			if !ch.subscribed {
				return c.subscribe(conn, ch)
			}
			// Already subscribed: answer with the last notified value.
			if !ch.hasValue {
				return fmt.Errorf("%w: %s has not notified yet", device.ErrValueUnavailable, ch.UUID)
			}
			c.deliverValue(conn, ch, ch.cachedBytes(), events.ValueRead)
			return nil
		}

		op := &pendingOp{kind: opRead, stage: stageReading, char: ch, issuedAt: c.now()}
		subscribe := ch.Properties.CanSubscribe() && !ch.subscribed
		if subscribe {
			if err := c.radio.Subscribe(conn.address, ch.Ref, ch.Properties.Has(radio.PropIndicate)); err != nil {
				c.logger.WithError(err).WithField("char_uuid", ch.UUID).Warn("Subscription failed, reading anyway")
				subscribe = false
			}
		}
		if subscribe {
			op.stage = stageSubscribing
		} else if err := c.radio.ReadCharacteristic(conn.address, ch.Ref); err != nil {
			return err
		}

		conn.pending = op
		c.logger.WithFields(logrus.Fields{
			"address":   conn.address,
			"char_uuid": ch.UUID,
		}).Debug("Read issued")
		return nil
	})
}

// Write writes a payload. Integer and float payloads are encoded over the
// cached value. Writes use write-with-response unless the characteristic
// only advertises write-without-response.
func (c *Central) Write(address, serviceUUID, charUUID string, payload Payload) error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.do(func() error {
		conn, err := c.requireReady(address)
		if err != nil {
			return err
		}
		ch, err := conn.catalog.Lookup(serviceUUID, charUUID)
		if err != nil {
			return err
		}

		canWrite := ch.Properties.Has(radio.PropWrite)
		canWriteNR := ch.Properties.Has(radio.PropWriteNoResponse)
		if !canWrite && !canWriteNR {
			return fmt.Errorf("%w: characteristic %s is not writable", device.ErrUnsupported, ch.UUID)
		}

		data, err := payload.encode(ch.cachedBytes())
		if err != nil {
			return err
		}

		withResponse := canWrite || !canWriteNR
		if err := c.radio.WriteCharacteristic(conn.address, ch.Ref, data, withResponse); err != nil {
			return err
		}

		conn.pending = &pendingOp{kind: opWrite, stage: stageWriting, char: ch, payload: data, issuedAt: c.now()}
		c.logger.WithFields(logrus.Fields{
			"address":   conn.address,
			"char_uuid": ch.UUID,
			"payload":   payload.String(),
		}).Debug("Write issued")
		return nil
	})
}

// Subscribe enables notifications (or indications when advertised) without
// reading. Values arrive as ValueChanged events decoded at offsets.
func (c *Central) Subscribe(address, serviceUUID, charUUID string, offsets codec.Offsets) error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.do(func() error {
		conn, err := c.requireReady(address)
		if err != nil {
			return err
		}
		ch, err := conn.catalog.Lookup(serviceUUID, charUUID)
		if err != nil {
			return err
		}
		if !ch.Properties.CanSubscribe() {
			return fmt.Errorf("%w: characteristic %s supports neither notify nor indicate", device.ErrUnsupported, ch.UUID)
		}

		ch.offsets = offsets
		return c.subscribe(conn, ch)
	})
}

func (c *Central) subscribe(conn *connection, ch *Characteristic) error {
	if ch.subscribed {
		return nil
	}
	if err := c.radio.Subscribe(conn.address, ch.Ref, ch.Properties.Has(radio.PropIndicate)); err != nil {
		return err
	}
	conn.pending = &pendingOp{kind: opSubscribe, stage: stageSubscribing, char: ch, issuedAt: c.now()}
	return nil
}

// matchPending returns the pending operation a completion belongs to, or nil
// for an unsolicited completion.
func (c *Central) matchPending(address string, ref radio.CharRef, stage opStage) (*connection, *pendingOp) {
	conn, ok := c.conns.Get(device.NormalizeAddress(address))
	if !ok {
		return nil, nil
	}
	op := conn.pending
	if op == nil || op.stage != stage || op.char.Ref != ref {
		c.logger.WithFields(logrus.Fields{
			"address": conn.address,
			"ref":     fmt.Sprintf("%d/%d", ref.Service, ref.Char),
		}).Warn("Dropping unsolicited completion")
		return conn, nil
	}
	return conn, op
}

func (c *Central) handleSubscribed(address string, ref radio.CharRef, err error) {
	conn, op := c.matchPending(address, ref, stageSubscribing)
	if op == nil {
		return
	}

	if err != nil {
		c.logger.WithError(err).WithField("char_uuid", op.char.UUID).Warn("Subscription failed")
	} else {
		op.char.subscribed = true
		c.logger.WithField("char_uuid", op.char.UUID).Debug("Subscribed")
	}

	if op.kind == opSubscribe {
		conn.pending = nil
		if err != nil {
			c.emitError(conn.address, op.char, fmt.Errorf("subscribe failed: %w", err))
		}
		return
	}

	op.stage = stageReading
	if rerr := c.radio.ReadCharacteristic(conn.address, ref); rerr != nil {
		conn.pending = nil
		c.emitError(conn.address, op.char, fmt.Errorf("read failed: %w", rerr))
	}
}

func (c *Central) handleRead(address string, ref radio.CharRef, value []byte, err error) {
	conn, op := c.matchPending(address, ref, stageReading)
	if op == nil {
		return
	}
	conn.pending = nil

	if err != nil {
		c.emitError(conn.address, op.char, fmt.Errorf("read failed: %w", err))
		return
	}
	c.deliverValue(conn, op.char, value, events.ValueRead)
}

func (c *Central) handleWrite(address string, ref radio.CharRef, err error) {
	conn, op := c.matchPending(address, ref, stageWriting)
	if op == nil {
		return
	}
	conn.pending = nil

	if err != nil {
		c.emitError(conn.address, op.char, fmt.Errorf("write failed: %w", err))
		return
	}
	c.deliverValue(conn, op.char, op.payload, events.ValueWrite)
}

func (c *Central) handleNotification(address string, ref radio.CharRef, value []byte) {
	conn, ok := c.conns.Get(device.NormalizeAddress(address))
	if !ok || conn.catalog == nil {
		return
	}
	ch := conn.catalog.At(ref)
	if ch == nil {
		c.logger.WithField("address", conn.address).Warn("Notification for unknown characteristic")
		return
	}
	c.deliverValue(conn, ch, value, events.ValueChanged)
}

// deliverValue decodes a payload, caches it and emits it. Reads and
// notifications share this path and differ only in the event type.
func (c *Central) deliverValue(conn *connection, ch *Characteristic, value []byte, t events.Type) {
	reading := device.DecodeCharacteristicValue(ch.UUID, value, ch.offsets)
	ch.store(reading)

	if reading.DecodeErr != nil {
		c.logger.WithFields(logrus.Fields{
			"char_uuid": ch.UUID,
			"error":     reading.DecodeErr,
		}).Debug("Partial decode")
	}

	e := c.event(t, conn.address)
	e.Service = device.CanonicalUUID(ch.Service)
	e.Characteristic = device.CanonicalUUID(ch.UUID)
	e.Value = reading
	e.Err = reading.DecodeErr
	c.bus.Emit(e)
}

package lua

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/blecentral/internal/groutine"
)

// CollectorMetrics counts what the collector has seen.
type CollectorMetrics struct {
	RecordsProcessed   int64
	RecordsOverwritten int64
	ErrorsOccurred     int64
}

// OutputCollector moves script output from the engine's channel into an
// overlapped ring buffer, so a slow reader loses the oldest lines instead of
// stalling the script.
type OutputCollector struct {
	source <-chan OutputRecord
	buffer mpmc.RichOverlappedRingBuffer[OutputRecord]
	stop   chan struct{}
	done   <-chan struct{}

	running     atomic.Bool
	processed   atomic.Int64
	overwritten atomic.Int64
	errors      atomic.Int64
}

// MaxBufferSize guards against accidental misconfiguration.
const MaxBufferSize uint32 = 1024 * 1024

// NewOutputCollector creates a collector over source with room for size records.
func NewOutputCollector(source <-chan OutputRecord, size uint32) (*OutputCollector, error) {
	if source == nil {
		return nil, fmt.Errorf("output channel cannot be nil")
	}
	if size == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if size > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", size, MaxBufferSize)
	}
	return &OutputCollector{
		source: source,
		buffer: mpmc.NewOverlappedRingBuffer[OutputRecord](size),
	}, nil
}

// Start begins collecting. Starting a running collector is an error.
func (c *OutputCollector) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("collector is already running")
	}
	c.stop = make(chan struct{})
	stop := c.stop

	c.done = groutine.Go(context.Background(), "lua-output-collector", func(context.Context) {
		defer c.running.Store(false)
		for {
			select {
			case <-stop:
				return
			case rec, ok := <-c.source:
				if !ok {
					return
				}
				overwrites, err := c.buffer.EnqueueM(rec)
				if err != nil {
					c.errors.Add(1)
					continue
				}
				c.overwritten.Add(int64(overwrites))
				c.processed.Add(1)
			}
		}
	})
	return nil
}

// Stop ends collection and waits for the collecting goroutine.
func (c *OutputCollector) Stop() {
	if c.done == nil {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

// Metrics returns a copy of the counters.
func (c *OutputCollector) Metrics() CollectorMetrics {
	return CollectorMetrics{
		RecordsProcessed:   c.processed.Load(),
		RecordsOverwritten: c.overwritten.Load(),
		ErrorsOccurred:     c.errors.Load(),
	}
}

// Drain removes every buffered record and hands it to fn in order.
func (c *OutputCollector) Drain(fn func(OutputRecord)) error {
	for !c.buffer.IsEmpty() {
		rec, err := c.buffer.Dequeue()
		if err != nil {
			return fmt.Errorf("buffer dequeue error: %w", err)
		}
		fn(rec)
	}
	return nil
}

// DrainText concatenates the buffered output.
func (c *OutputCollector) DrainText() (string, error) {
	var sb strings.Builder
	err := c.Drain(func(rec OutputRecord) {
		sb.WriteString(rec.Content)
	})
	return sb.String(), err
}

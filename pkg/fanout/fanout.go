// Package fanout delivers gateway events to every connection subscribed
// to a group. A single bounded queue and worker give per-group FIFO
// ordering; per-connection send buffers isolate slow recipients from each
// other and from the submitting caller.
package fanout

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/models"
	"chatrelay/pkg/registry"
)

// ErrQueueFull is returned by Dispatch when the queue is at capacity.
var ErrQueueFull = errors.New("dispatch queue full")

// Registry is the slice of the connection registry the dispatcher needs:
// a group-scoped snapshot at dispatch time, and removal of connections
// that fail delivery.
type Registry interface {
	ConnectionsForGroup(groupID string) []registry.Conn
	Unregister(connID string)
}

// item is one queued event. Payload may be backed by a pooled buffer;
// the worker calls done() exactly once after the outbound frame has been
// built.
type item struct {
	groupID  string
	evType   string
	serverTS int64
	seq      uint64
	payload  []byte
	buf      *bytebufferpool.ByteBuffer
	once     sync.Once
}

func (it *item) done() {
	it.once.Do(func() {
		if it.buf != nil {
			bytebufferpool.Put(it.buf)
			it.buf = nil
		}
		it.payload = nil
	})
}

// Dispatcher fans events out to subscribed connections. Events are
// delivered to any one connection in the order they were accepted
// (FIFO per group per dispatcher instance); the seq field is the shared
// ordering key for deployments running multiple instances.
type Dispatcher struct {
	reg      Registry
	ch       chan *item
	capacity int
	seq      uint64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a dispatcher reading group membership snapshots from reg.
func New(reg Registry, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	return &Dispatcher{
		reg:      reg,
		ch:       make(chan *item, capacity),
		capacity: capacity,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Dispatch enqueues one event for delivery to every connection subscribed
// to groupID. The payload is marshaled at accept time so later mutations
// by the caller cannot tear the frame. Never blocks: a full queue returns
// ErrQueueFull and the event is counted as dropped.
func (d *Dispatcher) Dispatch(groupID, evType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], b...)
	it := &item{
		groupID:  groupID,
		evType:   evType,
		serverTS: time.Now().UTC().UnixNano(),
		seq:      atomic.AddUint64(&d.seq, 1),
		payload:  bb.B[:len(b)],
		buf:      bb,
	}
	select {
	case d.ch <- it:
		metrics.DispatchedEvents.WithLabelValues(evType).Inc()
		return nil
	default:
		it.done()
		metrics.DroppedEvents.Inc()
		logger.Warn("dispatch_queue_full", "group", groupID, "type", evType)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case it := <-d.ch:
			d.deliver(it)
		case <-d.stop:
			// drain whatever was accepted before the stop signal
			for {
				select {
				case it := <-d.ch:
					d.deliver(it)
				default:
					return
				}
			}
		}
	}
}

// deliver looks up the subscribed connections at delivery time and sends
// the frame to each independently. A failed send removes that connection
// and never affects the others or the submitting caller.
func (d *Dispatcher) deliver(it *item) {
	defer it.done()
	ev := models.ServerEvent{
		Type:     it.evType,
		GroupID:  it.groupID,
		Payload:  json.RawMessage(it.payload),
		ServerTS: it.serverTS,
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		logger.Error("frame_marshal_failed", "group", it.groupID, "type", it.evType, "error", err)
		return
	}
	conns := d.reg.ConnectionsForGroup(it.groupID)
	for _, c := range conns {
		if err := c.Sender.Send(frame); err != nil {
			metrics.DeliveryFailures.Inc()
			logger.Warn("delivery_failed", "conn", c.ID, "group", it.groupID, "error", err)
			d.reg.Unregister(c.ID)
		}
	}
	logger.Debug("event_delivered", "group", it.groupID, "type", it.evType, "seq", it.seq, "conns", len(conns))
}

// Close stops the worker after draining accepted events and waits for it
// to exit.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

// Len returns the current queue depth.
func (d *Dispatcher) Len() int { return len(d.ch) }

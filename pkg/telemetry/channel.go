package telemetry

import (
	"context"
	"sync"
)

// ChannelState is the lifecycle state of a channel
type ChannelState int

const (
	// StateClosed means the channel holds no live subscription
	StateClosed ChannelState = iota

	// StateOpening means the transport subscription is being established
	StateOpening

	// StateOpen means events are flowing
	StateOpen
)

// Transport is a streaming event source for one run
type Transport interface {
	// Subscribe opens the stream and returns the event channel. The channel
	// closes when the stream ends or the context is canceled.
	Subscribe(ctx context.Context, runID string) (<-chan Event, error)

	// Close releases the subscription. Safe to call more than once.
	Close()
}

// Channel consumes one run's event stream and applies each event to the
// handler in delivery order. Events arriving after Close are dropped; the
// server may redeliver a status event across a reconnect and a closed
// channel must not write stale state.
type Channel struct {
	mu        sync.Mutex
	state     ChannelState
	runID     string
	transport Transport
	cancel    context.CancelFunc
	done      chan struct{}
}

// Open subscribes the transport for runID and starts the single consumer
// loop. The handler is invoked from one goroutine only.
func Open(ctx context.Context, transport Transport, runID string, handler Handler) (*Channel, error) {
	c := &Channel{
		state:     StateOpening,
		runID:     runID,
		transport: transport,
		done:      make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	events, err := transport.Subscribe(ctx, runID)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
		return nil, err
	}

	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()

	go c.consume(events, handler)
	return c, nil
}

// consume applies events until the stream ends. A status event is terminal:
// the server signals completion, the client does not infer it.
func (c *Channel) consume(events <-chan Event, handler Handler) {
	defer close(c.done)
	defer c.Close()

	for ev := range events {
		c.mu.Lock()
		closed := c.state == StateClosed
		c.mu.Unlock()
		if closed {
			// Late redelivery after close; drop without touching state
			continue
		}

		switch ev.Kind {
		case EventLog:
			if ev.Log != nil {
				handler.HandleLog(*ev.Log)
			}
		case EventNode:
			if ev.Node != nil {
				handler.HandleNode(*ev.Node)
			}
		case EventStatus:
			if ev.Status != nil {
				handler.HandleStatus(*ev.Status)
			}
			c.Close()
		}
	}
}

// Close tears down the subscription. It is unconditional and idempotent;
// closing an already-closed channel is a no-op.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()
	c.transport.Close()
}

// State returns the current lifecycle state
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the run this channel is subscribed to
func (c *Channel) RunID() string {
	return c.runID
}

// Done is closed once the consumer loop has drained and stopped
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

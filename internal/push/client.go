// Package push maintains the single server-to-client event stream from the
// channel manager. A [Client] owns the connection lifecycle: it reconnects
// with exponential backoff whenever the stream drops, reports the connection
// state, remembers the latest event and fans events out on a channel for the
// reconciliation loop.
//
// Two transports are provided: [SSE] for text/event-stream endpoints and
// [WebSocket] for servers that push JSON frames over a WebSocket.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/njoerd114/availsync/internal/model"
)

// State is the connection state of the push channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// errStreamClosed is reported when the server ends the stream cleanly.
var errStreamClosed = errors.New("event stream closed by server")

// Transport opens one stream. Stream calls onOpen once the stream is
// established, then deliver for each event, and returns when the stream ends
// or ctx is cancelled.
type Transport interface {
	Stream(ctx context.Context, onOpen func(), deliver func(model.Event)) error
}

// Client keeps a Transport connected. Create one with [NewClient] and start
// it with [Client.Run].
type Client struct {
	transport Transport
	backoff   backoff.BackOff
	log       *slog.Logger
	events    chan model.Event

	mu        sync.Mutex
	state     State
	last      *model.Event
	onConnect []func()
}

// Option customises a Client.
type Option func(*Client)

// WithBackOff replaces the default reconnect policy.
func WithBackOff(b backoff.BackOff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithBuffer sets the capacity of the events channel.
func WithBuffer(n int) Option {
	return func(c *Client) { c.events = make(chan model.Event, n) }
}

// NewClient creates a Client. The default reconnect policy starts at one
// second and caps at one minute, retrying forever.
func NewClient(t Transport, logger *slog.Logger, opts ...Option) *Client {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = time.Minute

	c := &Client{
		transport: t,
		backoff:   eb,
		log:       logger,
		events:    make(chan model.Event, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the channel on which received events are delivered. It is
// closed when [Client.Run] returns.
func (c *Client) Events() <-chan model.Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastEvent returns the most recently received event.
func (c *Client) LastEvent() (model.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return model.Event{}, false
	}
	return *c.last, true
}

// OnConnect registers fn to run every time the stream (re)connects. fn runs
// on the stream goroutine and must not block for long.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Run connects and keeps reconnecting until ctx is cancelled. Stream errors
// are logged, never returned.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		c.setState(Connecting)
		err := c.transport.Stream(ctx, c.opened, func(ev model.Event) { c.deliver(ctx, ev) })
		c.setState(Disconnected)

		if ctx.Err() != nil {
			c.log.Info("push channel stopped")
			return ctx.Err()
		}
		if err == nil {
			err = errStreamClosed
		}

		delay := c.backoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("push channel gave up reconnecting: %w", err)
		}
		c.log.Warn("push channel disconnected, reconnecting", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) opened() {
	c.backoff.Reset()
	c.setState(Connected)
	c.log.Info("push channel connected")

	c.mu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) deliver(ctx context.Context, ev model.Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	c.mu.Lock()
	last := ev
	c.last = &last
	c.mu.Unlock()

	c.log.Debug("push event received", "type", ev.Type)
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Package transport is the WebSocket client the engine dials the LNS
// with (spec.md §5, §9): non-blocking SendBuf-style enqueue, a paired
// read/write loop supervised with golang.org/x/sync/errgroup, and
// exponential reconnect backoff (a feature the distilled spec.md leaves
// implicit but original_source/ implements explicitly).
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"go.station.network/s2e/pkg/log"
	"go.station.network/s2e/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSendBufLen is the outbound queue capacity: enough to absorb a
// burst of dntxed/updf messages across one WebSocket write stall without
// blocking the engine's event loop.
const DefaultSendBufLen = 64

// Client is a single LNS WebSocket connection, reconnect-managed.
type Client struct {
	URL        string
	SendBufLen int
	Log        log.Interface

	// OnMessage is invoked for every downstream text frame received, from
	// the read-loop goroutine; the caller (the engine) is responsible for
	// thread-safety if it touches shared state.
	OnMessage func(raw []byte)

	// OnConnect is invoked once a dial succeeds, before the read/write
	// loop starts, so the caller can send the version handshake and reset
	// any state a fresh connection invalidates (spec.md §5 "a WebSocket
	// reconnect tears down all in-flight TX jobs").
	OnConnect func()

	mu     sync.Mutex
	conn   *websocket.Conn
	outbox chan []byte
}

// New returns a Client for url.
func New(url string, logger log.Interface) *Client {
	if logger == nil {
		logger = log.Noop()
	}
	bufLen := DefaultSendBufLen
	return &Client{URL: url, SendBufLen: bufLen, Log: logger}
}

// SendJSON implements lns.Transport and rxforward.Sender: it marshals v
// and enqueues it without blocking, reporting blocked=true if the
// outbound queue is full (spec.md §4.6/§9 backpressure).
func (c *Client) SendJSON(v interface{}) (blocked bool, err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	outbox := c.outbox
	c.mu.Unlock()
	if outbox == nil {
		return true, nil
	}
	select {
	case outbox <- b:
		return false, nil
	default:
		return true, nil
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.outbox = make(chan []byte, c.SendBufLen)
	c.mu.Unlock()
	return nil
}

func (c *Client) writeLoop(ctx context.Context) error {
	c.mu.Lock()
	conn, outbox := c.conn, c.outbox
	c.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-outbox:
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.OnMessage != nil {
			c.OnMessage(data)
		}
	}
}

// RunWithReconnect dials, runs the paired read/write loop until either
// side errors, then reconnects with exponential backoff, until ctx is
// cancelled.
func (c *Client) RunWithReconnect(ctx context.Context, backoffBase, backoffMax time.Duration) error {
	attempt := 0
	for ctx.Err() == nil {
		if err := c.dial(ctx); err != nil {
			c.Log.WithError(err).Warn("lns dial failed")
			if !sleepOrDone(ctx, ratelimit.ReconnectBackoff(attempt, backoffBase, backoffMax)) {
				return ctx.Err()
			}
			attempt++
			continue
		}
		attempt = 0
		if c.OnConnect != nil {
			c.OnConnect()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return c.writeLoop(gctx) })
		g.Go(func() error { return c.readLoop(gctx) })
		err := g.Wait()

		c.mu.Lock()
		c.conn.Close()
		c.conn = nil
		c.outbox = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("lns connection lost, reconnecting")
	}
	return ctx.Err()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

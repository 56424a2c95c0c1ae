package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/fallguard/internal/monitoring"
)

// Defaults for Options.
const (
	DefaultBackoff      = 5 * time.Second
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 2 * time.Second
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("telemetry client closed")

// Dialer opens the connection to the collector.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Client.
type Options struct {
	// Backoff is the fixed wait between a failure and the next dial.
	Backoff      time.Duration
	QueueSize    int
	WriteTimeout time.Duration
	Dial         Dialer
	// OnStateChange is called from the connection goroutine on every
	// transition. It must not block.
	OnStateChange func(State)
}

// Client keeps a TCP connection to a collector open, reconnecting after a
// fixed backoff forever. Lines sent while not connected are dropped.
type Client struct {
	opts Options

	state    atomic.Int32
	queue    chan string
	dropped  atomic.Uint64
	attempts atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}
	return &Client{
		opts:  opts,
		queue: make(chan string, opts.QueueSize),
	}
}

// Connect starts the connection loop for host:port and returns immediately.
// Calling Connect again replaces the previous target.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(loopCtx, net.JoinHostPort(host, strconv.Itoa(port)), done)
	return nil
}

// Send queues one line for delivery. It is a no-op unless connected and
// drops the line when the queue is full.
func (c *Client) Send(line string) {
	if c.State() != Connected {
		return
	}
	select {
	case c.queue <- line:
	default:
		c.dropped.Add(1)
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Dropped returns how many lines were discarded because the queue was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Attempts returns how many dials have been started.
func (c *Client) Attempts() uint64 {
	return c.attempts.Load()
}

// Close stops the connection loop and closes the socket. Safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopLocked()
	return nil
}

func (c *Client) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) run(ctx context.Context, addr string, done chan struct{}) {
	defer close(done)
	defer c.setState(Disconnected)

	for {
		c.setState(Connecting)
		c.attempts.Add(1)

		conn, err := c.opts.Dial(ctx, "tcp", addr)
		if err == nil {
			c.setState(Connected)
			monitoring.Logf("telemetry: connected to %s", addr)
			err = c.serve(ctx, conn)
			conn.Close()
		}

		c.setState(Disconnected)
		c.drain()
		if ctx.Err() != nil {
			return
		}

		monitoring.Debugf("telemetry: %s: %v, retrying in %s", addr, err, c.opts.Backoff)
		t := time.NewTimer(c.opts.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// serve writes queued lines until a write fails, the peer goes away or ctx
// is cancelled.
func (c *Client) serve(ctx context.Context, conn net.Conn) error {
	// The collector never writes back, so any read result means the peer is gone.
	peerGone := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, conn)
		if err == nil {
			err = io.EOF
		}
		peerGone <- err
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	w := bufio.NewWriter(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-peerGone:
			return fmt.Errorf("connection lost: %w", err)
		case line := <-c.queue:
			if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if _, err := w.WriteString(line); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			if len(c.queue) == 0 {
				if err := w.Flush(); err != nil {
					return fmt.Errorf("write: %w", err)
				}
			}
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}

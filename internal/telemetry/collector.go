package telemetry

import (
	"bufio"
	"errors"
	"net"
	"sync"
)

// LineHandler receives each line read by a Collector.
type LineHandler func(remote, line string)

// Collector is a TCP listener that hands every received line to a handler.
type Collector struct {
	ln net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen opens a collector on addr ("host:port", port 0 picks a free one).
func Listen(addr string) (*Collector, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Collector{ln: ln, conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns the listening address.
func (c *Collector) Addr() net.Addr {
	return c.ln.Addr()
}

// Serve accepts connections until Close is called. It returns nil after Close.
func (c *Collector) Serve(handle LineHandler) error {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conns[conn] = struct{}{}
		c.wg.Add(1)
		c.mu.Unlock()

		go c.handle(conn, handle)
	}
}

func (c *Collector) handle(conn net.Conn, handle LineHandler) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		handle(remote, scanner.Text())
	}
}

// Connections returns the number of open client connections.
func (c *Collector) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// DisconnectAll closes every open client connection but keeps listening.
func (c *Collector) DisconnectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.conns {
		conn.Close()
	}
}

// Close stops accepting, closes open connections and waits for handlers.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	err := c.ln.Close()
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return err
}

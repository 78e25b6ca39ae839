/* Copyright (c) 2019 Gregor Riepl
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package endpoint

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/qtproject/jsonstream/transport"
	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

// State is a Connection's lifecycle state.
type State int

const (
	Unconnected State = iota
	Connecting
	// Authenticating is never entered: no installed Authority requires the
	// client to wait on a round trip before Connected.
	Authenticating
	Connected
)

const reconnectDelay = 5 * time.Second

// ErrorKind classifies a Connection-level failure by the transport it
// happened on.
type ErrorKind int

const (
	NoError ErrorKind = iota
	UnknownError
	LocalSocketError
	TcpSocketError
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "no error"
	case LocalSocketError:
		return "local socket error"
	case TcpSocketError:
		return "tcp socket error"
	default:
		return "unknown error"
	}
}

// ConnectionError pairs the failure kind with the underlying device error,
// whose text is carried through as the human-readable description.
type ConnectionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

const (
	moduleConnection = "connection"

	eventConnectionConnected    = "connected"
	eventConnectionDisconnected = "disconnected"
	eventConnectionReconnecting = "reconnecting"

	errorConnectionDial = "dial"
)

var logger = util.NewGlobalModuleLogger(moduleConnection, nil)

// target records the last-used connect call, replayed verbatim by
// auto-reconnect.
type target struct {
	isTcp bool
	name  string
	host  string
	port  int
}

// Connection is the client-side façade: it owns a transport.Stream and an
// EndpointRouter, dials local-domain or TCP sockets, and optionally runs
// all I/O on a dedicated worker goroutine (useSeparateThread) driven by a
// command channel. ConnectLocal and ConnectTcp block the caller until the
// attempt completes even in worker mode; property setters made after the
// first connect are queued to the worker instead of mutating shared state
// directly.
type Connection struct {
	useSeparateThread bool

	mu              sync.Mutex
	endpointKey     string
	autoReconnect   bool
	readBufferSize  int
	writeBufferSize int
	format          wire.Format

	router        *EndpointRouter
	stream        *transport.Stream
	state         State
	last          target
	explicit      bool
	everConnected bool
	closed        bool

	lastError *ConnectionError

	onStateChanged func(State)
	onError        func(*ConnectionError)

	worker chan func()
	quit   chan struct{}
}

// NewConnection creates an unconnected Connection. useSeparateThread
// selects worker mode, where the Stream, EndpointRouter and device all
// live on a dedicated goroutine.
func NewConnection(useSeparateThread bool) *Connection {
	c := &Connection{useSeparateThread: useSeparateThread, endpointKey: defaultEndpointKey}
	c.router = NewEndpointRouter(c.endpointKey)
	if useSeparateThread {
		c.worker = make(chan func(), 16)
		c.quit = make(chan struct{})
		go c.runWorker()
	}
	return c
}

func (c *Connection) runWorker() {
	for {
		select {
		case fn := <-c.worker:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post runs fn on the worker goroutine if in worker mode, else runs it
// inline. Non-blocking for the caller unless wait is true. Once Close has
// stopped the worker, a waiting post returns without running fn, so a
// cross-thread Send pending against a closed Connection comes back false
// instead of blocking forever.
func (c *Connection) post(fn func(), wait bool) {
	if !c.useSeparateThread {
		fn()
		return
	}
	if !wait {
		select {
		case c.worker <- fn:
		default:
			go func() {
				select {
				case c.worker <- fn:
				case <-c.quit:
				}
			}()
		}
		return
	}
	done := make(chan struct{})
	select {
	case c.worker <- func() { fn(); close(done) }:
	case <-c.quit:
		return
	}
	select {
	case <-done:
	case <-c.quit:
	}
}

// SetEndpointKey sets the routing-key property name read from each inbound
// object's endpoint_key member, on the stored property and on the attached
// router. Queued non-blocking to the worker when useSeparateThread is set.
func (c *Connection) SetEndpointKey(key string) {
	if key == "" {
		key = defaultEndpointKey
	}
	c.post(func() {
		c.mu.Lock()
		c.endpointKey = key
		c.mu.Unlock()
		c.router.SetEndpointKey(key)
	}, false)
}

// SetAutoReconnectEnabled toggles auto-reconnect.
func (c *Connection) SetAutoReconnectEnabled(enabled bool) {
	c.post(func() {
		c.mu.Lock()
		c.autoReconnect = enabled
		c.mu.Unlock()
	}, false)
}

// SetReadBufferSize sets the read-buffer cap applied to future (and, if
// attached, the current) Stream.
func (c *Connection) SetReadBufferSize(n int) {
	c.post(func() {
		c.mu.Lock()
		c.readBufferSize = n
		s := c.stream
		c.mu.Unlock()
		if s != nil {
			s.SetReadBufferSize(n)
		}
	}, false)
}

// SetWriteBufferSize sets the write-buffer cap applied to future (and, if
// attached, the current) Stream.
func (c *Connection) SetWriteBufferSize(n int) {
	c.post(func() {
		c.mu.Lock()
		c.writeBufferSize = n
		s := c.stream
		c.mu.Unlock()
		if s != nil {
			s.SetWriteBufferSize(n)
		}
	}, false)
}

// SetFormat pins the outbound wire format used once connected.
func (c *Connection) SetFormat(format wire.Format) {
	c.post(func() {
		c.mu.Lock()
		c.format = format
		c.mu.Unlock()
	}, false)
}

// SetOnStateChanged installs the state-transition callback.
func (c *Connection) SetOnStateChanged(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChanged = fn
}

// SetOnError installs the callback fired on a transport-level failure,
// alongside the matching state transition.
func (c *Connection) SetOnError(fn func(*ConnectionError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// LastError returns the most recent Connection-level failure, or nil after
// a successful connect.
func (c *Connection) LastError() *ConnectionError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the named endpoint (the default endpoint for "").
func (c *Connection) Endpoint(name string) *Endpoint {
	return c.router.Endpoint(name)
}

// RemoveEndpoint detaches the named endpoint from routing.
func (c *Connection) RemoveEndpoint(name string) {
	c.router.RemoveEndpoint(name)
}

// ConnectLocal dials a Unix-domain socket at path, blocking until the
// attempt completes (even in worker mode).
func (c *Connection) ConnectLocal(path string) bool {
	return c.connect(target{isTcp: false, name: path}, true)
}

// ConnectTcp dials host:port over TCP, blocking until the attempt
// completes (even in worker mode).
func (c *Connection) ConnectTcp(host string, port int) bool {
	return c.connect(target{isTcp: true, host: host, port: port}, true)
}

func (c *Connection) connect(t target, explicit bool) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	var ok bool
	c.post(func() {
		c.mu.Lock()
		c.last = t
		c.explicit = false
		c.setStateLocked(Connecting)
		c.mu.Unlock()

		conn, err := dial(t)
		if err != nil {
			logger.Logkv("event", eventConnectionReconnecting, "error", errorConnectionDial, "reason", err.Error())
			c.reportError(t, err)
			c.mu.Lock()
			c.setStateLocked(Unconnected)
			c.mu.Unlock()
			ok = false
			return
		}
		c.attach(conn)
		ok = true
	}, true)
	return ok
}

func dial(t target) (net.Conn, error) {
	if t.isTcp {
		return net.Dial("tcp", fmt.Sprintf("%s:%d", t.host, t.port))
	}
	return net.Dial("unix", t.name)
}

// reportError records a ConnectionError classified by the transport of t
// and fires the error callback.
func (c *Connection) reportError(t target, err error) {
	kind := LocalSocketError
	if t.isTcp {
		kind = TcpSocketError
	}
	ce := &ConnectionError{Kind: kind, Err: err}
	c.mu.Lock()
	c.lastError = ce
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(ce)
	}
}

func (c *Connection) attach(conn net.Conn) {
	c.mu.Lock()
	readSize, writeSize, format, key := c.readBufferSize, c.writeBufferSize, c.format, c.endpointKey
	c.mu.Unlock()

	// Stream's own read pump always runs on a goroutine of its own
	// regardless of useSeparateThread (that flag only decides whether
	// Connection's public methods hop onto a dedicated worker before
	// touching it), so the Stream itself always needs the synchronized
	// buffer - same as server.go's Sessions.
	s := transport.NewStream(true)
	s.SetReadBufferSize(readSize)
	s.SetWriteBufferSize(writeSize)
	if format != wire.Undefined {
		s.SetOutboundFormat(format)
	}
	s.SetOnClosed(c.onStreamClosed)

	// Endpoints outlive Stream reconnects: the same router is reattached to
	// the new Stream rather than rebuilt, so named endpoints the caller
	// already holds keep working across a reconnect. The router's ready-read
	// callback is installed before the device starts the read pump, so the
	// first inbound message can't arrive into a callback-less Stream.
	c.router.SetEndpointKey(key)
	c.router.SetStream(s)
	s.SetDevice(transport.NewNetDevice(conn))

	c.mu.Lock()
	c.stream = s
	c.everConnected = true
	c.lastError = nil
	c.setStateLocked(Connected)
	c.mu.Unlock()
	logger.Logkv("event", eventConnectionConnected)
}

func (c *Connection) onStreamClosed() {
	logger.Logkv("event", eventConnectionDisconnected)
	c.mu.Lock()
	explicit := c.explicit
	c.setStateLocked(Unconnected)
	reconnect := c.autoReconnect && !explicit
	last := c.last
	c.mu.Unlock()

	if reconnect {
		go c.scheduleReconnect(last)
	}
}

func (c *Connection) scheduleReconnect(t target) {
	c.mu.Lock()
	c.setStateLocked(Connecting)
	c.mu.Unlock()
	time.Sleep(reconnectDelay)
	logger.Logkv("event", eventConnectionReconnecting)
	c.connect(t, false)
}

// setStateLocked must be called with c.mu held.
func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	fn := c.onStateChanged
	if fn != nil {
		go fn(s)
	}
}

// Send writes obj to the default endpoint's Stream; in worker mode this is
// a blocking cross-thread invocation.
func (c *Connection) Send(obj wire.Value) bool {
	var ok bool
	c.post(func() { ok = c.router.Default().Send(obj) }, true)
	return ok
}

// Close explicitly disconnects, suppressing auto-reconnect, and stops the
// worker goroutine if one was started.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.explicit = true
	s := c.stream
	c.mu.Unlock()
	var err error
	if s != nil {
		err = s.Close()
	}
	c.mu.Lock()
	c.setStateLocked(Unconnected)
	c.mu.Unlock()
	if c.useSeparateThread {
		close(c.quit)
	}
	return err
}

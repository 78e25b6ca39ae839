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

// Package endpoint multiplexes named send/receive handles over a single
// transport.Stream: EndpointRouter extracts a routing key from each inbound
// object and hands it to the matching Endpoint, Connection owns the
// client-side Stream lifecycle (connect, auto-reconnect, optional worker
// thread) and Endpoint is the handle user code actually talks to.
package endpoint

import (
	"sync"

	"github.com/qtproject/jsonstream/transport"
	"github.com/qtproject/jsonstream/wire"
)

const defaultEndpointKey = "endpoint"

// Endpoint is a named handle multiplexed over one Connection's Stream. The
// empty name denotes the default endpoint: exactly one per Connection,
// auto-created on demand, never stored in the router's name table.
type Endpoint struct {
	name   string
	router *EndpointRouter

	mu      sync.Mutex
	busy    bool
	onReady func()
}

// Name returns the endpoint's name ("" for the default endpoint).
func (e *Endpoint) Name() string { return e.name }

// Send writes obj through the owning Connection's Stream. The routing-key
// member is not added automatically - the key names an inbound routing
// field, so tagging outbound objects is the caller's responsibility.
func (e *Endpoint) Send(obj wire.Value) bool {
	return e.router.send(obj)
}

// MessageAvailable reports whether the router's single-slot handoff
// currently holds a message addressed to this endpoint.
func (e *Endpoint) MessageAvailable() bool {
	return e.router.messageAvailable(e)
}

// ReadMessage returns and clears the slot iff it holds a message for this
// endpoint, else an empty object.
func (e *Endpoint) ReadMessage() wire.Value {
	return e.router.readMessage(e)
}

// SetOnReadyReadMessage installs the non-recursive ready_read_message
// callback: the handler is expected to drain with a `for MessageAvailable()`
// loop, but a notification arriving while a previous one is still running
// is suppressed rather than queued.
func (e *Endpoint) SetOnReadyReadMessage(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReady = fn
}

func (e *Endpoint) notifyReady() {
	e.mu.Lock()
	if e.onReady == nil || e.busy {
		e.mu.Unlock()
		return
	}
	e.busy = true
	fn := e.onReady
	e.mu.Unlock()

	fn()

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// EndpointRouter owns the endpoint_key configuration, the name->Endpoint
// table and the single-slot (current_destination, pending_object) handoff
// that gives at-most-one-outstanding-message-per-stream backpressure.
type EndpointRouter struct {
	mu          sync.Mutex
	endpointKey string
	byName      map[string]*Endpoint
	def         *Endpoint

	slotEndpoint *Endpoint
	slotObject   wire.Value
	slotFull     bool

	stream *transport.Stream
}

// NewEndpointRouter creates a router with the given routing key ("endpoint"
// if key is empty) and no Stream attached yet.
func NewEndpointRouter(key string) *EndpointRouter {
	if key == "" {
		key = defaultEndpointKey
	}
	r := &EndpointRouter{endpointKey: key, byName: make(map[string]*Endpoint)}
	r.def = &Endpoint{router: r}
	return r
}

// SetStream (re)attaches the Stream this router pulls messages from. Used
// by Connection on connect/reconnect; Endpoints survive the call.
func (r *EndpointRouter) SetStream(s *transport.Stream) {
	r.mu.Lock()
	r.stream = s
	r.slotFull = false
	r.slotEndpoint = nil
	r.mu.Unlock()
	if s != nil {
		s.SetOnReadyReadMessage(r.onStreamReady)
	}
}

// SetEndpointKey changes the routing key read from inbound objects.
func (r *EndpointRouter) SetEndpointKey(key string) {
	if key == "" {
		key = defaultEndpointKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpointKey = key
}

// Default returns the Connection's default endpoint.
func (r *EndpointRouter) Default() *Endpoint {
	return r.def
}

// Endpoint returns the named endpoint, creating it if it doesn't exist yet.
// An empty name returns the default endpoint.
func (r *EndpointRouter) Endpoint(name string) *Endpoint {
	if name == "" {
		return r.def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		return e
	}
	e := &Endpoint{name: name, router: r}
	r.byName[name] = e
	return e
}

// RemoveEndpoint detaches and forgets the named endpoint. A no-op for the
// default endpoint, which is never removable.
func (r *EndpointRouter) RemoveEndpoint(name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotEndpoint != nil && r.slotEndpoint.name == name {
		r.slotFull = false
		r.slotEndpoint = nil
	}
	delete(r.byName, name)
}

func (r *EndpointRouter) send(obj wire.Value) bool {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Send(obj)
}

// onStreamReady is the Stream's ready_read_message callback: it tries to
// fill the slot exactly once and, if it newly filled it, notifies the
// landing endpoint exactly once - this is what makes the handoff
// single-slot rather than a queue.
func (r *EndpointRouter) onStreamReady() {
	r.mu.Lock()
	wasFull := r.slotFull
	filled := r.fillSlotLocked()
	ep := r.slotEndpoint
	r.mu.Unlock()
	if filled && !wasFull && ep != nil {
		ep.notifyReady()
	}
}

// fillSlotLocked pulls one message out of the Stream into the slot if the
// slot is currently empty and a message is available. Returns whether the
// slot holds a message (newly filled or already full) after the call.
func (r *EndpointRouter) fillSlotLocked() bool {
	if r.slotFull {
		return true
	}
	if r.stream == nil || !r.stream.MessageAvailable() {
		return false
	}
	obj := r.stream.ReadMessage()
	name := ""
	if obj.IsObject() {
		if v, ok := obj.Object.Get(r.endpointKey); ok && v.Kind == wire.KindString {
			name = v.String
		}
	}
	ep, ok := r.byName[name]
	if !ok {
		ep = r.def
	}
	r.slotEndpoint = ep
	r.slotObject = obj
	r.slotFull = true
	return true
}

func (r *EndpointRouter) messageAvailable(e *Endpoint) bool {
	r.mu.Lock()
	if r.slotFull {
		ok := r.slotEndpoint == e
		r.mu.Unlock()
		return ok
	}
	if !r.fillSlotLocked() {
		r.mu.Unlock()
		return false
	}
	ep := r.slotEndpoint
	r.mu.Unlock()
	if ep == e {
		return true
	}
	// The poll pulled a message addressed to a different endpoint into the
	// slot. That endpoint must still hear about it, or a callback-only
	// consumer would stall until someone else happened to poll.
	if ep != nil {
		ep.notifyReady()
	}
	return false
}

func (r *EndpointRouter) readMessage(e *Endpoint) wire.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotFull && r.slotEndpoint == e {
		v := r.slotObject
		r.slotFull = false
		r.slotEndpoint = nil
		return v
	}
	return wire.NewObjectValue(wire.NewObject())
}

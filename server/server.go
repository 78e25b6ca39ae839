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

package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/qtproject/jsonstream/authority"
	"github.com/qtproject/jsonstream/metrics"
	"github.com/qtproject/jsonstream/transport"
	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

const (
	moduleServer = "server"

	eventServerListening = "listening"
	eventServerAccept    = "accept"
	eventServerStopped   = "stopped"

	errorServerListen = "listen"
	errorServerAccept = "accept"
)

var serverLogger = util.NewGlobalModuleLogger(moduleServer, nil)

// ValidationMode controls what SchemaValidator integration a Server does
// with a failed validation: none of the flags means validation is skipped
// entirely for that direction.
type ValidationMode int

const (
	// ValidationNone disables schema validation for a direction.
	ValidationNone ValidationMode = 0
	// ValidationWarnIfInvalid emits a validation-failed event but still
	// delivers the object.
	ValidationWarnIfInvalid ValidationMode = 1 << iota
	// ValidationDropIfInvalid additionally suppresses delivery.
	ValidationDropIfInvalid
)

// Validator is the narrow schema-validation contract the Server consults
// for inbound/outbound objects; schema.Validator satisfies it.
type Validator interface {
	ValidateSchema(name string, obj wire.Value) error
}

// Server accepts local-domain or TCP connections, drives each one through
// a Session, and tracks identifier->Session bindings, per-identifier
// outbound queues and broadcast.
type Server struct {
	auth authority.Authority

	mu              sync.Mutex
	sessions        map[string]map[*Session]bool
	multipleAllowed util.Set
	queueingEnabled map[string]bool
	queues          map[string][]wire.Value

	inboundValidator  Validator
	inboundMode       ValidationMode
	outboundValidator Validator
	outboundMode      ValidationMode

	listener net.Listener

	onConnectionAdded     func(identifier string)
	onConnectionRemoved   func(identifier string)
	onMessageReceived     func(identifier string, obj wire.Value)
	onAuthorizationFailed func()
	onValidationFailed    func(direction string, identifier string, obj wire.Value, err error)
}

// NewServer creates a Server using auth for every accepted connection. A
// nil auth means every connection self-issues a UUID and is immediately
// Authorized.
func NewServer(auth authority.Authority) *Server {
	return &Server{
		auth:            auth,
		sessions:        make(map[string]map[*Session]bool),
		multipleAllowed: util.MakeSet(),
		queueingEnabled: make(map[string]bool),
		queues:          make(map[string][]wire.Value),
	}
}

// SetOnConnectionAdded installs the callback fired on the first Authorized
// Session for an identifier, or on any additional one once multiple
// connections are enabled for it.
func (srv *Server) SetOnConnectionAdded(fn func(identifier string)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onConnectionAdded = fn
}

// SetOnConnectionRemoved installs the callback fired when an Authorized
// Session for identifier disconnects.
func (srv *Server) SetOnConnectionRemoved(fn func(identifier string)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onConnectionRemoved = fn
}

// SetOnMessageReceived installs the callback fired for every inbound
// object from an Authorized Session that passes inbound validation.
func (srv *Server) SetOnMessageReceived(fn func(identifier string, obj wire.Value)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onMessageReceived = fn
}

// SetOnAuthorizationFailed installs the callback fired whenever a Session
// is rejected by the Authority.
func (srv *Server) SetOnAuthorizationFailed(fn func()) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onAuthorizationFailed = fn
}

// SetOnValidationFailed installs the callback fired when an object fails
// schema validation in either direction ("inbound" or "outbound").
func (srv *Server) SetOnValidationFailed(fn func(direction string, identifier string, obj wire.Value, err error)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onValidationFailed = fn
}

// SetInboundValidator installs the SchemaValidator consulted for every
// object received from an Authorized Session, and the failure mode.
func (srv *Server) SetInboundValidator(v Validator, mode ValidationMode) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.inboundValidator = v
	srv.inboundMode = mode
}

// SetOutboundValidator installs the SchemaValidator consulted for every
// object passed to Send/Broadcast, and the failure mode.
func (srv *Server) SetOutboundValidator(v Validator, mode ValidationMode) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.outboundValidator = v
	srv.outboundMode = mode
}

// ListenLocal accepts connections on a Unix-domain socket at path.
func (srv *Server) ListenLocal(path string) error {
	l, err := net.Listen("unix", path)
	if err != nil {
		serverLogger.Logkv("event", errorServerListen, "error", err.Error())
		return err
	}
	return srv.serve(l)
}

// ListenTcp accepts connections on 0.0.0.0:port over TCP.
func (srv *Server) ListenTcp(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		serverLogger.Logkv("event", errorServerListen, "error", err.Error())
		return err
	}
	return srv.serve(l)
}

func (srv *Server) serve(l net.Listener) error {
	srv.mu.Lock()
	srv.listener = l
	srv.mu.Unlock()
	serverLogger.Logkv("event", eventServerListening, "addr", l.Addr().String())
	go srv.acceptLoop(l)
	return nil
}

func (srv *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			serverLogger.Logkv("event", eventServerStopped, "error", err.Error())
			return
		}
		serverLogger.Logkv("event", eventServerAccept, "remote", conn.RemoteAddr().String())
		srv.accept(conn)
	}
}

func (srv *Server) accept(conn net.Conn) {
	stream := transport.NewStream(true)
	newSession(srv, stream, transport.NewNetDevice(conn), srv.auth)
}

// sessionAuthorized implements the "multiple connections" gate: when
// identifier is already bound and multiple connections aren't enabled for
// it, the new Session is stopped before connectionAdded is ever emitted
// for it.
func (srv *Server) sessionAuthorized(s *Session, identifier string) {
	srv.mu.Lock()
	existing := srv.sessions[identifier]
	allowMultiple := srv.multipleAllowed.Contains(identifier)
	if len(existing) > 0 && !allowMultiple {
		srv.mu.Unlock()
		s.stop()
		return
	}
	if existing == nil {
		existing = make(map[*Session]bool)
		srv.sessions[identifier] = existing
	}
	existing[s] = true
	queued := srv.queues[identifier]
	srv.queues[identifier] = nil
	fn := srv.onConnectionAdded
	srv.mu.Unlock()

	metrics.ConnectionsAdded.WithLabelValues(identifier).Inc()
	metrics.ConnectionsActive.WithLabelValues(identifier).Inc()
	if fn != nil {
		fn(identifier)
	}
	for _, obj := range queued {
		s.send(obj)
	}
}

func (srv *Server) sessionClosed(s *Session, identifier string, wasAuthorized bool) {
	srv.mu.Lock()
	set := srv.sessions[identifier]
	if !set[s] {
		srv.mu.Unlock()
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(srv.sessions, identifier)
	}
	fn := srv.onConnectionRemoved
	srv.mu.Unlock()

	metrics.ConnectionsRemoved.WithLabelValues(identifier).Inc()
	metrics.ConnectionsActive.WithLabelValues(identifier).Dec()
	if fn != nil {
		fn(identifier)
	}
}

func (srv *Server) authorizationFailed() {
	srv.mu.Lock()
	fn := srv.onAuthorizationFailed
	srv.mu.Unlock()
	metrics.AuthorizationFailures.WithLabelValues().Inc()
	if fn != nil {
		fn()
	}
}

// messageReceived is called by a Session for every object received while
// Authorized; it applies inbound schema validation before forwarding to
// the user's OnMessageReceived callback.
func (srv *Server) messageReceived(s *Session, identifier string, obj wire.Value) {
	srv.mu.Lock()
	validator := srv.inboundValidator
	mode := srv.inboundMode
	fn := srv.onMessageReceived
	failFn := srv.onValidationFailed
	srv.mu.Unlock()

	metrics.MessagesReceived.WithLabelValues(identifier).Inc()

	if validator != nil && mode != ValidationNone {
		if err := validator.ValidateSchema("", obj); err != nil {
			metrics.ValidationFailures.WithLabelValues("inbound").Inc()
			if mode&ValidationWarnIfInvalid != 0 && failFn != nil {
				failFn("inbound", identifier, obj, err)
			}
			if mode&ValidationDropIfInvalid != 0 {
				return
			}
		}
	}
	if fn != nil {
		fn(identifier, obj)
	}
}

// Send writes obj to every Session currently bound to identifier. It
// returns true iff at least one Session was reached. If none was reached
// and queueing is enabled for identifier, obj is queued for delivery on
// the next connectionAdded. Outbound schema validation with
// ValidationDropIfInvalid drops obj (returns false, unqueued) before
// either of those paths runs.
func (srv *Server) Send(identifier string, obj wire.Value) bool {
	srv.mu.Lock()
	validator := srv.outboundValidator
	mode := srv.outboundMode
	failFn := srv.onValidationFailed
	srv.mu.Unlock()

	if validator != nil && mode != ValidationNone {
		if err := validator.ValidateSchema("", obj); err != nil {
			metrics.ValidationFailures.WithLabelValues("outbound").Inc()
			if mode&ValidationWarnIfInvalid != 0 && failFn != nil {
				failFn("outbound", identifier, obj, err)
			}
			if mode&ValidationDropIfInvalid != 0 {
				return false
			}
		}
	}

	srv.mu.Lock()
	set := srv.sessions[identifier]
	sessions := make([]*Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}
	queueing := srv.queueingEnabled[identifier]
	srv.mu.Unlock()

	reached := false
	for _, s := range sessions {
		if s.send(obj) {
			reached = true
			metrics.MessagesSent.WithLabelValues(identifier).Inc()
		}
	}
	if reached {
		return true
	}
	if queueing {
		srv.mu.Lock()
		srv.queues[identifier] = append(srv.queues[identifier], obj)
		srv.mu.Unlock()
	}
	return false
}

// Broadcast sends obj to every Authorized Session exactly once.
func (srv *Server) Broadcast(obj wire.Value) {
	srv.mu.Lock()
	validator := srv.outboundValidator
	mode := srv.outboundMode
	failFn := srv.onValidationFailed
	srv.mu.Unlock()

	if validator != nil && mode != ValidationNone {
		if err := validator.ValidateSchema("", obj); err != nil {
			metrics.ValidationFailures.WithLabelValues("outbound").Inc()
			if mode&ValidationWarnIfInvalid != 0 && failFn != nil {
				failFn("outbound", "", obj, err)
			}
			if mode&ValidationDropIfInvalid != 0 {
				return
			}
		}
	}

	srv.mu.Lock()
	var sessions []*Session
	var identifiers []string
	for id, set := range srv.sessions {
		for s := range set {
			sessions = append(sessions, s)
			identifiers = append(identifiers, id)
		}
	}
	srv.mu.Unlock()

	for i, s := range sessions {
		if s.send(obj) {
			metrics.MessagesSent.WithLabelValues(identifiers[i]).Inc()
		}
	}
}

// RemoveConnection stops every Session bound to identifier.
func (srv *Server) RemoveConnection(identifier string) {
	srv.mu.Lock()
	set := srv.sessions[identifier]
	sessions := make([]*Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()
	for _, s := range sessions {
		s.stop()
	}
}

// EnableQueuing turns on outbound queueing for identifier: Send calls that
// reach no Session are buffered and flushed to the next Session that
// authorizes under that identifier.
func (srv *Server) EnableQueuing(identifier string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.queueingEnabled[identifier] = true
}

// DisableQueuing turns off outbound queueing for identifier. Any already
// queued objects are left in place until ClearQueue or a connection picks
// them up.
func (srv *Server) DisableQueuing(identifier string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.queueingEnabled, identifier)
}

// ClearQueue discards any objects queued for identifier.
func (srv *Server) ClearQueue(identifier string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.queues, identifier)
}

// IsQueuingEnabled reports whether queueing is on for identifier.
func (srv *Server) IsQueuingEnabled(identifier string) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.queueingEnabled[identifier]
}

// EnableMultipleConnections allows more than one concurrent Session to
// authorize under identifier.
func (srv *Server) EnableMultipleConnections(identifier string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.multipleAllowed.Add(identifier)
}

// DisableMultipleConnections reverts to the default: a second Session
// authorizing under an already-bound identifier is stopped immediately.
func (srv *Server) DisableMultipleConnections(identifier string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.multipleAllowed.Remove(identifier)
}

// Close stops accepting new connections and closes every active Session.
func (srv *Server) Close() error {
	srv.mu.Lock()
	l := srv.listener
	var all []*Session
	for _, set := range srv.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	srv.mu.Unlock()
	for _, s := range all {
		s.stop()
	}
	if l != nil {
		return l.Close()
	}
	return nil
}

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

// Package server accepts connections, drives a per-client Session through
// an authority.Authority handshake, and maintains the identifier->Session
// bookkeeping: queueing, broadcast and the multiple-connections gate.
package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/qtproject/jsonstream/authority"
	"github.com/qtproject/jsonstream/transport"
	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

// sessionState is a Session's authorization state.
type sessionState int

const (
	stateUnauthorized sessionState = iota
	stateAuthorized
	stateStopped
)

const (
	moduleSession = "session"

	eventSessionAuthorized   = "authorized"
	eventSessionUnauthorized = "unauthorized"
	eventSessionDisconnected = "disconnected"
	eventSessionMessage      = "message"
)

var sessionLogger = util.NewGlobalModuleLogger(moduleSession, nil)

// sessionPeer adapts a transport.Stream's attached Device to the narrow
// authority.Peer contract.
type sessionPeer struct {
	stream *transport.Stream
}

func (p sessionPeer) PeerCredentials() (util.PeerCredentials, error) {
	dev := p.stream.Device()
	if dev == nil {
		return util.PeerCredentials{}, util.ErrPeerCredentialsUnsupported
	}
	return dev.PeerCredentials()
}

// Session wraps one accepted transport.Stream: it drives the Authority
// handshake while Unauthorized and forwards every message tagged with its
// identifier to the owning Server once Authorized. A nil Authority means
// "no authorization": the Session self-issues a UUID and is immediately
// Authorized.
type Session struct {
	server    *Server
	stream    *transport.Stream
	authority authority.Authority

	mu         sync.Mutex
	state      sessionState
	identifier string
}

// newSession creates a Session over stream, attaches device and starts the
// authorization handshake. The ready-read and closed callbacks are
// registered before the device is attached, so a message arriving the
// instant the read pump starts cannot slip past the handshake; the caller
// never drives the Stream directly after this returns.
func newSession(srv *Server, stream *transport.Stream, device transport.Device, auth authority.Authority) *Session {
	s := &Session{server: srv, stream: stream, authority: auth}
	stream.SetOnReadyReadMessage(s.onReady)
	stream.SetOnClosed(s.onClosed)
	stream.SetDevice(device)
	s.start()
	return s
}

// start evaluates the connect-time authorization step, synthesizing a UUID
// identifier immediately when no Authority is configured.
func (s *Session) start() {
	if s.authority == nil {
		id := uuid.NewString()
		s.transition(authority.AuthRecord{State: authority.Authorized, Identifier: id})
		return
	}
	rec := s.authority.OnClientConnected(sessionPeer{stream: s.stream})
	s.transition(rec)
}

// onReady is the Stream's ready_read_message callback: while Unauthorized
// every inbound object is consumed by the Authority handshake; once
// Authorized, every object is forwarded to the Server tagged with this
// Session's identifier.
func (s *Session) onReady() {
	for s.stream.MessageAvailable() {
		obj := s.stream.ReadMessage()

		s.mu.Lock()
		state := s.state
		id := s.identifier
		s.mu.Unlock()

		switch state {
		case stateUnauthorized:
			rec := s.authority.OnMessageReceived(sessionPeer{stream: s.stream}, obj)
			s.transition(rec)
		case stateAuthorized:
			sessionLogger.Logkv("event", eventSessionMessage, "identifier", id)
			s.server.messageReceived(s, id, obj)
		case stateStopped:
			return
		}
	}
}

// transition applies an AuthRecord returned by either Authority callback.
// InProgress leaves the Session Unauthorized, waiting for the next message.
func (s *Session) transition(rec authority.AuthRecord) {
	switch rec.State {
	case authority.Authorized:
		s.mu.Lock()
		if s.state != stateUnauthorized {
			s.mu.Unlock()
			return
		}
		s.state = stateAuthorized
		s.identifier = rec.Identifier
		s.mu.Unlock()
		sessionLogger.Logkv("event", eventSessionAuthorized, "identifier", rec.Identifier)
		s.server.sessionAuthorized(s, rec.Identifier)
	case authority.NotAuthorized:
		sessionLogger.Logkv("event", eventSessionUnauthorized)
		s.mu.Lock()
		s.state = stateStopped
		s.mu.Unlock()
		s.server.authorizationFailed()
		s.stream.Close()
	case authority.InProgress:
		// remain Unauthorized, wait for the next message.
	}
}

// onClosed is the Stream's disconnect callback: it reports the close to the
// Server, which emits connectionRemoved only for a Session it had admitted
// under its identifier after authorization, then forgets itself.
func (s *Session) onClosed() {
	s.mu.Lock()
	wasAuthorized := s.state == stateAuthorized
	id := s.identifier
	s.state = stateStopped
	s.mu.Unlock()
	sessionLogger.Logkv("event", eventSessionDisconnected, "identifier", id)
	s.server.sessionClosed(s, id, wasAuthorized)
}

// Identifier returns the Session's bound identifier, or "" before
// authorization completes.
func (s *Session) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifier
}

// Authorized reports whether the Session has completed the handshake.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthorized
}

// send writes obj to this Session's Stream.
func (s *Session) send(obj wire.Value) bool {
	return s.stream.Send(obj)
}

// stop closes the underlying Stream without ever having emitted
// connectionAdded for it - used by Server's multiple-connections gate to
// reject an additional Session for an identifier that doesn't allow them.
func (s *Session) stop() {
	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()
	s.stream.Close()
}

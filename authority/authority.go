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

// Package authority provides the pluggable connect-time/message-time
// authorization hook consumed by server.Session, with peer-uid, peer-pid
// and shared-token implementations.
package authority

import (
	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

// State is the outcome of an authorization step.
type State int

const (
	InProgress State = iota
	Authorized
	NotAuthorized
)

// AuthRecord is the result of either Authority callback.
type AuthRecord struct {
	State      State
	Identifier string
}

// Peer is the narrow contract an Authority needs from a Session's
// underlying connection: just enough to read the effective uid/pid,
// without pulling in the whole transport.Stream surface.
type Peer interface {
	PeerCredentials() (util.PeerCredentials, error)
}

// Authority converts a new connection, or its first messages, into a
// stable identifier - or rejects it. A nil Authority means "no
// authorization": Session self-issues a UUID and is immediately Authorized
// (see server.Session).
type Authority interface {
	// OnClientConnected is evaluated once, right after accept, before any
	// message has been read.
	OnClientConnected(peer Peer) AuthRecord
	// OnMessageReceived is evaluated for every inbound message while the
	// Session is still Unauthorized.
	OnMessageReceived(peer Peer, obj wire.Value) AuthRecord
}

const (
	moduleAuthority = "authority"

	eventAuthorityGranted = "granted"
	eventAuthorityDenied  = "denied"

	errorAuthorityNoPeerCredentials = "no_peer_credentials"
)

var logger = util.NewGlobalModuleLogger(moduleAuthority, nil)

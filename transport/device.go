/* Copyright (c) 2017 Gregor Riepl
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

// Package transport pairs a byte-stream device with a framing.Buffer and
// the wire codec, enforcing read/write buffer caps.
package transport

import (
	"net"

	"github.com/qtproject/jsonstream/util"
)

// Device is the byte-stream contract consumed by Stream. A
// net.Conn (Unix-domain or TCP) satisfies it via NetDevice. Pipe does not
// implement Device; it carries its own Send/ReadMessage over an fd pair.
type Device interface {
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
	Close() error
	// PeerCredentials returns the uid/pid of the process on the other end,
	// or util.ErrPeerCredentialsUnsupported if unavailable.
	PeerCredentials() (util.PeerCredentials, error)
}

// NetDevice adapts a net.Conn (Unix-domain or TCP) to the Device contract.
type NetDevice struct {
	net.Conn
}

// NewNetDevice wraps an already-connected net.Conn.
func NewNetDevice(conn net.Conn) *NetDevice {
	return &NetDevice{Conn: conn}
}

// PeerCredentials reads SO_PEERCRED off the wrapped connection (Unix-domain
// sockets only, per util.PeerCredentialsFromConn).
func (d *NetDevice) PeerCredentials() (util.PeerCredentials, error) {
	return util.PeerCredentialsFromConn(d.Conn)
}

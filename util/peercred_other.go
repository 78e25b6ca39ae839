//go:build !linux
// +build !linux

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

package util

import "net"

// PeerCredentials holds the effective uid/pid of the process on the other
// end of a connected Unix domain socket. Always empty on platforms without
// SO_PEERCRED.
type PeerCredentials struct {
	Uid uint32
	Pid int32
}

// PeerCredentialsFromConn always fails here: no SO_PEERCRED equivalent is
// wired up for this platform, so uid/pid based authorities deny every
// connection rather than the package failing to build.
func PeerCredentialsFromConn(conn net.Conn) (PeerCredentials, error) {
	return PeerCredentials{}, ErrPeerCredentialsUnsupported
}

//go:build linux
// +build linux

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

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials holds the effective uid/pid of the process on the other
// end of a connected Unix domain socket.
type PeerCredentials struct {
	Uid uint32
	Pid int32
}

// PeerCredentialsFromConn reads SO_PEERCRED off a connected Unix domain
// socket. Returns ErrPeerCredentialsUnsupported for any other connection
// type: uid/pid authorization only ever runs over local sockets.
func PeerCredentialsFromConn(conn net.Conn) (PeerCredentials, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCredentials{}, ErrPeerCredentialsUnsupported
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCredentials{}, err
	}
	var cred *unix.Ucred
	var operr error
	err = raw.Control(func(fd uintptr) {
		cred, operr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCredentials{}, err
	}
	if operr != nil {
		return PeerCredentials{}, operr
	}
	return PeerCredentials{Uid: cred.Uid, Pid: cred.Pid}, nil
}

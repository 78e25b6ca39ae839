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

package authority

import "github.com/qtproject/jsonstream/wire"

// PeerPIDAuthority authorizes a connection at accept time against a
// pre-registered pid -> identifier map. On platforms where peer pid lookup
// is unsupported (util.ErrPeerCredentialsUnsupported), every connection is
// denied rather than the process failing to build.
type PeerPIDAuthority struct {
	byPid map[int32]string
}

// NewPeerPIDAuthority builds a PeerPIDAuthority from a pid->identifier map.
// The caller-supplied map is copied so later mutation by the caller has no
// effect.
func NewPeerPIDAuthority(idByPid map[int32]string) *PeerPIDAuthority {
	a := &PeerPIDAuthority{byPid: make(map[int32]string, len(idByPid))}
	for pid, id := range idByPid {
		a.byPid[pid] = id
	}
	return a
}

// OnClientConnected reads the peer's pid and authorizes at connect time.
func (a *PeerPIDAuthority) OnClientConnected(peer Peer) AuthRecord {
	creds, err := peer.PeerCredentials()
	if err != nil {
		logger.Logkv("event", eventAuthorityDenied, "error", errorAuthorityNoPeerCredentials, "reason", err.Error())
		return AuthRecord{State: NotAuthorized}
	}
	if id, ok := a.byPid[creds.Pid]; ok {
		return AuthRecord{State: Authorized, Identifier: id}
	}
	return AuthRecord{State: NotAuthorized}
}

// OnMessageReceived is unreachable in practice, symmetric with
// PeerUIDAuthority's own note.
func (a *PeerPIDAuthority) OnMessageReceived(peer Peer, obj wire.Value) AuthRecord {
	return a.OnClientConnected(peer)
}

var _ Authority = (*PeerPIDAuthority)(nil)

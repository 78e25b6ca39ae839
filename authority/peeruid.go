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

import (
	"os/user"
	"strconv"

	"github.com/qtproject/jsonstream/wire"
)

// PeerUIDAuthority authorizes a connection at accept time by the effective
// uid of the process on the other end of a local-domain socket, either
// against an exact allow-list (uid or /etc/passwd name) or, via
// NewPeerUIDRangeAuthority, a [min,max] uid range. The identifier is the
// resolved account name, falling back to the decimal uid when the lookup
// fails.
type PeerUIDAuthority struct {
	allowUids  map[uint32]bool
	allowNames map[string]bool
	min, max   uint32
	ranged     bool
}

// NewPeerUIDAuthority builds an exact-match authority. Each entry in allow
// is either a decimal uid or an account name; names are kept as given and
// compared, at authorization time, with the name os/user.LookupId reports
// for the peer's uid.
func NewPeerUIDAuthority(allow ...string) *PeerUIDAuthority {
	a := &PeerUIDAuthority{allowUids: make(map[uint32]bool), allowNames: make(map[string]bool)}
	for _, entry := range allow {
		if uid, err := strconv.ParseUint(entry, 10, 32); err == nil {
			a.allowUids[uint32(uid)] = true
			continue
		}
		a.allowNames[entry] = true
	}
	return a
}

// NewPeerUIDRangeAuthority builds a range authority: any uid in [min,max]
// is authorized.
func NewPeerUIDRangeAuthority(min, max uint32) *PeerUIDAuthority {
	return &PeerUIDAuthority{ranged: true, min: min, max: max}
}

func (a *PeerUIDAuthority) authorizeUid(uid uint32) AuthRecord {
	if a.ranged {
		if uid < a.min || uid > a.max {
			return AuthRecord{State: NotAuthorized}
		}
		return AuthRecord{State: Authorized, Identifier: resolveUidName(uid)}
	}
	name := resolveUidName(uid)
	if a.allowUids[uid] || a.allowNames[name] {
		return AuthRecord{State: Authorized, Identifier: name}
	}
	return AuthRecord{State: NotAuthorized}
}

// OnClientConnected reads the peer's effective uid and authorizes at
// connect time; peer-uid authorization never waits for a message.
func (a *PeerUIDAuthority) OnClientConnected(peer Peer) AuthRecord {
	creds, err := peer.PeerCredentials()
	if err != nil {
		logger.Logkv("event", eventAuthorityDenied, "error", errorAuthorityNoPeerCredentials, "reason", err.Error())
		return AuthRecord{State: NotAuthorized}
	}
	return a.authorizeUid(creds.Uid)
}

// OnMessageReceived is unreachable in practice: PeerUIDAuthority always
// resolves at OnClientConnected, so Session never stays Unauthorized long
// enough to pass it a message. Kept for interface completeness.
func (a *PeerUIDAuthority) OnMessageReceived(peer Peer, obj wire.Value) AuthRecord {
	return a.OnClientConnected(peer)
}

// resolveUidName looks up the account name for uid via /etc/passwd (or the
// platform's user database), falling back to the decimal uid string on a
// failed lookup.
func resolveUidName(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil || u.Username == "" {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return u.Username
}

var _ Authority = (*PeerUIDAuthority)(nil)

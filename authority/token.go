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

const tokenKey = "token"

// TokenAuthority authorizes on the first inbound message whose "token"
// member matches a pre-registered token -> identifier map. Unlike
// PeerUIDAuthority/PeerPIDAuthority it never resolves at connect time: it
// always returns InProgress from OnClientConnected and waits for a message.
type TokenAuthority struct {
	byToken map[string]string
}

// NewTokenAuthority builds a TokenAuthority from a token->identifier map.
func NewTokenAuthority(idByToken map[string]string) *TokenAuthority {
	a := &TokenAuthority{byToken: make(map[string]string, len(idByToken))}
	for token, id := range idByToken {
		a.byToken[token] = id
	}
	return a
}

// OnClientConnected always defers to the first message.
func (a *TokenAuthority) OnClientConnected(peer Peer) AuthRecord {
	return AuthRecord{State: InProgress}
}

// OnMessageReceived checks obj["token"] against the registered map. A
// message with no "token" member, a non-string token, or an unrecognized
// value is rejected outright rather than left InProgress - a client gets
// exactly one chance to present a token.
func (a *TokenAuthority) OnMessageReceived(peer Peer, obj wire.Value) AuthRecord {
	if !obj.IsObject() {
		return AuthRecord{State: NotAuthorized}
	}
	v, ok := obj.Object.Get(tokenKey)
	if !ok || v.Kind != wire.KindString {
		return AuthRecord{State: NotAuthorized}
	}
	if id, ok := a.byToken[v.String]; ok {
		return AuthRecord{State: Authorized, Identifier: id}
	}
	return AuthRecord{State: NotAuthorized}
}

var _ Authority = (*TokenAuthority)(nil)

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
	"errors"
	"testing"

	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

type fakePeer struct {
	creds util.PeerCredentials
	err   error
}

func (p fakePeer) PeerCredentials() (util.PeerCredentials, error) {
	return p.creds, p.err
}

// TestAuthority00 checks PeerUIDAuthority's exact-uid match.
func TestAuthority00(t *testing.T) {
	a := NewPeerUIDAuthority("1000")
	rec := a.OnClientConnected(fakePeer{creds: util.PeerCredentials{Uid: 1000}})
	if rec.State != Authorized {
		t.Fatalf("state = %v, want Authorized", rec.State)
	}
}

// TestAuthority01 checks PeerUIDAuthority rejects an unlisted uid.
func TestAuthority01(t *testing.T) {
	a := NewPeerUIDAuthority("1000")
	rec := a.OnClientConnected(fakePeer{creds: util.PeerCredentials{Uid: 2000}})
	if rec.State != NotAuthorized {
		t.Fatalf("state = %v, want NotAuthorized", rec.State)
	}
}

// TestAuthority02 checks the uid range variant.
func TestAuthority02(t *testing.T) {
	a := NewPeerUIDRangeAuthority(1000, 2000)
	if a.OnClientConnected(fakePeer{creds: util.PeerCredentials{Uid: 1500}}).State != Authorized {
		t.Fatal("expected 1500 to be in range")
	}
	if a.OnClientConnected(fakePeer{creds: util.PeerCredentials{Uid: 3000}}).State != NotAuthorized {
		t.Fatal("expected 3000 to be out of range")
	}
}

// TestAuthority03 checks that a peer-credentials lookup failure is denied,
// not a panic or a hang.
func TestAuthority03(t *testing.T) {
	a := NewPeerUIDAuthority("1000")
	rec := a.OnClientConnected(fakePeer{err: errors.New("unsupported")})
	if rec.State != NotAuthorized {
		t.Fatalf("state = %v, want NotAuthorized", rec.State)
	}
}

// TestAuthority04 checks PeerPIDAuthority's pid->identifier map.
func TestAuthority04(t *testing.T) {
	a := NewPeerPIDAuthority(map[int32]string{42: "alice"})
	rec := a.OnClientConnected(fakePeer{creds: util.PeerCredentials{Pid: 42}})
	if rec.State != Authorized || rec.Identifier != "alice" {
		t.Fatalf("got %+v, want Authorized/alice", rec)
	}
}

// TestAuthority05 checks a TokenAuthority defers to the first message
// and authorizes on a matching token.
func TestAuthority05(t *testing.T) {
	a := NewTokenAuthority(map[string]string{"T1": "alice"})
	if a.OnClientConnected(fakePeer{}).State != InProgress {
		t.Fatal("expected token authority to defer at connect time")
	}
	msg := wire.NewObject()
	msg.Set("token", wire.String("T1"))
	rec := a.OnMessageReceived(fakePeer{}, wire.NewObjectValue(msg))
	if rec.State != Authorized || rec.Identifier != "alice" {
		t.Fatalf("got %+v, want Authorized/alice", rec)
	}
}

// TestAuthority06 checks TokenAuthority rejects an unrecognized token.
func TestAuthority06(t *testing.T) {
	a := NewTokenAuthority(map[string]string{"T1": "alice"})
	msg := wire.NewObject()
	msg.Set("token", wire.String("bogus"))
	rec := a.OnMessageReceived(fakePeer{}, wire.NewObjectValue(msg))
	if rec.State != NotAuthorized {
		t.Fatalf("state = %v, want NotAuthorized", rec.State)
	}
}

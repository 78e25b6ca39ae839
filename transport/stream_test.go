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

package transport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

// memDevice is an in-memory Device backed by a pipe-like pair of buffers,
// used to drive Stream in tests without a real socket.
type memDevice struct {
	mu       sync.Mutex
	writeBuf bytes.Buffer
	readCh   chan []byte
	closed   bool
	failRead bool
}

func newMemDevice() *memDevice {
	return &memDevice{readCh: make(chan []byte, 16)}
}

func (d *memDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("closed")
	}
	return d.writeBuf.Write(p)
}

func (d *memDevice) Read(p []byte) (int, error) {
	chunk, ok := <-d.readCh
	if !ok {
		return 0, errors.New("eof")
	}
	return copy(p, chunk), nil
}

func (d *memDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.readCh)
	}
	return nil
}

func (d *memDevice) PeerCredentials() (util.PeerCredentials, error) {
	return util.PeerCredentials{}, util.ErrPeerCredentialsUnsupported
}

func (d *memDevice) feed(b []byte) {
	d.readCh <- b
}

func testObject() wire.Value {
	o := wire.NewObject()
	o.Set("text", wire.String("New"))
	return wire.NewObjectValue(o)
}

// TestStream00 checks that Send commits Undefined to Qbjs and writes a
// decodable frame.
func TestStream00(t *testing.T) {
	s := NewStream(false)
	dev := newMemDevice()
	s.SetDevice(dev)

	if !s.Send(testObject()) {
		t.Fatalf("send failed: %v", s.LastError())
	}
	dev.mu.Lock()
	written := append([]byte(nil), dev.writeBuf.Bytes()...)
	dev.mu.Unlock()
	v, err := wire.Decode(written, wire.Qbjs)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !v.Equal(testObject()) {
		t.Fatalf("got %+v, want %+v", v, testObject())
	}
}

// TestStream01 checks the write-buffer cap: Send fails once the cap would
// be exceeded.
func TestStream01(t *testing.T) {
	s := NewStream(false)
	dev := newMemDevice()
	s.SetDevice(dev)
	s.SetWriteBufferSize(4)

	if s.Send(testObject()) {
		t.Fatal("expected send to fail: encoded frame exceeds the 4-byte cap")
	}
	if s.LastError() != ErrMaxWriteBufferSizeExceeded {
		t.Fatalf("last error = %v, want ErrMaxWriteBufferSizeExceeded", s.LastError())
	}
}

// TestStream02 checks Send fails immediately when no device is attached.
func TestStream02(t *testing.T) {
	s := NewStream(false)
	if s.Send(testObject()) {
		t.Fatal("expected send to fail with no device")
	}
	if s.LastError() != ErrWriteFailedNoConnection {
		t.Fatalf("last error = %v, want ErrWriteFailedNoConnection", s.LastError())
	}
}

// TestStream03 drives bytes in through the device and checks
// ready_read_message fires and ReadMessage returns the object.
func TestStream03(t *testing.T) {
	s := NewStream(true)
	ready := make(chan struct{}, 1)
	s.SetOnReadyReadMessage(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	dev := newMemDevice()
	s.SetDevice(dev)
	dev.feed([]byte(`{"a":1}`))

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready_read_message")
	}
	if !s.MessageAvailable() {
		t.Fatal("expected a message to be available")
	}
	v := s.ReadMessage()
	want := wire.NewObject()
	want.Set("a", wire.Number(1))
	if !v.Equal(wire.NewObjectValue(want)) {
		t.Fatalf("got %+v", v)
	}
}

// TestStream04 checks the read-buffer overflow path closes the device when
// the listener doesn't raise the cap.
func TestStream04(t *testing.T) {
	s := NewStream(true)
	s.SetReadBufferSize(4)
	overflowed := make(chan int, 1)
	s.SetOnReadBufferOverflow(func(extra int) {
		overflowed <- extra
	})
	dev := newMemDevice()
	s.SetDevice(dev)
	dev.feed([]byte(`{"a":"much too long to fit"`))

	select {
	case <-overflowed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for overflow callback")
	}
	// give the read loop a moment to act on the still-over-cap buffer
	time.Sleep(50 * time.Millisecond)
	if s.IsOpen() {
		t.Fatal("expected stream to close after sustained overflow")
	}
	if s.LastError() != ErrMaxReadBufferSizeExceeded {
		t.Fatalf("last error = %v, want ErrMaxReadBufferSizeExceeded", s.LastError())
	}
}

// TestStream05 checks that raising the cap inside the overflow listener
// keeps the stream open.
func TestStream05(t *testing.T) {
	s := NewStream(true)
	s.SetReadBufferSize(4)
	raised := make(chan struct{}, 1)
	s.SetOnReadBufferOverflow(func(extra int) {
		s.SetReadBufferSize(1024)
		select {
		case raised <- struct{}{}:
		default:
		}
	})
	dev := newMemDevice()
	s.SetDevice(dev)
	dev.feed([]byte(`{"a":"fits after raising the cap"`))

	select {
	case <-raised:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for overflow callback")
	}
	time.Sleep(50 * time.Millisecond)
	if !s.IsOpen() {
		t.Fatal("expected stream to remain open once the cap was raised")
	}
}

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

package transport

import (
	"os"
	"testing"
	"time"

	"github.com/qtproject/jsonstream/wire"
)

// TestPipe00 sends an object across one os.Pipe() and reads it back over
// another, exercising Send, the poller's write flush and its read append.
func TestPipe00(t *testing.T) {
	clientIn, serverOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	serverIn, clientOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	client := NewPipe()
	client.SetFiles(clientIn, clientOut)
	defer client.Close()

	server := NewPipe()
	ready := make(chan struct{}, 1)
	server.SetReadNotify(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	server.SetFiles(serverIn, serverOut)
	defer server.Close()

	obj := wire.NewObject()
	obj.Set("greeting", wire.String("hello"))
	val := wire.NewObjectValue(obj)

	if !client.Send(val, wire.Qbjs) {
		t.Fatalf("send failed: %v", client.LastError())
	}
	if !client.WaitForBytesWritten(time.Second) {
		t.Fatal("timed out waiting for bytes to flush to the pipe")
	}

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read notification")
	}
	if !server.MessageAvailable() {
		t.Fatal("expected a message to be available on the server side")
	}
	got := server.ReadMessage()
	if !got.Equal(val) {
		t.Fatalf("got %+v, want %+v", got, val)
	}
}

// TestPipe01 checks that Send on a Pipe with no write fd attached reports
// ErrPipeWriteAtEnd.
func TestPipe01(t *testing.T) {
	p := NewPipe()
	obj := wire.NewObjectValue(wire.NewObject())
	if p.Send(obj, wire.Qbjs) {
		t.Fatal("expected send to fail with no fds attached")
	}
	if p.LastError() != ErrPipeWriteAtEnd {
		t.Fatalf("last error = %v, want ErrPipeWriteAtEnd", p.LastError())
	}
}

// TestPipe02 checks that WaitForBytesWritten reports an empty write queue
// as drained, and that Close itself stops the poller goroutine cleanly.
func TestPipe02(t *testing.T) {
	in, out, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	p := NewPipe()
	p.SetFiles(in, out)
	if !p.WaitForBytesWritten(100 * time.Millisecond) {
		t.Fatal("expected an empty write queue to report drained immediately")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

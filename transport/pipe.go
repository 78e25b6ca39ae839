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
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/qtproject/jsonstream/framing"
	"github.com/qtproject/jsonstream/wire"
)

// Pipe offers the same send/receive contract as Stream but is driven by a
// pair of file descriptors rather than a single
// bidirectional Device. The read and write sides are polled for
// level-triggered readiness by a platform-specific poller (pipe_unix.go /
// pipe_other.go), in the idiom of protocol.FixedReader's single-pull-per-
// wakeup buffering.
type Pipe struct {
	mu sync.Mutex

	in  *os.File
	out *os.File

	buf      framing.MessageBuffer
	writeBuf bytes.Buffer

	lastError error

	onReadNotify  func()
	onWriteNotify func()

	stop chan struct{}
	done chan struct{}
}

// NewPipe creates a Pipe with no fds attached yet.
func NewPipe() *Pipe {
	p := &Pipe{buf: framing.NewSyncBuffer()}
	p.buf.SetOnMessageReady(func() {
		p.mu.Lock()
		fn := p.onReadNotify
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return p
}

// SetFds attaches the pipe to a pair of raw file descriptors (the read end
// and the write end) and starts the readiness poller.
func (p *Pipe) SetFds(inFd, outFd int) {
	p.SetFiles(os.NewFile(uintptr(inFd), "jsonstream-pipe-in"), os.NewFile(uintptr(outFd), "jsonstream-pipe-out"))
}

// SetFiles is the *os.File equivalent of SetFds, useful for tests built on
// os.Pipe().
func (p *Pipe) SetFiles(in, out *os.File) {
	p.mu.Lock()
	p.in = in
	p.out = out
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done
	p.mu.Unlock()
	go p.poll(stop, done)
}

// SetReadNotify installs the level-triggered read-ready callback.
func (p *Pipe) SetReadNotify(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReadNotify = fn
}

// SetWriteNotify installs the level-triggered write-ready callback, fired
// whenever the write side has drained its queue and can accept more.
func (p *Pipe) SetWriteNotify(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWriteNotify = fn
}

// MessageAvailable reports whether a complete message is buffered.
func (p *Pipe) MessageAvailable() bool {
	return p.buf.MessageAvailable()
}

// ReadMessage returns and removes the next buffered message.
func (p *Pipe) ReadMessage() wire.Value {
	return p.buf.ReadMessage()
}

// LastError returns the most recent send/receive failure.
func (p *Pipe) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Send encodes obj and queues it for the write side; the poller flushes it
// as the fd becomes writable.
func (p *Pipe) Send(obj wire.Value, format wire.Format) bool {
	encoded, err := wire.Encode(obj, format)
	if err != nil {
		p.mu.Lock()
		p.lastError = ErrPipeWriteFailed
		p.mu.Unlock()
		return false
	}
	p.mu.Lock()
	if p.out == nil {
		p.lastError = ErrPipeWriteAtEnd
		p.mu.Unlock()
		return false
	}
	p.writeBuf.Write(encoded)
	p.mu.Unlock()
	return true
}

// WaitForBytesWritten blocks until the outbound queue drains or timeout
// elapses, whichever comes first, returning true iff it drained.
func (p *Pipe) WaitForBytesWritten(timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		empty := p.writeBuf.Len() == 0
		p.mu.Unlock()
		if empty {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

// Close stops the poller and closes both fds.
func (p *Pipe) Close() error {
	p.mu.Lock()
	stop := p.stop
	in, out := p.in, p.out
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-p.done
	}
	var err error
	if in != nil {
		if e := in.Close(); e != nil {
			err = e
		}
	}
	if out != nil && out != in {
		if e := out.Close(); e != nil {
			err = e
		}
	}
	return err
}

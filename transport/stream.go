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
	"sync"

	"github.com/qtproject/jsonstream/framing"
	"github.com/qtproject/jsonstream/wire"
)

// Stream wraps a Device with a framing.Buffer and the wire codec.
// Send and the setters take s.mu; the framing buffer is guarded only when
// the Stream is built with NewStream(true), and the buffer-overflow
// listener is called without s.mu held.
type Stream struct {
	mu sync.Mutex

	device Device
	buf    framing.MessageBuffer

	outFormat wire.Format

	readBufferSize  int
	writeBufferSize int
	queuedBytes     int

	lastError error
	open      bool

	onReadyRead          func()
	onBytesWritten       func(n int)
	onReadBufferOverflow func(extra int)
	onClosed             func()
}

// NewStream creates a Stream with no device attached yet. threadSafe
// selects between an unsynchronized framing.Buffer and a mutex-guarded
// framing.SyncBuffer. This "thread protection via a boolean"
// design note: use true whenever SetDevice's read pump runs on a different
// goroutine than the one calling MessageAvailable/ReadMessage.
func NewStream(threadSafe bool) *Stream {
	var buf framing.MessageBuffer
	if threadSafe {
		buf = framing.NewSyncBuffer()
	} else {
		buf = framing.NewBuffer()
	}
	s := &Stream{buf: buf}
	buf.SetOnMessageReady(func() {
		s.mu.Lock()
		fn := s.onReadyRead
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return s
}

// SetOnReadyReadMessage installs the ready_read_message callback.
func (s *Stream) SetOnReadyReadMessage(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReadyRead = fn
}

// SetOnBytesWritten installs the bytes_written callback.
func (s *Stream) SetOnBytesWritten(fn func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBytesWritten = fn
}

// SetOnReadBufferOverflow installs the read_buffer_overflow callback. The
// listener may call SetReadBufferSize from within it to raise the cap
// if the buffer is still over the limit once the callback
// returns, Stream closes the device.
func (s *Stream) SetOnReadBufferOverflow(fn func(extra int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReadBufferOverflow = fn
}

// SetOnClosed installs a callback fired once the read pump observes the
// device has disconnected (a read error or EOF). Not part of Stream's
// LastError taxonomy - callers that need to react to a disconnect (e.g.
// endpoint.Connection's auto-reconnect) hook this instead.
func (s *Stream) SetOnClosed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClosed = fn
}

// SetDevice attaches device and starts the read pump goroutine. Any
// previous device is left untouched (the caller is responsible for closing
// it first if needed).
func (s *Stream) SetDevice(device Device) {
	s.mu.Lock()
	s.device = device
	s.open = device != nil
	s.mu.Unlock()
	if device != nil {
		go s.readLoop(device)
	}
}

// Device returns the currently attached device, or nil.
func (s *Stream) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// IsOpen reports whether a device is attached and hasn't errored out.
func (s *Stream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// AtEnd reports whether the stream has no device and no unread messages.
func (s *Stream) AtEnd() bool {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	return !open && !s.buf.MessageAvailable()
}

// LastError returns the most recent Send/read failure.
func (s *Stream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// SetReadBufferSize sets the read-buffer cap; 0 means unlimited.
func (s *Stream) SetReadBufferSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readBufferSize = n
}

// SetWriteBufferSize sets the write-buffer cap; 0 means unlimited.
func (s *Stream) SetWriteBufferSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeBufferSize = n
}

// MessageAvailable reports whether a complete message is buffered.
func (s *Stream) MessageAvailable() bool {
	return s.buf.MessageAvailable()
}

// ReadMessage returns and removes the next buffered message.
func (s *Stream) ReadMessage() wire.Value {
	return s.buf.ReadMessage()
}

// Send encodes obj in the stream's outbound format (committing Undefined
// to Qbjs on the very first send) and writes it. It
// returns false, with LastError set, if the stream isn't open, if the
// write-buffer cap would be exceeded, or if the underlying write fails or
// short-writes.
func (s *Stream) Send(obj wire.Value) bool {
	s.mu.Lock()
	if !s.open || s.device == nil {
		s.lastError = ErrWriteFailedNoConnection
		s.mu.Unlock()
		return false
	}
	if s.outFormat == wire.Undefined {
		s.outFormat = wire.Qbjs
	}
	format := s.outFormat
	s.mu.Unlock()

	encoded, err := wire.Encode(obj, format)
	if err != nil {
		s.mu.Lock()
		s.lastError = ErrWriteFailed
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	if s.writeBufferSize > 0 && s.queuedBytes+len(encoded) > s.writeBufferSize {
		s.lastError = ErrMaxWriteBufferSizeExceeded
		s.mu.Unlock()
		return false
	}
	s.queuedBytes += len(encoded)
	device := s.device
	s.mu.Unlock()

	n, err := device.Write(encoded)

	s.mu.Lock()
	s.queuedBytes -= len(encoded)
	if err != nil {
		s.lastError = ErrWriteFailed
		s.mu.Unlock()
		return false
	}
	if n < len(encoded) {
		s.lastError = ErrWriteFailedReturnedZero
		s.mu.Unlock()
		return false
	}
	s.lastError = nil
	onBytesWritten := s.onBytesWritten
	s.mu.Unlock()

	if onBytesWritten != nil {
		onBytesWritten(n)
	}
	return true
}

// Close closes the attached device; the read pump observes the closed
// device on its next Read and exits on its own. Deliberately does not wait
// for the pump: Close is reachable from inside the pump's own callback
// chain (a Session rejecting authorization mid-delivery), where waiting
// would deadlock. A no-op if no device is attached.
func (s *Stream) Close() error {
	s.mu.Lock()
	device := s.device
	s.open = false
	s.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Close()
}

// SetOutboundFormat pins the outbound format explicitly, bypassing the
// Undefined-to-Qbjs commit. Used by Connection when the caller configured
// a Format before connecting.
func (s *Stream) SetOutboundFormat(format wire.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outFormat = format
}

func (s *Stream) readLoop(device Device) {
	tmp := make([]byte, 4096)
	for {
		n, err := device.Read(tmp)
		if n > 0 {
			s.appendAndCheckOverflow(tmp[:n])
		}
		if err != nil {
			// Disconnects aren't part of Stream's error taxonomy: they're
			// reported as a state transition by whatever owns this Stream
			// (endpoint.Connection, server.Session), not as LastError.
			s.mu.Lock()
			s.open = false
			onClosed := s.onClosed
			s.mu.Unlock()
			if onClosed != nil {
				onClosed()
			}
			return
		}
	}
}

func (s *Stream) appendAndCheckOverflow(data []byte) {
	s.buf.Append(data)

	s.mu.Lock()
	limit := s.readBufferSize
	s.mu.Unlock()
	if limit <= 0 {
		return
	}
	if s.buf.Buffered() <= limit || s.buf.MessageAvailable() {
		return
	}
	extra := s.buf.Buffered() - limit
	s.mu.Lock()
	listener := s.onReadBufferOverflow
	s.mu.Unlock()
	if listener != nil {
		listener(extra)
	}

	s.mu.Lock()
	limit = s.readBufferSize
	s.mu.Unlock()
	if limit > 0 && s.buf.Buffered() > limit && !s.buf.MessageAvailable() {
		s.mu.Lock()
		device := s.device
		s.open = false
		s.lastError = ErrMaxReadBufferSizeExceeded
		s.mu.Unlock()
		if device != nil {
			device.Close()
		}
	}
}

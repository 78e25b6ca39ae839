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

package framing

import (
	"io"
	"sync"

	"github.com/qtproject/jsonstream/wire"
)

// MessageBuffer is the contract shared by Buffer and SyncBuffer, so
// transport.Stream can be built against either implementation.
type MessageBuffer interface {
	Append(data []byte) int
	AppendFromReader(r io.Reader, max int) (int, error)
	Format() wire.Format
	MessageAvailable() bool
	ReadMessage() wire.Value
	Clear()
	SetEnabled(enabled bool)
	SetOnMessageReady(fn func())
	// Buffered returns the number of raw bytes still held in the buffer:
	// the next, still-incomplete message plus any complete messages waiting
	// behind the pending one (used for the read-buffer cap).
	Buffered() int
}

var (
	_ MessageBuffer = (*Buffer)(nil)
	_ MessageBuffer = (*SyncBuffer)(nil)
)

// SyncBuffer wraps a Buffer with a mutex so that Append (typically called
// from an I/O goroutine) and MessageAvailable/ReadMessage (typically called
// from a user goroutine) can run concurrently. Following the design
// note, the choice between a plain Buffer and a SyncBuffer is made once,
// at construction, rather than by branching on a flag inside every method.
type SyncBuffer struct {
	mu  sync.Mutex
	buf *Buffer
}

// NewSyncBuffer creates an empty, enabled, mutex-guarded Buffer.
func NewSyncBuffer() *SyncBuffer {
	return &SyncBuffer{buf: NewBuffer()}
}

func (s *SyncBuffer) Append(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Append(data)
}

func (s *SyncBuffer) AppendFromReader(r io.Reader, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.AppendFromReader(r, max)
}

func (s *SyncBuffer) Format() wire.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Format()
}

func (s *SyncBuffer) MessageAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.MessageAvailable()
}

func (s *SyncBuffer) ReadMessage() wire.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.ReadMessage()
}

func (s *SyncBuffer) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Buffered()
}

func (s *SyncBuffer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
}

func (s *SyncBuffer) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.SetEnabled(enabled)
}

// SetOnMessageReady installs the callback. The callback itself is invoked
// without the mutex held (Buffer.notifyIfReady runs inside the locked
// Append call, so a callback that calls back into the SyncBuffer would
// deadlock) - callers must treat it the same way Stream treats
// ready_read_message: safe to call MessageAvailable/ReadMessage from it,
// since Go mutexes are not reentrant the callback must not be invoked
// while still holding s.mu. To honor that, the wrapped callback releases
// s.mu around the call to fn and re-acquires it before returning into the
// locked Append.
func (s *SyncBuffer) SetOnMessageReady(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		s.buf.SetOnMessageReady(nil)
		return
	}
	s.buf.SetOnMessageReady(func() {
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	})
}

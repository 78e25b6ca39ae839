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

// Package framing extracts discrete JSON objects from a byte stream under
// any of the six wire encodings, auto-detecting the inbound format from the
// first bytes received.
package framing

import (
	"bytes"
	"io"

	"github.com/qtproject/jsonstream/wire"
)

// parseState is the brace/string counting state used by the text-format
// scanner.
type parseState int

const (
	stateNormal parseState = iota
	stateInString
	stateInBackslash
)

// Buffer is an append-only byte buffer that extracts whole JSON objects, one
// wire format at a time, auto-detecting that format from the first 1-4
// bytes received. It holds at most one parsed-but-unread object at a time:
// once a message is latched into pending, scanning stops and does not
// resume until ReadMessage consumes it, so a peer that keeps sending
// complete-but-unread objects still has its raw, not-yet-parsed bytes
// counted by Buffered(). It is not safe for concurrent use; wrap it in
// SyncBuffer for cross-goroutine access.
type Buffer struct {
	format   wire.Format
	buf      []byte
	scanPos  int
	state    parseState
	depth    int
	msgStart int

	hasPending bool
	pending    wire.Value

	enabled bool
	busy    bool
	notify  func()
}

// NewBuffer creates an empty, enabled Buffer.
func NewBuffer() *Buffer {
	return &Buffer{enabled: true}
}

// SetOnMessageReady installs the callback invoked at most once per Append
// call while at least one full message became newly available. The
// callback is never invoked re-entrantly: a call arriving while a previous
// one is still executing is suppressed.
func (b *Buffer) SetOnMessageReady(fn func()) {
	b.notify = fn
}

// SetEnabled enables or disables the message-ready notification. Parsing
// still proceeds while disabled; only the callback is suppressed.
func (b *Buffer) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// Format returns the format detected from the inbound stream, or
// wire.Undefined if fewer than 4 bytes have been seen yet.
func (b *Buffer) Format() wire.Format {
	return b.format
}

// Clear discards all buffered bytes, the pending message and parser state,
// including the detected format.
func (b *Buffer) Clear() {
	b.format = wire.Undefined
	b.buf = nil
	b.scanPos = 0
	b.state = stateNormal
	b.depth = 0
	b.msgStart = 0
	b.hasPending = false
	b.pending = wire.Value{}
}

// Append appends data to the buffer and advances parsing, returning the
// number of bytes appended. At most one message-ready notification fires
// for this call; if a message is already pending and unread, parsing does
// not advance any further (the latch - see Buffer's doc comment).
func (b *Buffer) Append(data []byte) int {
	before := b.hasPending
	b.buf = append(b.buf, data...)
	b.advance()
	b.notifyIfReady(before)
	return len(data)
}

// AppendFromReader reads at most max bytes from r in a single Read call and
// appends them, in the idiom of protocol.FixedReader's single-pull-per-call
// buffering. max defaults to 1024 when <= 0.
func (b *Buffer) AppendFromReader(r io.Reader, max int) (int, error) {
	if max <= 0 {
		max = 1024
	}
	tmp := make([]byte, max)
	n, err := r.Read(tmp)
	if n > 0 {
		b.Append(tmp[:n])
	}
	return n, err
}

// MessageAvailable advances parsing as needed and reports whether a
// complete object is buffered.
func (b *Buffer) MessageAvailable() bool {
	b.advance()
	return b.hasPending
}

// ReadMessage returns and removes the pending whole object, if any. If none
// is available, or the frame that was parsed into it was malformed, it
// returns an empty object (framing errors are recovered locally, not
// surfaced as a read_message error). Consuming the pending object lifts the
// latch, letting advance scan for the next one.
func (b *Buffer) ReadMessage() wire.Value {
	b.advance()
	if !b.hasPending {
		return emptyObject()
	}
	v := b.pending
	b.pending = wire.Value{}
	b.hasPending = false
	return v
}

// Buffered returns the number of raw bytes still held in the buffer, not
// yet extracted into pending. Bytes belonging to a message already
// extracted into pending are not counted (it lives there as a decoded
// value, not raw bytes); bytes belonging to a further complete message
// that arrived while pending is still unread ARE counted here, since
// advance does not extract past the latch - this is what lets Stream's
// read-buffer cap engage against a peer that keeps sending complete
// objects faster than they're read.
func (b *Buffer) Buffered() int {
	return len(b.buf)
}

func emptyObject() wire.Value {
	return wire.NewObjectValue(wire.NewObject())
}

func (b *Buffer) notifyIfReady(before bool) {
	if !b.enabled || b.notify == nil || b.busy {
		return
	}
	if before || !b.hasPending {
		return
	}
	b.busy = true
	b.notify()
	b.busy = false
}

// advance runs the detector (if the format is still undetermined) and then
// the format-specific scanner. It extracts at most one message per call:
// if pending already holds an unread object, advance returns immediately
// without looking at any newly buffered bytes.
func (b *Buffer) advance() {
	if b.hasPending {
		return
	}
	if b.format == wire.Undefined {
		format, skip, ok := detectFormat(b.buf)
		if !ok {
			return
		}
		b.format = format
		if skip > 0 {
			b.buf = b.buf[skip:]
		}
	}
	switch b.format {
	case wire.Qbjs:
		b.scanBinary(12, func(data []byte) (int, bool) {
			if len(data) < 12 {
				return 0, false
			}
			length := le32(data[8:12])
			total := 8 + int(length)
			if length < 4 || len(data) < total {
				return 0, false
			}
			return total, true
		})
	case wire.Bson:
		b.scanBinary(8, func(data []byte) (int, bool) {
			if len(data) < 8 {
				return 0, false
			}
			length := le32(data[4:8])
			total := 4 + int(length)
			if length < 4 || len(data) < total {
				return 0, false
			}
			return total, true
		})
	default:
		b.scanText()
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// scanBinary extracts one fixed-header frame (Qbjs/Bson) if the buffer
// holds a complete one, latching it into pending and stopping - it never
// looks past the first frame, even if more complete frames already sit in
// the buffer. minHeader is the smallest number of bytes frameLen needs to
// even attempt a length computation.
func (b *Buffer) scanBinary(minHeader int, frameLen func([]byte) (int, bool)) {
	if len(b.buf) < minHeader {
		return
	}
	total, ok := frameLen(b.buf)
	if !ok {
		return
	}
	b.emit(b.buf[:total])
	b.buf = b.buf[total:]
}

// scanText runs the brace/string-counting state machine over the code
// units of the configured text encoding, looking for exactly one complete
// object, skipping any leading interstitial JSON whitespace or non-object
// top-level JSON (preserved, not rejected) along the way. It stops and
// latches pending the instant that one object closes, leaving any further
// bytes already in the buffer - including further complete objects -
// untouched until the latch is lifted by ReadMessage.
func (b *Buffer) scanText() {
	size, bigEndian := unitLayout(b.format)
	pos := b.scanPos
	for {
		u, ok := readUnit(b.buf, pos, size, bigEndian)
		if !ok {
			b.scanPos = pos
			return
		}
		switch b.state {
		case stateNormal:
			switch u {
			case '{':
				if b.depth == 0 {
					b.msgStart = pos
				}
				b.depth++
			case '}':
				if b.depth > 0 {
					b.depth--
					if b.depth == 0 {
						end := pos + size
						b.emit(b.buf[b.msgStart:end])
						b.buf = b.buf[end:]
						b.scanPos = 0
						b.msgStart = 0
						return
					}
				}
			case '"':
				b.state = stateInString
			}
		case stateInString:
			switch u {
			case '"':
				b.state = stateNormal
			case '\\':
				b.state = stateInBackslash
			}
		case stateInBackslash:
			b.state = stateInString
		}
		pos += size
	}
}

// emit decodes one complete frame and latches it into pending, or latches
// an empty object if decoding failed (malformed payload is tolerated, not
// fatal).
func (b *Buffer) emit(frame []byte) {
	v, err := wire.Decode(frame, b.format)
	if err != nil {
		b.pending = emptyObject()
	} else {
		b.pending = v
	}
	b.hasPending = true
}

func unitLayout(format wire.Format) (size int, bigEndian bool) {
	switch format {
	case wire.Utf16BE:
		return 2, true
	case wire.Utf16LE:
		return 2, false
	case wire.Utf32BE:
		return 4, true
	case wire.Utf32LE:
		return 4, false
	default:
		return 1, false
	}
}

func readUnit(b []byte, off, size int, bigEndian bool) (uint32, bool) {
	if off+size > len(b) {
		return 0, false
	}
	switch size {
	case 1:
		return uint32(b[off]), true
	case 2:
		if bigEndian {
			return uint32(b[off])<<8 | uint32(b[off+1]), true
		}
		return uint32(b[off+1])<<8 | uint32(b[off]), true
	default:
		if bigEndian {
			return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3]), true
		}
		return uint32(b[off+3])<<24 | uint32(b[off+2])<<16 | uint32(b[off+1])<<8 | uint32(b[off]), true
	}
}

// detectFormat applies the ordered detection rules: sentinel, Qbjs tag,
// BOM, zero-pattern heuristic, default Utf8. skip is the number of leading
// bytes to discard (a consumed BOM); ok is false while fewer than 4 bytes
// are buffered.
func detectFormat(buf []byte) (format wire.Format, skip int, ok bool) {
	if len(buf) < 4 {
		return wire.Undefined, 0, false
	}
	if bytes.Equal(buf[:4], wire.BsonSentinel[:]) {
		return wire.Bson, 0, true
	}
	if bytes.Equal(buf[:4], wire.QbjsTag[:]) {
		return wire.Qbjs, 0, true
	}
	switch {
	case buf[0] == 0xFF && buf[1] == 0xFE && buf[2] == 0x00 && buf[3] == 0x00:
		return wire.Utf32LE, 4, true
	case buf[0] == 0x00 && buf[1] == 0x00 && buf[2] == 0xFE && buf[3] == 0xFF:
		return wire.Utf32BE, 4, true
	case buf[0] == 0xFF && buf[1] == 0xFE:
		return wire.Utf16LE, 2, true
	case buf[0] == 0xFE && buf[1] == 0xFF:
		return wire.Utf16BE, 2, true
	case buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF:
		return wire.Utf8, 3, true
	}
	z := func(x byte) bool { return x == 0 }
	switch {
	case z(buf[0]) && !z(buf[1]) && z(buf[2]) && !z(buf[3]):
		return wire.Utf16BE, 0, true
	case !z(buf[0]) && z(buf[1]) && !z(buf[2]) && z(buf[3]):
		return wire.Utf16LE, 0, true
	case z(buf[0]) && z(buf[1]) && z(buf[2]) && !z(buf[3]):
		return wire.Utf32BE, 0, true
	case !z(buf[0]) && z(buf[1]) && z(buf[2]) && z(buf[3]):
		return wire.Utf32LE, 0, true
	}
	return wire.Utf8, 0, true
}

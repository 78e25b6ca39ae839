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
	"testing"

	"github.com/qtproject/jsonstream/wire"
)

func objWithA1() wire.Value {
	o := wire.NewObject()
	o.Set("a", wire.Number(1))
	return wire.NewObjectValue(o)
}

// TestBuffer00 covers a bare UTF-8 object being
// detected and extracted whole.
func TestBuffer00(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte(`{"a":1}`))
	if !b.MessageAvailable() {
		t.Fatal("expected a message to be available")
	}
	if b.Format() != wire.Utf8 {
		t.Fatalf("format = %v, want Utf8", b.Format())
	}
	got := b.ReadMessage()
	if !got.Equal(objWithA1()) {
		t.Fatalf("got %+v, want {a:1}", got)
	}
	if b.MessageAvailable() {
		t.Fatal("no further message expected")
	}
}

// TestBuffer01 checks a Qbjs-framed object round-trips.
func TestBuffer01(t *testing.T) {
	o := wire.NewObject()
	o.Set("x", wire.String("hi"))
	v := wire.NewObjectValue(o)
	frame, err := wire.Encode(v, wire.Qbjs)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuffer()
	b.Append(frame)
	if b.Format() != wire.Qbjs {
		t.Fatalf("format = %v, want Qbjs", b.Format())
	}
	got := b.ReadMessage()
	if !got.Equal(v) {
		t.Fatalf("got %+v, want %+v", got, v)
	}
}

// TestBuffer02 is property 2: Bson frames round-trip too.
func TestBuffer02(t *testing.T) {
	o := wire.NewObject()
	o.Set("x", wire.Bool(true))
	v := wire.NewObjectValue(o)
	frame, err := wire.Encode(v, wire.Bson)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuffer()
	b.Append(frame)
	if b.Format() != wire.Bson {
		t.Fatalf("format = %v, want Bson", b.Format())
	}
	got := b.ReadMessage()
	if !got.Equal(v) {
		t.Fatalf("got %+v, want %+v", got, v)
	}
}

// TestBuffer03 is property 1: concatenating several UTF-8 encodings with
// whitespace between them extracts them in order.
func TestBuffer03(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte(`{"n":1}  {"n":2}` + "\n" + `{"n":3}`))
	for _, want := range []float64{1, 2, 3} {
		if !b.MessageAvailable() {
			t.Fatalf("expected message for n=%v", want)
		}
		got := b.ReadMessage()
		n, ok := got.Object.Get("n")
		if !ok || n.Number != want {
			t.Fatalf("got %+v, want n=%v", got, want)
		}
	}
	if b.MessageAvailable() {
		t.Fatal("no further message expected")
	}
}

// TestBuffer04 is property 4: chunking invariance - splitting the same
// byte stream across arbitrary Append calls must yield the same objects.
func TestBuffer04(t *testing.T) {
	data := []byte(`{"n":1}{"n":2}{"n":3}`)
	for _, chunkSize := range []int{1, 2, 3, 5, 100} {
		b := NewBuffer()
		for i := 0; i < len(data); i += chunkSize {
			end := i + chunkSize
			if end > len(data) {
				end = len(data)
			}
			b.Append(data[i:end])
		}
		for _, want := range []float64{1, 2, 3} {
			if !b.MessageAvailable() {
				t.Fatalf("chunkSize=%d: expected message for n=%v", chunkSize, want)
			}
			got := b.ReadMessage()
			n, ok := got.Object.Get("n")
			if !ok || n.Number != want {
				t.Fatalf("chunkSize=%d: got %+v, want n=%v", chunkSize, got, want)
			}
		}
	}
}

// TestBuffer05 is property 3: a standard UTF-16BE BOM is tolerated and the
// detected format still matches.
func TestBuffer05(t *testing.T) {
	o := wire.NewObject()
	o.Set("a", wire.Number(1))
	v := wire.NewObjectValue(o)
	payload, err := wire.FromUTF8([]byte(`{"a":1}`), wire.Utf16BE)
	if err != nil {
		t.Fatal(err)
	}
	withBOM := append([]byte{0xFE, 0xFF}, payload...)
	b := NewBuffer()
	b.Append(withBOM)
	if b.Format() != wire.Utf16BE {
		t.Fatalf("format = %v, want Utf16BE", b.Format())
	}
	got := b.ReadMessage()
	if !got.Equal(v) {
		t.Fatalf("got %+v, want %+v", got, v)
	}
}

// TestBuffer06 exercises the zero-pattern heuristic for Utf32LE without a
// BOM.
func TestBuffer06(t *testing.T) {
	payload, err := wire.FromUTF8([]byte(`{"a":1}`), wire.Utf32LE)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuffer()
	b.Append(payload)
	if b.Format() != wire.Utf32LE {
		t.Fatalf("format = %v, want Utf32LE", b.Format())
	}
}

// TestBuffer07 checks that a non-object top-level value is discarded
// silently, and parsing resumes at the
// next object.
func TestBuffer07(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte(`[1,2,3]{"a":1}`))
	if !b.MessageAvailable() {
		t.Fatal("expected the trailing object to be extracted")
	}
	got := b.ReadMessage()
	if !got.Equal(objWithA1()) {
		t.Fatalf("got %+v, want {a:1}", got)
	}
}

// TestBuffer08 checks that an unterminated object leaves nothing available
// until the rest arrives.
func TestBuffer08(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte(`{"a":1`))
	if b.MessageAvailable() {
		t.Fatal("message should not be available yet")
	}
	b.Append([]byte(`}`))
	if !b.MessageAvailable() {
		t.Fatal("message should be available now")
	}
}

// TestBuffer09 checks the message-ready notification fires at most once per
// Append call even when it completes several messages, and is suppressed
// while disabled.
func TestBuffer09(t *testing.T) {
	b := NewBuffer()
	calls := 0
	b.SetOnMessageReady(func() { calls++ })
	b.Append([]byte(`{"n":1}{"n":2}{"n":3}`))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	b.Clear()
	calls = 0
	b.SetEnabled(false)
	b.Append([]byte(`{"n":1}`))
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 while disabled", calls)
	}
}

// TestBuffer10 checks Clear resets detected format and parser state.
func TestBuffer10(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte(`{"a":1}`))
	b.Clear()
	if b.Format() != wire.Undefined {
		t.Fatalf("format after Clear = %v, want Undefined", b.Format())
	}
	if b.MessageAvailable() {
		t.Fatal("no message expected after Clear")
	}
}

// TestBuffer11 checks a malformed payload yields an empty object and
// parsing continues with the next frame.
func TestBuffer11(t *testing.T) {
	o := wire.NewObject()
	o.Set("ok", wire.Bool(true))
	v := wire.NewObjectValue(o)
	b := NewBuffer()
	// A syntactically balanced but invalid JSON object: the scanner still
	// matches braces, but decoding must fail.
	b.Append([]byte(`{"a":}`))
	b.Append([]byte(`{"ok":true}`))
	first := b.ReadMessage()
	if first.Object.Len() != 0 {
		t.Fatalf("expected empty object for malformed frame, got %+v", first)
	}
	second := b.ReadMessage()
	if !second.Equal(v) {
		t.Fatalf("got %+v, want %+v", second, v)
	}
}

// TestBuffer12 checks the single-message latch: a second, third, ...
// complete object that arrives while the first is still unread must not be
// parsed out of the buffer - it has to sit there as raw bytes, so
// Buffered() keeps counting it instead of reporting 0 once one message is
// extracted.
func TestBuffer12(t *testing.T) {
	b := NewBuffer()
	one := []byte(`{"n":1}`)
	two := []byte(`{"n":2}`)
	three := []byte(`{"n":3}`)
	b.Append(append(append(append([]byte(nil), one...), two...), three...))

	if !b.MessageAvailable() {
		t.Fatal("expected the first message to be available")
	}
	if got, want := b.Buffered(), len(two)+len(three); got != want {
		t.Fatalf("Buffered() = %d while first message is unread, want %d (second+third message's raw bytes)", got, want)
	}

	first := b.ReadMessage()
	n, ok := first.Object.Get("n")
	if !ok || n.Number != 1 {
		t.Fatalf("got %+v, want n=1", first)
	}
	if !b.MessageAvailable() {
		t.Fatal("expected the second message to become available after the first was read")
	}
	if got, want := b.Buffered(), len(three); got != want {
		t.Fatalf("Buffered() = %d after draining the second message's slot, want %d", got, want)
	}
}

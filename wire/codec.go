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

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// QbjsTag is the 4-byte tag at the start of every Qbjs frame, the ASCII
// bytes "qbjs" of Qt's binary-JSON BinaryFormatTag. The binary-JSON body
// format itself is proprietary and not reimplemented here; only the outer
// framing contract (tag, then a little-endian u32 payload length at byte
// offset 8) is preserved, and the payload carried inside it is this
// module's own encoding of wire.Value.
var QbjsTag = [4]byte{'q', 'b', 'j', 's'}

// BsonSentinel is the literal ASCII marker FramingBuffer looks for to
// recognize a Bson-framed message.
var BsonSentinel = [4]byte{'b', 's', 'o', 'n'}

// Encode renders v on the wire in format. Undefined is not a legal encode
// target; callers (Codec, Stream) must commit to Qbjs first.
func Encode(v Value, format Format) ([]byte, error) {
	switch format {
	case Undefined:
		return nil, errors.New("wire: cannot encode with Undefined format")
	case Utf8, Utf16BE, Utf16LE, Utf32BE, Utf32LE:
		text, err := EncodeText(v)
		if err != nil {
			return nil, err
		}
		return FromUTF8(text, format)
	case Qbjs:
		return encodeQbjs(v)
	case Bson:
		return encodeBson(v)
	default:
		return nil, fmt.Errorf("wire: unknown format %v", format)
	}
}

// Decode parses a single complete frame (the bytes FramingBuffer has
// already isolated: for text formats with any BOM already stripped, for
// Qbjs and Bson the whole frame including its header) back into a Value.
func Decode(data []byte, format Format) (Value, error) {
	switch format {
	case Utf8, Utf16BE, Utf16LE, Utf32BE, Utf32LE:
		text, err := ToUTF8(data, format)
		if err != nil {
			return Value{}, err
		}
		return ParseMessage(text)
	case Qbjs:
		return decodeQbjs(data)
	case Bson:
		return decodeBson(data)
	default:
		return Value{}, fmt.Errorf("wire: unknown format %v", format)
	}
}

// encodeQbjs writes tag(4) + reserved(4) + lengthField(4, LE) + payload.
// The u32 at byte offset 8 gives the full frame size minus the 8-byte
// tag+reserved header, i.e. it covers itself plus the payload (symmetric
// with Bson's self-inclusive document length below), so the frame is
// length+8 bytes and the length field is readable once 12 bytes are
// buffered.
func encodeQbjs(v Value) ([]byte, error) {
	payload, err := EncodeText(v)
	if err != nil {
		return nil, err
	}
	lengthField := uint32(4 + len(payload))
	buf := bytes.NewBuffer(make([]byte, 0, 8+int(lengthField)))
	buf.Write(QbjsTag[:])
	buf.Write([]byte{0, 0, 0, 0})
	if err := binary.Write(buf, binary.LittleEndian, lengthField); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeQbjs(data []byte) (Value, error) {
	if len(data) < 12 {
		return Value{}, errors.New("wire: qbjs frame too short")
	}
	lengthField := binary.LittleEndian.Uint32(data[8:12])
	total := 8 + int(lengthField)
	if lengthField < 4 || len(data) < total {
		return Value{}, errors.New("wire: qbjs frame truncated")
	}
	return ParseMessage(data[12:total])
}

// encodeBson writes the "bson" sentinel followed by a document whose own
// first 4 bytes are its little-endian total length, the real BSON
// convention. The document body after that length field is this module's
// own compact encoding, not a full BSON document (see DESIGN.md).
func encodeBson(v Value) ([]byte, error) {
	payload, err := EncodeText(v)
	if err != nil {
		return nil, err
	}
	docLen := uint32(4 + len(payload))
	buf := bytes.NewBuffer(make([]byte, 0, 4+int(docLen)))
	buf.Write(BsonSentinel[:])
	if err := binary.Write(buf, binary.LittleEndian, docLen); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeBson(data []byte) (Value, error) {
	if len(data) < 8 {
		return Value{}, errors.New("wire: bson frame too short")
	}
	docLen := binary.LittleEndian.Uint32(data[4:8])
	if docLen < 4 || len(data) < 4+int(docLen) {
		return Value{}, errors.New("wire: bson frame truncated")
	}
	return ParseMessage(data[8 : 4+docLen])
}

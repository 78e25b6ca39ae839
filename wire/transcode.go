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
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// ToUTF8 decodes data, encoded per format, into UTF-8 text. data must not
// carry a BOM: FramingBuffer's format detector already consumed one if the
// peer sent it, per the wire contract that BOMs never appear mid-stream.
func ToUTF8(data []byte, format Format) ([]byte, error) {
	enc, err := textEncoding(format)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return data, nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("wire: decoding %s: %w", format, err)
	}
	return out, nil
}

// FromUTF8 encodes UTF-8 text as format. The result never carries a BOM:
// the golang.org/x/text encoders are built with IgnoreBOM and write none,
// and stripBOM drops a leading one should it appear (2 bytes for UTF-16,
// 4 bytes for UTF-32), to match the outbound wire contract: inbound BOMs
// are tolerated, outbound ones are not produced.
func FromUTF8(text []byte, format Format) ([]byte, error) {
	enc, err := textEncoding(format)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return text, nil
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), text)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s: %w", format, err)
	}
	return stripBOM(out, format), nil
}

func textEncoding(format Format) (encoding.Encoding, error) {
	switch format {
	case Utf8, Undefined:
		return nil, nil
	case Utf16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case Utf16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case Utf32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case Utf32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	default:
		return nil, fmt.Errorf("wire: format %s is not a text encoding", format)
	}
}

func stripBOM(out []byte, format Format) []byte {
	switch format {
	case Utf16BE, Utf16LE:
		if len(out) >= 2 && isBOM16(out, format) {
			return out[2:]
		}
	case Utf32BE, Utf32LE:
		if len(out) >= 4 && isBOM32(out, format) {
			return out[4:]
		}
	}
	return out
}

func isBOM16(b []byte, format Format) bool {
	if format == Utf16BE {
		return b[0] == 0xFE && b[1] == 0xFF
	}
	return b[0] == 0xFF && b[1] == 0xFE
}

func isBOM32(b []byte, format Format) bool {
	if format == Utf32BE {
		return b[0] == 0 && b[1] == 0 && b[2] == 0xFE && b[3] == 0xFF
	}
	return b[0] == 0xFF && b[1] == 0xFE && b[2] == 0 && b[3] == 0
}

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

// Format identifies the wire encoding of a message stream.
//
// Undefined is only legal as the declared outbound format before the first
// send (the codec then commits to Qbjs) or as the inbound state before the
// first byte has been classified.
type Format int

const (
	Undefined Format = iota
	Utf8
	Utf16BE
	Utf16LE
	Utf32BE
	Utf32LE
	Qbjs
	Bson
)

func (f Format) String() string {
	switch f {
	case Undefined:
		return "undefined"
	case Utf8:
		return "utf8"
	case Utf16BE:
		return "utf16be"
	case Utf16LE:
		return "utf16le"
	case Utf32BE:
		return "utf32be"
	case Utf32LE:
		return "utf32le"
	case Qbjs:
		return "qbjs"
	case Bson:
		return "bson"
	default:
		return "unknown"
	}
}

// IsText reports whether f is one of the UTF text encodings.
func (f Format) IsText() bool {
	switch f {
	case Utf8, Utf16BE, Utf16LE, Utf32BE, Utf32LE:
		return true
	default:
		return false
	}
}

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

// Package wire holds the JsonValue data model shared by every codec and
// framing component: an ordered, tagged-union JSON value plus the wire
// Format enum.
package wire

// Kind tags the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged union over the JSON value space. Object holds its
// members in the order they were parsed or constructed; Equal compares
// structurally, independent of object member order.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	String string
	Array  []Value
	Object *Object
}

// Member is one key/value pair of an Object, preserving insertion order.
type Member struct {
	Key   string
	Value Value
}

// Object is an ordered map<string, Value>. Use NewObject to construct one;
// the zero value is not ready for use.
type Object struct {
	members []Member
	index   map[string]int
}

// NewObject returns an empty, ready-to-use Object.
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Set inserts or replaces the value at key, preserving the position of an
// existing key and appending new keys at the end.
func (o *Object) Set(key string, v Value) {
	if i, ok := o.index[key]; ok {
		o.members[i].Value = v
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Get returns the value at key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.members[i].Value, true
}

// Delete removes key if present, shifting later members left by one.
func (o *Object) Delete(key string) {
	i, ok := o.index[key]
	if !ok {
		return
	}
	o.members = append(o.members[:i], o.members[i+1:]...)
	delete(o.index, key)
	for k, idx := range o.index {
		if idx > i {
			o.index[k] = idx - 1
		}
	}
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.members)
}

// Members returns the members in insertion order. The returned slice must
// not be mutated by the caller.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	return o.members
}

// Null returns the JSON null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a JSON boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number returns a JSON numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// String returns a JSON string value.
func String(s string) Value { return Value{Kind: KindString, String: s} }

// Array returns a JSON array value.
func Array(items []Value) Value { return Value{Kind: KindArray, Array: items} }

// NewObjectValue wraps an Object as a Value, allocating one if obj is nil.
func NewObjectValue(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}
	return Value{Kind: KindObject, Object: obj}
}

// IsObject reports whether v holds an Object.
func (v Value) IsObject() bool { return v.Kind == KindObject }

// Equal reports structural equality. Object member order does not affect
// equality; member sets and nested values must match exactly.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindNumber:
		return v.Number == other.Number
	case KindString:
		return v.String == other.String
	case KindArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.Object.Len() != other.Object.Len() {
			return false
		}
		for _, m := range v.Object.Members() {
			ov, ok := other.Object.Get(m.Key)
			if !ok || !m.Value.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

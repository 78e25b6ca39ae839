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

import "testing"

func TestObjectOrder00(t *testing.T) {
	o00 := NewObject()
	o00.Set("z", Number(1))
	o00.Set("a", Number(2))
	o00.Set("m", Number(3))
	keys := []string{}
	for _, m := range o00.Members() {
		keys = append(keys, m.Key)
	}
	if keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("Object did not preserve insertion order: %v", keys)
	}
}

func TestObjectReplace00(t *testing.T) {
	o00 := NewObject()
	o00.Set("a", Number(1))
	o00.Set("b", Number(2))
	o00.Set("a", Number(3))
	if o00.Len() != 2 {
		t.Fatalf("Replacing a key should not grow the object, got len %d", o00.Len())
	}
	v, ok := o00.Get("a")
	if !ok || v.Number != 3 {
		t.Errorf("Replace did not update value at existing key")
	}
	keys := []string{}
	for _, m := range o00.Members() {
		keys = append(keys, m.Key)
	}
	if keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Replace should not move the key's position, got %v", keys)
	}
}

func TestObjectDelete00(t *testing.T) {
	o00 := NewObject()
	o00.Set("a", Number(1))
	o00.Set("b", Number(2))
	o00.Set("c", Number(3))
	o00.Delete("b")
	if o00.Len() != 2 {
		t.Fatalf("Delete did not remove member, len %d", o00.Len())
	}
	if _, ok := o00.Get("b"); ok {
		t.Errorf("Deleted key still present")
	}
	v, ok := o00.Get("c")
	if !ok || v.Number != 3 {
		t.Errorf("Delete corrupted remaining member")
	}
}

func TestValueEqual00(t *testing.T) {
	o00a := NewObject()
	o00a.Set("a", Number(1))
	o00a.Set("b", String("x"))
	o00b := NewObject()
	// different insertion order, same members
	o00b.Set("b", String("x"))
	o00b.Set("a", Number(1))
	va := NewObjectValue(o00a)
	vb := NewObjectValue(o00b)
	if !va.Equal(vb) {
		t.Errorf("Equal should ignore member order")
	}
}

func TestValueEqual01(t *testing.T) {
	a00 := Array([]Value{Number(1), String("x"), Bool(true)})
	b00 := Array([]Value{Number(1), String("x"), Bool(true)})
	c00 := Array([]Value{Number(1), String("y"), Bool(true)})
	if !a00.Equal(b00) {
		t.Errorf("Equal arrays reported unequal")
	}
	if a00.Equal(c00) {
		t.Errorf("Unequal arrays reported equal")
	}
}

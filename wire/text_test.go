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

func TestParseTextOrder00(t *testing.T) {
	v00, err := ParseText([]byte(`{"z":1,"a":2,"m":[1,2,3]}`))
	if err != nil {
		t.Fatalf("Unexpected parse error: %v", err)
	}
	if !v00.IsObject() {
		t.Fatalf("Expected an object value")
	}
	keys := []string{}
	for _, m := range v00.Object.Members() {
		keys = append(keys, m.Key)
	}
	if keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("ParseText did not preserve member order: %v", keys)
	}
}

func TestParseMessageRejectsArray00(t *testing.T) {
	_, err := ParseMessage([]byte(`[1,2,3]`))
	if err != ErrNotAnObject {
		t.Errorf("Expected ErrNotAnObject for a top-level array, got %v", err)
	}
}

func TestParseMessageRejectsScalar00(t *testing.T) {
	_, err := ParseMessage([]byte(`42`))
	if err != ErrNotAnObject {
		t.Errorf("Expected ErrNotAnObject for a top-level scalar, got %v", err)
	}
}

func TestEncodeTextRoundtrip00(t *testing.T) {
	o00 := NewObject()
	o00.Set("name", String("t00"))
	o00.Set("count", Number(3))
	o00.Set("nested", NewObjectValue(func() *Object {
		n := NewObject()
		n.Set("ok", Bool(true))
		return n
	}()))
	v00 := NewObjectValue(o00)
	b00, err := EncodeText(v00)
	if err != nil {
		t.Fatalf("EncodeText failed: %v", err)
	}
	v01, err := ParseText(b00)
	if err != nil {
		t.Fatalf("Re-parsing encoded text failed: %v", err)
	}
	if !v00.Equal(v01) {
		t.Errorf("Roundtrip did not preserve value: %s", b00)
	}
}

func TestParseTextTrailingData00(t *testing.T) {
	_, err := ParseText([]byte(`{"a":1} garbage`))
	if err == nil {
		t.Errorf("Expected an error for trailing data after the JSON value")
	}
}

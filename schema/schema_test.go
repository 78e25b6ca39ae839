/* Copyright (c) 2019 Gregor Riepl
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

package schema

import (
	"testing"

	"github.com/qtproject/jsonstream/wire"
)

func mustLoad(t *testing.T, v *Validator, name, doc string) {
	t.Helper()
	if err := v.LoadFromData([]byte(doc), name); err != nil {
		t.Fatalf("LoadFromData(%s): %v", name, err)
	}
}

func mustParse(t *testing.T, doc string) Value {
	t.Helper()
	val, err := wire.ParseText([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return val
}

// TestSchema00 checks a basic type+required+minimum combination both
// accepts a valid object and rejects one missing a required property.
func TestSchema00(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "Point", `{
		"type": "object",
		"properties": {
			"x": {"type": "number", "required": true},
			"y": {"type": "number", "required": true, "minimum": 0}
		}
	}`)

	ok := mustParse(t, `{"x":1,"y":2}`)
	if err := v.ValidateSchema("Point", ok); err != nil {
		t.Fatalf("expected valid object to pass, got %v", err)
	}

	missing := mustParse(t, `{"x":1}`)
	if err := v.ValidateSchema("Point", missing); err == nil {
		t.Fatal("expected missing required property y to fail")
	}

	negative := mustParse(t, `{"x":1,"y":-1}`)
	if err := v.ValidateSchema("Point", negative); err == nil {
		t.Fatal("expected y below minimum to fail")
	}
}

// TestSchema01 covers idempotence: the same (schema, object) pair always
// returns the same verdict.
func TestSchema01(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "S", `{"type":"string","minLength":3}`)
	obj := mustParse(t, `"ab"`)
	err1 := v.validateNamed("S", obj)
	err2 := v.validateNamed("S", obj)
	if (err1 == nil) != (err2 == nil) {
		t.Fatalf("validation result changed between calls: %v vs %v", err1, err2)
	}
}

// TestSchema02 checks "extends" behaves as conjunction: validate(O,
// {"extends":[A,B]}) must succeed iff O validates against both A and B.
func TestSchema02(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "A", `{"type":"object","properties":{"a":{"type":"string","required":true}}}`)
	mustLoad(t, v, "B", `{"type":"object","properties":{"b":{"type":"number","required":true}}}`)
	mustLoad(t, v, "AB", `{"extends":["A","B"]}`)

	both := mustParse(t, `{"a":"x","b":1}`)
	if err := v.ValidateSchema("AB", both); err != nil {
		t.Fatalf("expected object satisfying both A and B to pass, got %v", err)
	}

	onlyA := mustParse(t, `{"a":"x"}`)
	if err := v.ValidateSchema("AB", onlyA); err == nil {
		t.Fatal("expected object missing B's required property to fail")
	}
}

// TestSchema03 checks a UniqueKeyMatcher indexed on "event" routes an
// object straight to the one schema whose properties.event pattern
// matches, without needing to name the schema explicitly.
func TestSchema03(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "Paint", `{
		"type": "object",
		"properties": {
			"event": {"type": "string", "required": true, "pattern": "PaintTextEvent"},
			"text": {"type": "string"},
			"font-size": {"type": "integer"}
		}
	}`)
	mustLoad(t, v, "Reset", `{
		"type": "object",
		"properties": {
			"event": {"type": "string", "required": true, "pattern": "ResetEvent"}
		}
	}`)
	v.SetNameMatcher(NewUniqueKeyMatcher("event"))

	obj := mustParse(t, `{"event":"PaintTextEvent","text":"hi","font-size":12}`)
	if err := v.ValidateSchema("", obj); err != nil {
		t.Fatalf("expected unique-key match against Paint to succeed, got %v", err)
	}
}

// TestSchema04 checks both the boolean and the "true"/"false" string
// forms of "required" are accepted and enforced.
func TestSchema04(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "S", `{
		"type":"object",
		"properties": {"x": {"type":"string", "required": "true"}}
	}`)
	missing := mustParse(t, `{}`)
	if err := v.ValidateSchema("S", missing); err == nil {
		t.Fatal("expected required=\"true\" string form to still enforce presence")
	}
	present := mustParse(t, `{"x":"hi"}`)
	if err := v.ValidateSchema("S", present); err != nil {
		t.Fatalf("expected present property to pass, got %v", err)
	}
}

// TestSchema05 checks additionalProperties:false rejects an unexpected
// member and additionalProperties:true (the default) allows it.
func TestSchema05(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "Strict", `{"type":"object","properties":{"a":{"type":"string"}},"additionalProperties":false}`)
	mustLoad(t, v, "Loose", `{"type":"object","properties":{"a":{"type":"string"}}}`)

	extra := mustParse(t, `{"a":"x","b":1}`)
	if err := v.ValidateSchema("Strict", extra); err == nil {
		t.Fatal("expected additionalProperties:false to reject unexpected member")
	}
	if err := v.ValidateSchema("Loose", extra); err != nil {
		t.Fatalf("expected default additionalProperties to allow it, got %v", err)
	}
}

// TestSchema06 checks enum and pattern keywords on object properties.
func TestSchema06(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "Paint", `{
		"type": "object",
		"properties": {
			"color": {"type": "string", "enum": ["red", "green", "blue"]},
			"brush": {"type": "string", "pattern": "^br-[0-9]+$"}
		}
	}`)
	if err := v.ValidateSchema("Paint", mustParse(t, `{"color":"red","brush":"br-7"}`)); err != nil {
		t.Fatalf("expected enumerated color and matching brush to pass, got %v", err)
	}
	if err := v.ValidateSchema("Paint", mustParse(t, `{"color":"purple"}`)); err == nil {
		t.Fatal("expected non-enumerated color to fail")
	}
	if err := v.ValidateSchema("Paint", mustParse(t, `{"brush":"pencil"}`)); err == nil {
		t.Fatal("expected brush not matching the pattern to fail")
	}
}

// TestSchema07 checks that ValidateSchema rejects a non-object top-level
// value outright - messages are objects, at the schema layer just as at
// the framing layer.
func TestSchema07(t *testing.T) {
	v := NewValidator()
	mustLoad(t, v, "Anything", `{}`)
	arr := mustParse(t, `[1,2,3]`)
	if err := v.ValidateSchema("Anything", arr); err == nil {
		t.Fatal("expected a non-object value to be rejected")
	}
}

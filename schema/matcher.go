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

import "github.com/qtproject/jsonstream/wire"

// NameMatcher is consulted by Validator.ValidateSchema (the name-less form)
// before the O(N) scan over every registered schema: it returns the names
// most likely to match obj, which are tried first and, on success, let
// ValidateSchema skip the full scan entirely.
type NameMatcher interface {
	Candidates(obj wire.Value) []string
}

// schemaObserver is implemented by name matchers that need to inspect a
// schema's raw JSON as it's loaded, rather than only the object being
// validated. Validator calls Observe for every Load* call when the
// installed matcher implements it.
type schemaObserver interface {
	Observe(name string, source wire.Value)
}

// PropertyNameMatcher matches by a named property carried directly on the
// object being validated, e.g. {"schema":"Paint", ...}: the property's
// string value names the schema to try first.
type PropertyNameMatcher struct {
	key string
}

// NewPropertyNameMatcher builds a PropertyNameMatcher reading obj[key] as
// the candidate schema name.
func NewPropertyNameMatcher(key string) *PropertyNameMatcher {
	return &PropertyNameMatcher{key: key}
}

// Candidates returns a single-element slice naming obj[key], or nil if
// that member is absent or not a string.
func (m *PropertyNameMatcher) Candidates(obj wire.Value) []string {
	if !obj.IsObject() {
		return nil
	}
	v, ok := obj.Object.Get(m.key)
	if !ok || v.Kind != wire.KindString {
		return nil
	}
	return []string{v.String}
}

var _ NameMatcher = (*PropertyNameMatcher)(nil)

// UniqueKeyMatcher pre-buckets every schema whose properties.<key> is
// declared as {type: "string", required: true, pattern: <literal>}: for an
// object carrying that literal string at <key>, the one indexed schema is
// tried first. If that schema rejects the object, ValidateSchema goes on
// to scan every other registered schema, so the object is not confined to
// its indexed schema. Schemas that don't shape their <key> property this
// way fall outside the index and are left to the Validator's residual scan.
type UniqueKeyMatcher struct {
	key       string
	byLiteral map[string]string
}

// NewUniqueKeyMatcher builds an index keyed on property name key.
func NewUniqueKeyMatcher(key string) *UniqueKeyMatcher {
	return &UniqueKeyMatcher{key: key, byLiteral: make(map[string]string)}
}

// Observe inspects source's properties.<key> member and, if it's shaped as
// a required literal-string-pattern check, adds name to the index.
func (m *UniqueKeyMatcher) Observe(name string, source wire.Value) {
	if !source.IsObject() {
		return
	}
	propsV, ok := source.Object.Get("properties")
	if !ok || !propsV.IsObject() {
		return
	}
	propV, ok := propsV.Object.Get(m.key)
	if !ok || !propV.IsObject() {
		return
	}
	if !isStringType(propV.Object) || !isRequired(propV.Object) {
		return
	}
	patV, ok := propV.Object.Get("pattern")
	if !ok || patV.Kind != wire.KindString {
		return
	}
	m.byLiteral[patV.String] = name
}

// Candidates returns the schema indexed under obj[key]'s literal value, if
// any.
func (m *UniqueKeyMatcher) Candidates(obj wire.Value) []string {
	if !obj.IsObject() {
		return nil
	}
	v, ok := obj.Object.Get(m.key)
	if !ok || v.Kind != wire.KindString {
		return nil
	}
	if name, ok := m.byLiteral[v.String]; ok {
		return []string{name}
	}
	return nil
}

func isStringType(prop *wire.Object) bool {
	t, ok := prop.Get("type")
	if !ok || t.Kind != wire.KindString {
		return false
	}
	return t.String == "string"
}

func isRequired(prop *wire.Object) bool {
	r, ok := prop.Get("required")
	if !ok {
		return false
	}
	switch r.Kind {
	case wire.KindBool:
		return r.Bool
	case wire.KindString:
		return r.String == "true"
	default:
		return false
	}
}

var _ NameMatcher = (*UniqueKeyMatcher)(nil)
var _ schemaObserver = (*UniqueKeyMatcher)(nil)

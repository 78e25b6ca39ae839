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
	"fmt"
	"math"
	"regexp"

	"github.com/qtproject/jsonstream/wire"
)

// Value is the module's JSON value model, re-exported so callers of
// schema don't need a second import for Validate's argument type.
type Value = wire.Value

// valueType is one member of the draft-3 "type" union; a schema may allow
// several via "type": [...].
type valueType int

const (
	typeAny valueType = 1 << iota
	typeString
	typeNumber
	typeInteger
	typeBoolean
	typeObject
	typeArray
	typeNull
)

// node is one compiled schema: a single struct per node rather than a
// chain of per-keyword check objects. Every supported keyword compiles
// into one or more fields below.
type node struct {
	name string // schema name this node was compiled for ("" for an inline/property node)

	types valueType // 0 means unconstrained (no "type" keyword)

	properties map[string]*node
	required   map[string]bool // property name -> required, read off each property node's own propRequired

	propRequired bool // this node's own "required" keyword, meaningful when it's used as a property schema

	additionalPropertiesAllowed bool // default true
	additionalProperties        *node

	items                  *node   // items: <schema> (applies to every element)
	itemsTuple             []*node // items: [<schema>, ...] (positional)
	additionalItemsAllowed bool    // default true
	additionalItems        *node

	hasMinimum, hasMaximum bool
	minimum, maximum       float64
	exclusiveMinimum       bool
	exclusiveMaximum       bool

	hasMinItems, hasMaxItems bool
	minItems, maxItems       int

	hasMinLength, hasMaxLength bool
	minLength, maxLength       int

	pattern *regexp.Regexp

	enum []Value

	hasDefault bool
	defaultVal Value

	hasDivisibleBy bool
	divisibleBy    float64

	extends []*node

	format string

	title, description string
}

func newNode() *node {
	return &node{additionalPropertiesAllowed: true, additionalItemsAllowed: true}
}

// compiler turns raw schema JSON (already parsed into the module's Value
// model) into a tree of *node, resolving $ref/extends name references
// against the same repository and caching compiled nodes so a schema
// referenced from several places is only compiled once.
type compiler struct {
	repo  map[string]Value
	cache map[string]*node
	log   func(format string, args ...interface{})
}

func newCompiler(repo map[string]Value, logf func(string, ...interface{})) *compiler {
	return &compiler{repo: repo, cache: make(map[string]*node), log: logf}
}

// compileNamed compiles (or returns the cached compilation of) the schema
// registered under name.
func (c *compiler) compileNamed(name string) (*node, error) {
	if n, ok := c.cache[name]; ok {
		return n, nil
	}
	raw, ok := c.repo[name]
	if !ok {
		return nil, fmt.Errorf("%w: schema %q not found", ErrInvalidSchemaLoading, name)
	}
	n := newNode()
	n.name = name
	// Insert before recursing so a self-referential $ref/extends resolves
	// to this (still-being-filled) node instead of recompiling forever.
	c.cache[name] = n
	if err := c.fill(raw, n); err != nil {
		return nil, err
	}
	return n, nil
}

// compile compiles an inline schema object (one with no repository name of
// its own, e.g. a "properties" entry or an "items" schema).
func (c *compiler) compile(raw Value) (*node, error) {
	n := newNode()
	if err := c.fill(raw, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *compiler) fill(raw Value, n *node) error {
	if !raw.IsObject() {
		return fmt.Errorf("%w: schema body must be a JSON object", ErrInvalidSchemaLoading)
	}
	obj := raw.Object

	if v, ok := obj.Get("type"); ok {
		t, err := parseTypeUnion(v)
		if err != nil {
			return err
		}
		n.types = t
	}
	if v, ok := obj.Get("required"); ok {
		req, stringForm, err := parseRequired(v)
		if err != nil {
			return err
		}
		n.propRequired = req
		if stringForm && c.log != nil {
			c.log("schema: %q: \"required\" given as a string %q, expected boolean", n.name, v.String)
		}
	}
	if v, ok := obj.Get("properties"); ok {
		if !v.IsObject() {
			return fmt.Errorf("%w: \"properties\" must be an object", ErrInvalidSchemaLoading)
		}
		n.properties = make(map[string]*node)
		n.required = make(map[string]bool)
		for _, m := range v.Object.Members() {
			child, err := c.compile(m.Value)
			if err != nil {
				return err
			}
			n.properties[m.Key] = child
			if child.propRequired {
				n.required[m.Key] = true
			}
		}
	}
	if v, ok := obj.Get("additionalProperties"); ok {
		switch v.Kind {
		case wire.KindBool:
			n.additionalPropertiesAllowed = v.Bool
		case wire.KindObject:
			child, err := c.compile(v)
			if err != nil {
				return err
			}
			n.additionalProperties = child
			n.additionalPropertiesAllowed = true
		default:
			return fmt.Errorf("%w: \"additionalProperties\" must be a boolean or schema object", ErrSchemaWrongParamType)
		}
	}
	if v, ok := obj.Get("items"); ok {
		switch v.Kind {
		case wire.KindObject:
			child, err := c.compile(v)
			if err != nil {
				return err
			}
			n.items = child
		case wire.KindArray:
			for _, item := range v.Array {
				child, err := c.compile(item)
				if err != nil {
					return err
				}
				n.itemsTuple = append(n.itemsTuple, child)
			}
		default:
			return fmt.Errorf("%w: \"items\" must be a schema object or array of schema objects", ErrSchemaWrongParamType)
		}
	}
	if v, ok := obj.Get("additionalItems"); ok {
		switch v.Kind {
		case wire.KindBool:
			n.additionalItemsAllowed = v.Bool
		case wire.KindObject:
			child, err := c.compile(v)
			if err != nil {
				return err
			}
			n.additionalItems = child
			n.additionalItemsAllowed = true
		default:
			return fmt.Errorf("%w: \"additionalItems\" must be a boolean or schema object", ErrSchemaWrongParamType)
		}
	}
	if v, ok := obj.Get("minimum"); ok {
		f, err := asNumber(v, "minimum")
		if err != nil {
			return err
		}
		n.hasMinimum, n.minimum = true, f
	}
	if v, ok := obj.Get("maximum"); ok {
		f, err := asNumber(v, "maximum")
		if err != nil {
			return err
		}
		n.hasMaximum, n.maximum = true, f
	}
	if v, ok := obj.Get("exclusiveMinimum"); ok {
		n.exclusiveMinimum = v.Kind == wire.KindBool && v.Bool
	}
	if v, ok := obj.Get("exclusiveMaximum"); ok {
		n.exclusiveMaximum = v.Kind == wire.KindBool && v.Bool
	}
	if v, ok := obj.Get("minItems"); ok {
		i, err := asInt(v, "minItems")
		if err != nil {
			return err
		}
		n.hasMinItems, n.minItems = true, i
	}
	if v, ok := obj.Get("maxItems"); ok {
		i, err := asInt(v, "maxItems")
		if err != nil {
			return err
		}
		n.hasMaxItems, n.maxItems = true, i
	}
	if v, ok := obj.Get("minLength"); ok {
		i, err := asInt(v, "minLength")
		if err != nil {
			return err
		}
		n.hasMinLength, n.minLength = true, i
	}
	if v, ok := obj.Get("maxLength"); ok {
		i, err := asInt(v, "maxLength")
		if err != nil {
			return err
		}
		n.hasMaxLength, n.maxLength = true, i
	}
	if v, ok := obj.Get("pattern"); ok {
		if v.Kind != wire.KindString {
			return fmt.Errorf("%w: \"pattern\" must be a string", ErrSchemaWrongParamType)
		}
		re, err := regexp.Compile(v.String)
		if err != nil {
			return fmt.Errorf("%w: invalid \"pattern\": %v", ErrSchemaWrongParamValue, err)
		}
		n.pattern = re
	}
	if v, ok := obj.Get("enum"); ok {
		if v.Kind != wire.KindArray {
			return fmt.Errorf("%w: \"enum\" must be an array", ErrSchemaWrongParamType)
		}
		n.enum = append([]Value(nil), v.Array...)
	}
	if v, ok := obj.Get("default"); ok {
		n.hasDefault, n.defaultVal = true, v
	}
	if v, ok := obj.Get("divisibleBy"); ok {
		f, err := asNumber(v, "divisibleBy")
		if err != nil {
			return err
		}
		if f == 0 {
			return fmt.Errorf("%w: \"divisibleBy\" must not be zero", ErrSchemaWrongParamValue)
		}
		n.hasDivisibleBy, n.divisibleBy = true, f
	}
	if v, ok := obj.Get("format"); ok {
		if v.Kind != wire.KindString {
			return fmt.Errorf("%w: \"format\" must be a string", ErrSchemaWrongParamType)
		}
		n.format = v.String
	}
	if v, ok := obj.Get("title"); ok && v.Kind == wire.KindString {
		n.title = v.String
	}
	if v, ok := obj.Get("description"); ok && v.Kind == wire.KindString {
		n.description = v.String
	}
	if v, ok := obj.Get("$ref"); ok {
		if v.Kind != wire.KindString {
			return fmt.Errorf("%w: \"$ref\" must be a string", ErrSchemaWrongParamType)
		}
		ref, err := c.compileNamed(v.String)
		if err != nil {
			return err
		}
		n.extends = append(n.extends, ref)
	}
	if v, ok := obj.Get("extends"); ok {
		subs, err := c.compileExtends(v)
		if err != nil {
			return err
		}
		n.extends = append(n.extends, subs...)
	}
	return nil
}

// compileExtends resolves "extends" into a slice of compiled nodes -
// conjunction is implemented by requiring every one of them to pass.
// Entries may be an inline schema object or a string naming another
// schema in the same repository.
func (c *compiler) compileExtends(v Value) ([]*node, error) {
	switch v.Kind {
	case wire.KindString:
		n, err := c.compileNamed(v.String)
		if err != nil {
			return nil, err
		}
		return []*node{n}, nil
	case wire.KindObject:
		n, err := c.compile(v)
		if err != nil {
			return nil, err
		}
		return []*node{n}, nil
	case wire.KindArray:
		var out []*node
		for _, item := range v.Array {
			subs, err := c.compileExtends(item)
			if err != nil {
				return nil, err
			}
			out = append(out, subs...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: \"extends\" must be a string, schema object or array", ErrSchemaWrongParamType)
	}
}

func parseTypeUnion(v Value) (valueType, error) {
	switch v.Kind {
	case wire.KindString:
		return typeFromName(v.String), nil
	case wire.KindArray:
		var t valueType
		for _, item := range v.Array {
			if item.Kind != wire.KindString {
				return 0, fmt.Errorf("%w: \"type\" array entries must be strings", ErrSchemaWrongParamType)
			}
			t |= typeFromName(item.String)
		}
		return t, nil
	default:
		return 0, fmt.Errorf("%w: \"type\" must be a string or array of strings", ErrSchemaWrongParamType)
	}
}

func typeFromName(name string) valueType {
	switch name {
	case "string":
		return typeString
	case "number":
		return typeNumber | typeInteger
	case "integer":
		return typeInteger
	case "boolean":
		return typeBoolean
	case "object":
		return typeObject
	case "array":
		return typeArray
	case "null":
		return typeNull
	case "any":
		return typeAny
	default:
		return 0
	}
}

// parseRequired accepts both the boolean and the "true"/"false" string
// forms; returns whether the string form was used so the caller can log a
// warning.
func parseRequired(v Value) (required bool, stringForm bool, err error) {
	switch v.Kind {
	case wire.KindBool:
		return v.Bool, false, nil
	case wire.KindString:
		switch v.String {
		case "true":
			return true, true, nil
		case "false":
			return false, true, nil
		default:
			return false, true, fmt.Errorf("%w: \"required\" string must be \"true\" or \"false\", got %q", ErrSchemaWrongParamValue, v.String)
		}
	default:
		return false, false, fmt.Errorf("%w: \"required\" must be a boolean or \"true\"/\"false\"", ErrSchemaWrongParamType)
	}
}

func asNumber(v Value, keyword string) (float64, error) {
	if v.Kind != wire.KindNumber {
		return 0, fmt.Errorf("%w: %q must be a number", ErrSchemaWrongParamType, keyword)
	}
	return v.Number, nil
}

func asInt(v Value, keyword string) (int, error) {
	f, err := asNumber(v, keyword)
	if err != nil {
		return 0, err
	}
	if math.Trunc(f) != f {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrSchemaWrongParamValue, keyword)
	}
	return int(f), nil
}

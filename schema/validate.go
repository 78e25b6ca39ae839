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
	"math"
	"net/url"
	"regexp"
	"time"

	"github.com/qtproject/jsonstream/wire"
)

// check runs every compiled keyword against v, returning the first
// failure. Validation is pure - the same (node, v) pair always produces
// the same result.
func (n *node) check(v Value) error {
	if n.types != 0 && !n.types.matches(v) {
		return validationErr(n.name, "type", "value kind does not match the declared type")
	}
	if len(n.enum) > 0 {
		matched := false
		for _, e := range n.enum {
			if v.Equal(e) {
				matched = true
				break
			}
		}
		if !matched {
			return validationErr(n.name, "enum", "value is not one of the enumerated values")
		}
	}

	switch v.Kind {
	case wire.KindString:
		if err := n.checkString(v.String); err != nil {
			return err
		}
	case wire.KindNumber:
		if err := n.checkNumber(v.Number); err != nil {
			return err
		}
	case wire.KindArray:
		if err := n.checkArray(v.Array); err != nil {
			return err
		}
	case wire.KindObject:
		if err := n.checkObject(v.Object); err != nil {
			return err
		}
	}

	for _, ext := range n.extends {
		if err := ext.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) checkString(s string) error {
	if n.hasMinLength && len(s) < n.minLength {
		return validationErr(n.name, "minLength", "string shorter than minLength")
	}
	if n.hasMaxLength && len(s) > n.maxLength {
		return validationErr(n.name, "maxLength", "string longer than maxLength")
	}
	if n.pattern != nil && !n.pattern.MatchString(s) {
		return validationErr(n.name, "pattern", "string does not match pattern")
	}
	if n.format != "" {
		if checker, ok := formatCheckers[n.format]; ok && !checker(s) {
			return validationErr(n.name, "format", "string does not satisfy format "+n.format)
		}
	}
	return nil
}

func (n *node) checkNumber(num float64) error {
	if n.hasMinimum {
		if n.exclusiveMinimum && num <= n.minimum {
			return validationErr(n.name, "exclusiveMinimum", "number not greater than exclusive minimum")
		}
		if !n.exclusiveMinimum && num < n.minimum {
			return validationErr(n.name, "minimum", "number less than minimum")
		}
	}
	if n.hasMaximum {
		if n.exclusiveMaximum && num >= n.maximum {
			return validationErr(n.name, "exclusiveMaximum", "number not less than exclusive maximum")
		}
		if !n.exclusiveMaximum && num > n.maximum {
			return validationErr(n.name, "maximum", "number greater than maximum")
		}
	}
	if n.hasDivisibleBy {
		ratio := num / n.divisibleBy
		if math.Abs(ratio-math.Round(ratio)) > 1e-9 {
			return validationErr(n.name, "divisibleBy", "number is not divisible by divisibleBy")
		}
	}
	return nil
}

func (n *node) checkArray(items []Value) error {
	if n.hasMinItems && len(items) < n.minItems {
		return validationErr(n.name, "minItems", "array shorter than minItems")
	}
	if n.hasMaxItems && len(items) > n.maxItems {
		return validationErr(n.name, "maxItems", "array longer than maxItems")
	}
	if n.itemsTuple != nil {
		for i, item := range items {
			if i < len(n.itemsTuple) {
				if err := n.itemsTuple[i].check(item); err != nil {
					return err
				}
				continue
			}
			if !n.additionalItemsAllowed {
				return validationErr(n.name, "additionalItems", "array has more items than the tuple schema allows")
			}
			if n.additionalItems != nil {
				if err := n.additionalItems.check(item); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if n.items != nil {
		for _, item := range items {
			if err := n.items.check(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *node) checkObject(obj *wire.Object) error {
	for name, required := range n.required {
		if !required {
			continue
		}
		if _, ok := obj.Get(name); !ok {
			return validationErr(n.name, "required", "missing required property "+name)
		}
	}
	for _, m := range obj.Members() {
		if child, ok := n.properties[m.Key]; ok {
			if err := child.check(m.Value); err != nil {
				return err
			}
			continue
		}
		if !n.additionalPropertiesAllowed {
			return validationErr(n.name, "additionalProperties", "unexpected property "+m.Key)
		}
		if n.additionalProperties != nil {
			if err := n.additionalProperties.check(m.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// matches reports whether v's JSON kind satisfies the type union t.
func (t valueType) matches(v Value) bool {
	if t&typeAny != 0 {
		return true
	}
	switch v.Kind {
	case wire.KindString:
		return t&typeString != 0
	case wire.KindNumber:
		if t&typeInteger != 0 && math.Trunc(v.Number) == v.Number {
			return true
		}
		return t&typeNumber != 0
	case wire.KindBool:
		return t&typeBoolean != 0
	case wire.KindObject:
		return t&typeObject != 0
	case wire.KindArray:
		return t&typeArray != 0
	case wire.KindNull:
		return t&typeNull != 0
	default:
		return false
	}
}

// formatCheckers implements the "format" keyword's recognized values; any
// other format string is accepted but not enforced.
var formatCheckers = map[string]func(string) bool{
	"date-time":          isDateTime,
	"date":               isDate,
	"time":               isTime,
	"url":                isURL,
	"uri":                isURI,
	"NonNegativeInteger": isNonNegativeInteger,
}

func isDateTime(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isTime(s string) bool {
	_, err := time.Parse("15:04:05", s)
	return err == nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func isURI(s string) bool {
	_, err := url.Parse(s)
	return err == nil
}

var nonNegativeIntegerRe = regexp.MustCompile(`^[0-9]+$`)

func isNonNegativeInteger(s string) bool {
	return nonNegativeIntegerRe.MatchString(s)
}

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
	"errors"
	"fmt"
)

// Error kinds raised by schema loading and validation. Each is a distinct
// sentinel so callers can errors.Is against the kind while the wrapped
// message still carries the specific failure detail.
var (
	ErrFailedSchemaValidation   = errors.New("schema: object failed validation")
	ErrInvalidSchemaOperation   = errors.New("schema: invalid operation")
	ErrInvalidObject            = errors.New("schema: not a JSON object")
	ErrFailedSchemaFileOpenRead = errors.New("schema: failed to open or read schema file")
	ErrInvalidSchemaFolder      = errors.New("schema: failed to read schema folder")
	ErrInvalidSchemaLoading     = errors.New("schema: failed to load schema")
	ErrSchemaWrongParamType     = errors.New("schema: wrong parameter type")
	ErrSchemaWrongParamValue    = errors.New("schema: wrong parameter value")
)

// ValidationError wraps ErrFailedSchemaValidation with the schema name and
// keyword that rejected the object, so a caller logging the failure has
// something more specific than a boolean.
type ValidationError struct {
	Schema  string
	Keyword string
	Detail  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema %q: %s check failed: %s", e.Schema, e.Keyword, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrFailedSchemaValidation }

func validationErr(name, keyword, detail string) error {
	return &ValidationError{Schema: name, Keyword: keyword, Detail: detail}
}

// FolderLoadError aggregates one error per file that failed while loading
// a schema folder.
type FolderLoadError struct {
	Dir     string
	PerFile map[string]error
}

func (e *FolderLoadError) Error() string {
	return fmt.Sprintf("schema: %d file(s) in %q failed to load", len(e.PerFile), e.Dir)
}

func (e *FolderLoadError) Unwrap() error { return ErrInvalidSchemaFolder }

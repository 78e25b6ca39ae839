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

// Package schema compiles a named repository of JSON Schemas (a draft-3
// subset) and validates inbound/outbound objects against it, with a
// pluggable name-matcher that can short-circuit the default O(N) scan.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qtproject/jsonstream/util"
	"github.com/qtproject/jsonstream/wire"
)

const (
	moduleSchema = "schema"

	eventSchemaLoaded  = "loaded"
	eventSchemaWarning = "warning"
)

var logger = util.NewGlobalModuleLogger(moduleSchema, nil)

// NamingMode selects how Validator derives a schema's repository name when
// loading it.
type NamingMode int

const (
	// UseFilename names the schema after its source file's basename,
	// extension stripped.
	UseFilename NamingMode = iota
	// UseParameter names the schema from the name argument passed to the
	// Load call.
	UseParameter
	// UseProperty names the schema from the value at a given key inside
	// the schema document itself.
	UseProperty
)

// entry is one repository slot: the raw schema document plus its lazily
// compiled tree (nil until first validated against).
type entry struct {
	source   Value
	compiled *node
}

// Validator compiles and validates against a named schema repository.
// Compilation happens lazily, on first ValidateSchema call against a given
// name, and the compiled tree is then reused for the Validator's lifetime
// (schemas are immutable once loaded).
type Validator struct {
	mu      sync.Mutex
	repo    map[string]*entry
	matcher NameMatcher
}

// NewValidator creates an empty repository with no name-matcher installed.
func NewValidator() *Validator {
	return &Validator{repo: make(map[string]*entry)}
}

// SetNameMatcher installs the optional acceleration hook consulted by the
// name-less ValidateSchema before the full O(N) scan. Every schema already
// loaded is replayed through the matcher's Observe method (if it
// implements schemaObserver) so the index reflects the whole repository,
// not just schemas loaded from this point on.
func (v *Validator) SetNameMatcher(m NameMatcher) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.matcher = m
	if obs, ok := m.(schemaObserver); ok {
		for name, e := range v.repo {
			obs.Observe(name, e.source)
		}
	}
}

// LoadFromData parses data as a JSON Schema document and registers it
// under name (used directly as the repository key - LoadFromData is
// always UseParameter naming since there's no file to derive a name from
// and no nested document has been decided for UseProperty at this call
// site; callers wanting UseProperty/UseFilename naming go through
// LoadFromFile/LoadFromFolder).
func (v *Validator) LoadFromData(data []byte, name string) error {
	if name == "" {
		return fmt.Errorf("%w: schema name must not be empty", ErrSchemaWrongParamValue)
	}
	doc, err := wire.ParseText(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchemaLoading, err)
	}
	if !doc.IsObject() {
		return fmt.Errorf("%w: schema document must be a JSON object", ErrInvalidObject)
	}
	v.register(name, doc)
	return nil
}

// LoadFromFile reads path and registers it under a name derived according
// to mode. name is only consulted for UseParameter; propertyKey is only
// consulted for UseProperty.
func (v *Validator) LoadFromFile(path string, mode NamingMode, name string, propertyKey string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedSchemaFileOpenRead, err)
	}
	doc, err := wire.ParseText(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchemaLoading, err)
	}
	if !doc.IsObject() {
		return fmt.Errorf("%w: schema document must be a JSON object", ErrInvalidObject)
	}
	resolved, err := resolveName(path, doc, mode, name, propertyKey)
	if err != nil {
		return err
	}
	v.register(resolved, doc)
	return nil
}

// LoadFromFolder walks dir for files matching ext (default "json"),
// loading each the way LoadFromFile would with UseProperty naming off
// nameKey (or UseFilename if nameKey is ""). Every file is attempted even
// if earlier ones fail; failures are aggregated into a FolderLoadError
// rather than aborting on the first bad file.
func (v *Validator) LoadFromFolder(dir string, nameKey string, ext string) error {
	if ext == "" {
		ext = "json"
	}
	suffix := "." + strings.TrimPrefix(ext, ".")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchemaFolder, err)
	}

	perFile := make(map[string]error)
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		mode := UseFilename
		if nameKey != "" {
			mode = UseProperty
		}
		if err := v.LoadFromFile(path, mode, "", nameKey); err != nil {
			perFile[de.Name()] = err
		}
	}
	if len(perFile) > 0 {
		return &FolderLoadError{Dir: dir, PerFile: perFile}
	}
	return nil
}

func resolveName(path string, doc Value, mode NamingMode, name string, propertyKey string) (string, error) {
	switch mode {
	case UseFilename:
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base)), nil
	case UseParameter:
		if name == "" {
			return "", fmt.Errorf("%w: UseParameter naming requires a non-empty name", ErrSchemaWrongParamValue)
		}
		return name, nil
	case UseProperty:
		v, ok := doc.Object.Get(propertyKey)
		if !ok || v.Kind != wire.KindString {
			return "", fmt.Errorf("%w: schema has no string property %q to name it", ErrSchemaWrongParamValue, propertyKey)
		}
		return v.String, nil
	default:
		return "", fmt.Errorf("%w: unknown naming mode", ErrSchemaWrongParamValue)
	}
}

func (v *Validator) register(name string, doc Value) {
	v.mu.Lock()
	v.repo[name] = &entry{source: doc}
	matcher := v.matcher
	v.mu.Unlock()
	logger.Logkv("event", eventSchemaLoaded, "name", name)
	if obs, ok := matcher.(schemaObserver); ok {
		obs.Observe(name, doc)
	}
}

// Contains reports whether name is registered, compiled or not.
func (v *Validator) Contains(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.repo[name]
	return ok
}

// ensureCompiled compiles e.source into e.compiled on first use.
func (v *Validator) ensureCompiled(name string, e *entry) (*node, error) {
	if e.compiled != nil {
		return e.compiled, nil
	}
	v.mu.Lock()
	repo := make(map[string]Value, len(v.repo))
	for n, other := range v.repo {
		repo[n] = other.source
	}
	v.mu.Unlock()
	c := newCompiler(repo, func(format string, args ...interface{}) {
		logger.Logkv("event", eventSchemaWarning, "message", fmt.Sprintf(format, args...))
	})
	compiled, err := c.compileNamed(name)
	if err != nil {
		return nil, err
	}
	e.compiled = compiled
	return compiled, nil
}

// ValidateSchema validates obj against the schema registered under name.
// If name is "", it consults the installed NameMatcher for likely
// candidates, tries each, and falls back to every remaining registered
// schema in map iteration order, stopping at the first schema that
// accepts obj.
func (v *Validator) ValidateSchema(name string, obj Value) error {
	if !obj.IsObject() {
		return ErrInvalidObject
	}
	if name != "" {
		return v.validateNamed(name, obj)
	}

	v.mu.Lock()
	matcher := v.matcher
	v.mu.Unlock()

	tried := make(map[string]bool)
	if matcher != nil {
		for _, cand := range matcher.Candidates(obj) {
			if tried[cand] {
				continue
			}
			tried[cand] = true
			if v.Contains(cand) && v.validateNamed(cand, obj) == nil {
				return nil
			}
		}
	}

	v.mu.Lock()
	names := make([]string, 0, len(v.repo))
	for n := range v.repo {
		names = append(names, n)
	}
	v.mu.Unlock()

	var lastErr error = errors.New("schema: no registered schema matched the object")
	for _, n := range names {
		if tried[n] {
			continue
		}
		if err := v.validateNamed(n, obj); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

func (v *Validator) validateNamed(name string, obj Value) error {
	v.mu.Lock()
	e, ok := v.repo[name]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: schema %q not found", ErrInvalidSchemaOperation, name)
	}
	compiled, err := v.ensureCompiled(name, e)
	if err != nil {
		return err
	}
	return compiled.check(obj)
}

package typeset

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaCache compiles and memoises parameter/schema/<name>.json documents
// per (type, param), mirroring the memoisation idea in the teacher's
// validation_cache.go so a manifest instantiating many objects of the same
// type does not recompile the same schema per object.
type SchemaCache struct {
	mu     sync.Mutex
	byType map[string]map[string]*jsonschema.Schema
}

// NewSchemaCache returns an empty cache.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{byType: make(map[string]map[string]*jsonschema.Schema)}
}

// Validate checks value against t's schema for param, if one is declared.
// A type with no schema for param is always valid.
func (c *SchemaCache) Validate(t *Type, param, value string) error {
	if !contains(t.SchemaParams, param) {
		return nil
	}
	schema, err := c.get(t, param)
	if err != nil {
		return err
	}

	var v interface{} = value
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("type %s parameter %s: value %q rejected by schema: %w", t.Name, param, value, err)
	}
	return nil
}

func (c *SchemaCache) get(t *Type, param string) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if byParam, ok := c.byType[t.Name]; ok {
		if s, ok := byParam[param]; ok {
			return s, nil
		}
	} else {
		c.byType[t.Name] = make(map[string]*jsonschema.Schema)
	}

	path := filepath.Join(t.Path, "parameter", "schema", param+".json")
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %s/%s: %w", t.Name, param, err)
	}
	c.byType[t.Name][param] = schema
	return schema, nil
}

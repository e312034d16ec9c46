// Package typeset discovers and describes types on disk: the reusable
// configuration primitives of §3. It overlays multiple conf roots into one
// flattened view (last root wins) and exposes each type's declared
// parameters, singleton/install/nonparallel flags, explorer list, and
// deprecation markers, grounded on the teacher's in-memory decorator
// registry (core/types/registry.go) adapted to read its metadata from a
// directory tree instead of from code-registered handlers.
package typeset

import "strings"

// Type describes one `__<name>` directory discovered on the conf overlay.
type Type struct {
	Name string
	Path string // resolved path on the overlay (a symlink target)

	Required      []string
	Optional      []string
	RequiredMulti []string
	OptionalMulti []string
	Boolean       []string
	Defaults      map[string]string // optional/optional_multiple only

	Deprecated       bool
	DeprecatedMsg    string
	DeprecatedParams map[string]string // param name -> message

	Singleton   bool
	Install     bool
	NonParallel bool

	HasManifest      bool
	HasGencodeLocal  bool
	HasGencodeRemote bool
	Explorers        []string // explorer script names
	HasFiles         bool

	// SchemaParams names parameters that have a parameter/schema/<name>.json
	// JSON Schema document constraining their value (SPEC_FULL §3 ADDED).
	SchemaParams []string
}

// IsTypeName reports whether s is shaped like a type name ("__foo").
func IsTypeName(s string) bool {
	return strings.HasPrefix(s, "__") && len(s) > 2
}

// AllParams returns every parameter name this type declares, in the
// canonical order required, required_multiple, optional, optional_multiple,
// boolean — the order invariant 3 in spec.md §3 checks membership against.
func (t *Type) AllParams() []string {
	out := make([]string, 0, len(t.Required)+len(t.RequiredMulti)+len(t.Optional)+len(t.OptionalMulti)+len(t.Boolean))
	out = append(out, t.Required...)
	out = append(out, t.RequiredMulti...)
	out = append(out, t.Optional...)
	out = append(out, t.OptionalMulti...)
	out = append(out, t.Boolean...)
	return out
}

// IsMultiValue reports whether param accumulates multiple values.
func (t *Type) IsMultiValue(param string) bool {
	return contains(t.RequiredMulti, param) || contains(t.OptionalMulti, param)
}

// IsBoolean reports whether param is a marker-file boolean parameter.
func (t *Type) IsBoolean(param string) bool {
	return contains(t.Boolean, param)
}

// IsRequired reports whether param must be supplied by the manifest author.
func (t *Type) IsRequired(param string) bool {
	return contains(t.Required, param) || contains(t.RequiredMulti, param)
}

// IsKnownParam reports whether param is declared at all by this type.
func (t *Type) IsKnownParam(param string) bool {
	for _, p := range t.AllParams() {
		if p == param {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

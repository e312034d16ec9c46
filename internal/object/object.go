package object

import (
	"sort"
	"strings"
)

// Object is one `<type-name>/<object-id>` instance (spec.md §3). Every
// field here is mirrored to files under Path so a crashed run can be
// inspected on disk; the in-memory copy exists so the configurator's
// hot loop (dependency validation, iterate_once) does not re-read the
// filesystem on every pass.
type Object struct {
	TypeName string
	ID       string // empty for a singleton object
	Path     string // object directory on the per-host working tree

	Params      map[string]string   // single-valued parameter -> value
	MultiParams map[string][]string // multi-valued parameter -> values
	Booleans    map[string]bool

	ExplicitRequires []string // may contain glob patterns
	Autorequire      []string // populated by the emulator during own manifest run

	Source []string // manifest path(s) that declared this object

	State   State
	Changed bool // set true on any state transition (§4.7 iterate_once progress)

	// CodeChanged mirrors the on-disk `changed` marker (§6 object
	// layout): set once gencode-local or gencode-remote produces a
	// non-empty artifact for this object (§4.6).
	CodeChanged bool

	HasStdin bool
}

// Name returns the canonical "<type>/<id>" identifier.
func (o *Object) Name() string {
	if o.ID == "" {
		return o.TypeName + "/"
	}
	return o.TypeName + "/" + o.ID
}

// AllRequirements returns the explicit and autorequire sets concatenated,
// the union the configurator's cycle detector walks (spec.md §4.7).
func (o *Object) AllRequirements() []string {
	out := make([]string, 0, len(o.ExplicitRequires)+len(o.Autorequire))
	out = append(out, o.ExplicitRequires...)
	out = append(out, o.Autorequire...)
	return out
}

// addAutorequire appends name to the autorequire set if not already present.
func (o *Object) addAutorequire(name string) {
	for _, r := range o.Autorequire {
		if r == name {
			return
		}
	}
	o.Autorequire = append(o.Autorequire, name)
}

// mergeExplicitRequires unions newReqs into the existing explicit set,
// returning the names that were not already present (used to warn on
// reconciliation per emulator step 7).
func (o *Object) mergeExplicitRequires(newReqs []string) (added []string) {
	existing := make(map[string]bool, len(o.ExplicitRequires))
	for _, r := range o.ExplicitRequires {
		existing[r] = true
	}
	for _, r := range newReqs {
		if !existing[r] {
			o.ExplicitRequires = append(o.ExplicitRequires, r)
			existing[r] = true
			added = append(added, r)
		}
	}
	return added
}

// paramsEqual reports whether o's parameters match the candidate sets
// exactly, the check emulator step 7 uses to decide whether a repeat
// declaration is a harmless re-request or a CDIST_OVERRIDE-gated conflict.
func (o *Object) paramsEqual(params map[string]string, multi map[string][]string, booleans map[string]bool) bool {
	if len(o.Params) != len(params) || len(o.Booleans) != len(booleans) {
		return false
	}
	for k, v := range params {
		if o.Params[k] != v {
			return false
		}
	}
	for k, v := range booleans {
		if o.Booleans[k] != v {
			return false
		}
	}
	if len(o.MultiParams) != len(multi) {
		return false
	}
	for k, vs := range multi {
		ov, ok := o.MultiParams[k]
		if !ok || len(ov) != len(vs) {
			return false
		}
		a := append([]string(nil), ov...)
		b := append([]string(nil), vs...)
		sort.Strings(a)
		sort.Strings(b)
		if strings.Join(a, "\x00") != strings.Join(b, "\x00") {
			return false
		}
	}
	return true
}

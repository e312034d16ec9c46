package object

import (
	"fmt"
	"path"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/opal-lang/skonfig/internal/engine"
)

// ResolveRequirement expands a possibly-glob requirement name against the
// known object names in s, returning every match. Requirement names may
// be glob patterns matching existing object names (spec.md §3).
func (s *Store) ResolveRequirement(pattern string) ([]string, error) {
	all := s.Names()
	var matches []string
	for _, name := range all {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, &engine.ConfigurationError{Field: "require", Msg: err.Error()}
		}
		if ok {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 && !containsGlobMeta(pattern) {
		// A literal name matching nothing is almost certainly a typo;
		// a glob matching nothing may legitimately describe "none yet".
		return nil, unknownRequirementError(pattern, all)
	}
	sort.Strings(matches)
	return matches, nil
}

func containsGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func unknownRequirementError(pattern string, known []string) error {
	ranked := fuzzy.RankFindFold(pattern, known)
	sort.Sort(ranked)
	base := fmt.Errorf("no object matches requirement %q", pattern)
	if len(ranked) == 0 {
		return base
	}
	return fmt.Errorf("%w (did you mean %q?)", base, ranked[0].Target)
}

// Unfinished reports whether any name in reqs, expanded through globs,
// resolves to an object not yet DONE. A glob resolving to zero objects
// at evaluation time is vacuously finished (it may simply not have fired
// yet); use ResolveRequirement at validation time to catch typos early.
func (s *Store) Unfinished(reqs []string) (bool, error) {
	for _, pattern := range reqs {
		matches, err := s.resolveLenient(pattern)
		if err != nil {
			return false, err
		}
		for _, name := range matches {
			obj, ok := s.byName(name)
			if !ok {
				continue
			}
			if obj.State != StateDone {
				return true, nil
			}
		}
	}
	return false, nil
}

// ExpandRequirement is ResolveRequirement without the "no match" typo
// error, for the configurator's hot loop (cycle detection, dependency
// satisfaction checks) where an empty glob match is normal, not a typo.
func (s *Store) ExpandRequirement(pattern string) ([]string, error) {
	return s.resolveLenient(pattern)
}

// resolveLenient is ResolveRequirement without the "no match" typo error,
// used by the hot configurator loop where an empty glob match is normal.
func (s *Store) resolveLenient(pattern string) ([]string, error) {
	var matches []string
	for _, name := range s.Names() {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, &engine.ConfigurationError{Field: "require", Msg: err.Error()}
		}
		if ok {
			matches = append(matches, name)
		}
	}
	return matches, nil
}

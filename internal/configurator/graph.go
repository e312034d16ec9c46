package configurator

import "github.com/opal-lang/skonfig/internal/object"

// findCycle runs a DFS from every not-yet-DONE object over the union of
// explicit and autorequire edges (spec.md §4.7 "Cycle detection").
// The first repeated node on the current DFS stack yields a concrete
// path, returned in the order it was walked (e.g. A -> B -> C -> A).
func findCycle(store *object.Store) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)

	var stack []string
	var cyclePath []string

	var visit func(name string) error
	visit = func(name string) error {
		if color[name] == black {
			return nil
		}
		if color[name] == gray {
			// Found a repeat: cut the recorded stack down to the first
			// occurrence of name and close the loop back to it.
			for i, n := range stack {
				if n == name {
					cyclePath = append(append([]string(nil), stack[i:]...), name)
					return errCycleFound
				}
			}
			cyclePath = append(append([]string(nil), stack...), name)
			return errCycleFound
		}

		color[name] = gray
		stack = append(stack, name)

		obj, ok := store.Get(name)
		if ok {
			for _, pattern := range obj.AllRequirements() {
				matches, err := store.ExpandRequirement(pattern)
				if err != nil {
					return err
				}
				for _, m := range matches {
					if err := visit(m); err != nil {
						return err
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, obj := range store.NotDone() {
		if color[obj.Name()] != white {
			continue
		}
		if err := visit(obj.Name()); err != nil {
			if err == errCycleFound {
				return cyclePath, nil
			}
			return nil, err
		}
	}
	return nil, nil
}

var errCycleFound = cycleSentinel{}

type cycleSentinel struct{}

func (cycleSentinel) Error() string { return "cycle found" }

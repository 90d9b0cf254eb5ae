// Package resolver computes a safe load order for discovered plugin
// descriptors. Resolve is pure: it performs no I/O, never mutates its input,
// and allocates fresh state per call, so concurrent callers need no
// coordination.
package resolver

import (
	"fmt"
	"sort"

	"github.com/wrenware/packhost/plugin"
)

// IssueKind classifies a dependency problem.
type IssueKind string

const (
	// Missing means a required dependency was not discovered at all.
	Missing IssueKind = "missing"
	// VersionMismatch means the dependency exists but no discovered version
	// satisfies the declared range.
	VersionMismatch IssueKind = "version_mismatch"
	// Circular means the module participates in a required-dependency cycle.
	Circular IssueKind = "circular"
	// Incompatible means the module itself failed extraction and cannot load.
	Incompatible IssueKind = "incompatible"
)

// Issue describes one dependency problem. Issues are informational: the
// resolver reports them and excludes the offending module, it never fails.
type Issue struct {
	Plugin      string
	Dependency  string
	Kind        IssueKind
	Description string
}

func (i Issue) String() string {
	if i.Dependency != "" {
		return fmt.Sprintf("%s: %s (%s -> %s)", i.Kind, i.Description, i.Plugin, i.Dependency)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Kind, i.Description, i.Plugin)
}

// Resolve orders descriptors dependency-first. It deduplicates multiple
// versions of one module name keeping the newest, excludes modules whose
// required dependencies cannot be satisfied, and drops required-dependency
// cycles. Optional dependencies never exclude anything. When a range matches
// several discovered versions the highest satisfying version wins.
func Resolve(descriptors []*plugin.Descriptor) ([]*plugin.Descriptor, []Issue) {
	var issues []Issue

	// Index every compatible descriptor by name, newest version first.
	index := make(map[string][]*plugin.Descriptor)
	var names []string // insertion order, for deterministic output
	for _, d := range descriptors {
		if d == nil {
			continue
		}
		if !d.IsCompatible {
			issues = append(issues, Issue{
				Plugin:      d.Name,
				Kind:        Incompatible,
				Description: d.IncompatibilityReason,
			})
			continue
		}
		if _, seen := index[d.Name]; !seen {
			names = append(names, d.Name)
		}
		index[d.Name] = append(index[d.Name], d)
	}
	for _, versions := range index {
		sort.SliceStable(versions, func(i, j int) bool {
			return versions[j].Version.Less(versions[i].Version)
		})
	}

	// Exclude descriptors whose required dependencies cannot be satisfied
	// by anything discovered.
	satisfiable := make(map[string]*plugin.Descriptor, len(index))
	for _, name := range names {
		// Dedup rule: only the newest version of each name is considered.
		d := index[name][0]
		if ok := checkRequiredDeps(d, index, &issues); ok {
			satisfiable[name] = d
		}
	}

	// Depth-first topological sort over required edges only.
	s := &sorter{
		loadable: satisfiable,
		state:    make(map[string]visitState, len(satisfiable)),
	}
	for _, name := range names {
		if _, ok := satisfiable[name]; ok {
			s.visit(name)
		}
	}

	return s.order, append(issues, s.issues...)
}

// checkRequiredDeps verifies every required dependency of d has at least one
// discovered version inside its declared range, recording Missing or
// VersionMismatch issues otherwise.
func checkRequiredDeps(d *plugin.Descriptor, index map[string][]*plugin.Descriptor, issues *[]Issue) bool {
	ok := true
	for _, dep := range d.Dependencies {
		if dep.Optional {
			continue
		}
		versions, found := index[dep.Name]
		if !found {
			*issues = append(*issues, Issue{
				Plugin:      d.Name,
				Dependency:  dep.Name,
				Kind:        Missing,
				Description: fmt.Sprintf("required dependency %q was not discovered", dep.Name),
			})
			ok = false
			continue
		}
		if pickVersion(versions, dep) == nil {
			*issues = append(*issues, Issue{
				Plugin:      d.Name,
				Dependency:  dep.Name,
				Kind:        VersionMismatch,
				Description: fmt.Sprintf("no discovered version of %q satisfies [%s, %s]", dep.Name, dep.Min, maxString(dep.Max)),
			})
			ok = false
		}
	}
	return ok
}

// pickVersion returns the highest discovered version satisfying the declared
// range, or nil. versions must be sorted newest first.
func pickVersion(versions []*plugin.Descriptor, dep plugin.Dependency) *plugin.Descriptor {
	for _, v := range versions {
		if v.Version.InRange(dep.Min, dep.Max) {
			return v
		}
	}
	return nil
}

func maxString(max *plugin.Version) string {
	if max == nil {
		return "unbounded"
	}
	return max.String()
}

type visitState int

const (
	unvisited visitState = iota
	onPath
	done
	dropped
)

type sorter struct {
	loadable map[string]*plugin.Descriptor
	state    map[string]visitState
	order    []*plugin.Descriptor
	issues   []Issue
}

// visit returns true when name ends up in the output order. A node re-entered
// while still on the current path is a cycle: it is recorded once and the
// whole chain that needs it is dropped rather than erroring.
func (s *sorter) visit(name string) bool {
	switch s.state[name] {
	case done:
		return true
	case dropped:
		return false
	case onPath:
		s.issues = append(s.issues, Issue{
			Plugin:      name,
			Dependency:  name,
			Kind:        Circular,
			Description: fmt.Sprintf("module %q participates in a required-dependency cycle", name),
		})
		s.state[name] = dropped
		return false
	}

	d, ok := s.loadable[name]
	if !ok {
		// Excluded earlier (missing or mismatched requirements); the
		// dependent is dropped transitively without a fresh issue.
		return false
	}

	s.state[name] = onPath
	for _, dep := range d.Dependencies {
		if dep.Optional {
			continue
		}
		if !s.visit(dep.Name) {
			if s.state[name] != dropped {
				s.state[name] = dropped
			}
			return false
		}
	}

	// A cycle detected deeper in the walk may have dropped this node.
	if s.state[name] == dropped {
		return false
	}
	s.state[name] = done
	s.order = append(s.order, d)
	return true
}

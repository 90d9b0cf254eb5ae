// Package plugin implements the module loading layer of Packhost: isolated
// load contexts backed by wazero, metadata extraction, and the descriptor
// model shared by discovery, resolution and registration.
package plugin

import (
	"path/filepath"
	"strings"
	"time"
)

// Descriptor is the immutable record describing one discovered module file.
// Re-discovery of the same file produces a new Descriptor; a Descriptor is
// never mutated after extraction.
type Descriptor struct {
	// Identity
	Path          string
	Name          string
	QualifiedName string
	Version       Version

	// Compatibility
	TargetRuntime         string
	Signed                bool
	Size                  int64
	ModTime               time.Time
	IsCompatible          bool
	Warnings              []string
	IncompatibilityReason string

	// Declared metadata; nil when the module carries no manifest.
	Manifest *Manifest

	// Declared dependencies, in manifest order.
	Dependencies []Dependency

	// Declared resource compatibilities.
	ResourceCompat []ResourceCompat

	// Candidate handlers found during extraction. Declarative entries come
	// from the module's own registration surface; heuristic entries are
	// advisory only.
	CandidateHandlers []HandlerCandidate
}

// Dependency is one declared inter-module dependency.
type Dependency struct {
	Name     string
	Min      Version
	Max      *Version // nil = unbounded
	Optional bool
}

// ResourceCompat declares which container resource versions a module supports.
type ResourceCompat struct {
	TypeID          string
	VersionRange    string // semver constraint, empty = any
	ReplacesDefault bool
	Priority        int
}

// HandlerCandidate is one (data-type identifier, export) pair a module
// appears to provide.
type HandlerCandidate struct {
	TypeID string
	Export string
	// Heuristic marks candidates inferred from export naming conventions
	// rather than the module's declarative listing.
	Heuristic bool
}

// FailedDescriptor builds the incompatible descriptor recorded when a
// candidate file cannot be loaded at all.
func FailedDescriptor(path string, reason error) *Descriptor {
	return &Descriptor{
		Path:                  path,
		Name:                  NameFromPath(path),
		QualifiedName:         NameFromPath(path),
		IsCompatible:          false,
		IncompatibilityReason: reason.Error(),
	}
}

// NameFromPath derives a module name from its file name: base name without
// the extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// HasRequiredDependency reports whether the descriptor declares any
// non-optional dependency.
func (d *Descriptor) HasRequiredDependency() bool {
	for _, dep := range d.Dependencies {
		if !dep.Optional {
			return true
		}
	}
	return false
}

// DeclaredTypeIDs returns the identifiers of all candidate handlers, in
// extraction order, without duplicates.
func (d *Descriptor) DeclaredTypeIDs() []string {
	seen := make(map[string]bool, len(d.CandidateHandlers))
	ids := make([]string, 0, len(d.CandidateHandlers))
	for _, c := range d.CandidateHandlers {
		if !seen[c.TypeID] {
			seen[c.TypeID] = true
			ids = append(ids, c.TypeID)
		}
	}
	return ids
}

// Package discovery enumerates well-known plugin locations, describes every
// candidate module it finds, and feeds the results through resolution into
// the registration manager.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
	"github.com/wrenware/packhost/plugin"
	"github.com/wrenware/packhost/registry"
	"github.com/wrenware/packhost/resolver"
)

// Issue records one non-fatal failure during a discovery pass.
type Issue struct {
	Path  string
	Stage string // "load", "extract" or "register"
	Err   error
}

func (i Issue) String() string {
	return i.Stage + " " + i.Path + ": " + i.Err.Error()
}

// Result is the structured outcome of one DiscoverAll pass. A pass always
// completes; callers inspect the issue lists rather than catching errors.
type Result struct {
	Descriptors      []*plugin.Descriptor
	Registered       int
	DiscoveryIssues  []Issue
	ResolutionIssues []resolver.Issue
	RegistrationIssues []Issue
}

// ResolveFunc orders descriptors before registration. When nil, registration
// follows discovery order.
type ResolveFunc func([]*plugin.Descriptor) ([]*plugin.Descriptor, []resolver.Issue)

// Options configures a discovery service.
type Options struct {
	// Locations replaces the well-known scan list entirely when non-nil.
	Locations []string
	// ExtraPaths are additional search locations from configuration.
	ExtraPaths []string
	// DenyPrefixes overrides DefaultDenyPrefixes when non-nil.
	DenyPrefixes []string
	// Resolve orders descriptors before registration; nil keeps discovery
	// order.
	Resolve ResolveFunc
}

// Service scans the well-known plugin locations. Every load context created
// during a pass is retained until Close, which unloads them best-effort.
type Service struct {
	locations    []string
	denyPrefixes []string
	resolve      ResolveFunc
	extractor    *plugin.Extractor
	logger       *zap.SugaredLogger

	mu       sync.Mutex
	contexts []*plugin.Context
	loaded   map[string]*plugin.Module // descriptor path -> module
	closed   bool
}

// NewService creates a discovery service. Wire its Binder into the manager
// that will receive the discovered registrations.
func NewService(extractor *plugin.Extractor, opts Options, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	deny := opts.DenyPrefixes
	if deny == nil {
		deny = DefaultDenyPrefixes
	}
	locations := opts.Locations
	if locations == nil {
		locations = WellKnownLocations(opts.ExtraPaths, logger)
	}
	return &Service{
		locations:    locations,
		denyPrefixes: deny,
		resolve:      opts.Resolve,
		extractor:    extractor,
		logger:       logger,
		loaded:       make(map[string]*plugin.Module),
	}
}

// Binder returns a registry.Binder backed by the modules this service has
// loaded, for wiring into the manager that registers discovery results.
func (s *Service) Binder() registry.Binder {
	return registry.BinderFunc(s.bind)
}

// DiscoverAll scans every location, describes every candidate, resolves load
// order and registers the survivors into manager. A nil manager yields
// descriptors without registration. Individual failures are recorded and
// scanning continues; only cancellation aborts the pass.
func (s *Service) DiscoverAll(ctx context.Context, manager *registry.Manager) (*Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Wrap(errors.ErrClosed, "discovery service")
	}
	s.mu.Unlock()

	result := &Result{}

	for _, location := range s.locations {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "discovery cancelled")
		}
		s.scanLocation(ctx, location, result)
	}

	ordered := result.Descriptors
	if s.resolve != nil {
		loadable, issues := s.resolve(result.Descriptors)
		result.ResolutionIssues = issues
		ordered = loadable
	}

	if manager != nil {
		for _, desc := range ordered {
			if err := ctx.Err(); err != nil {
				return result, errors.Wrap(err, "discovery cancelled")
			}
			if s.resolve == nil && !desc.IsCompatible {
				continue
			}
			if _, err := manager.Register(ctx, desc); err != nil {
				result.RegistrationIssues = append(result.RegistrationIssues, Issue{
					Path:  desc.Path,
					Stage: "register",
					Err:   err,
				})
				continue
			}
			result.Registered++
		}
	}

	s.logger.Infow("Discovery pass complete",
		"descriptors", len(result.Descriptors),
		"registered", result.Registered,
		"discovery_issues", len(result.DiscoveryIssues),
		"resolution_issues", len(result.ResolutionIssues),
		"registration_issues", len(result.RegistrationIssues),
	)
	return result, nil
}

// scanLocation enumerates one directory. Each location gets its own load
// context so a whole location's modules can be unloaded together.
func (s *Service) scanLocation(ctx context.Context, location string, result *Result) {
	entries, err := os.ReadDir(location)
	if err != nil {
		if !os.IsNotExist(err) {
			result.DiscoveryIssues = append(result.DiscoveryIssues, Issue{
				Path:  location,
				Stage: "load",
				Err:   errors.Wrap(err, "read directory"),
			})
		}
		return
	}

	loadCtx := plugin.NewContext(location, s.logger)
	s.mu.Lock()
	s.contexts = append(s.contexts, loadCtx)
	s.mu.Unlock()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !matchesAny(name, FilePatterns) || denied(name, s.denyPrefixes) {
			continue
		}

		path := filepath.Join(location, name)
		mod, err := loadCtx.Load(ctx, path)
		if err != nil {
			// A file that cannot be loaded still yields a descriptor,
			// marked incompatible, so callers see the full candidate set.
			result.Descriptors = append(result.Descriptors, plugin.FailedDescriptor(path, err))
			result.DiscoveryIssues = append(result.DiscoveryIssues, Issue{
				Path:  path,
				Stage: "load",
				Err:   err,
			})
			continue
		}

		desc := s.extractor.Extract(ctx, mod)
		result.Descriptors = append(result.Descriptors, desc)

		s.mu.Lock()
		s.loaded[desc.Path] = mod
		s.mu.Unlock()
	}
}

// bind materializes handler factories for a descriptor out of the module
// loaded during scanning. Heuristic candidates without a recovered type id
// are skipped; they are advisory only.
func (s *Service) bind(ctx context.Context, desc *plugin.Descriptor) (map[string]handler.Factory, error) {
	s.mu.Lock()
	mod, ok := s.loaded[desc.Path]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError("module for %s not held by this discovery pass", desc.Path)
	}

	factories := make(map[string]handler.Factory)
	for _, cand := range desc.CandidateHandlers {
		if cand.TypeID == "" {
			continue
		}
		factories[cand.TypeID] = plugin.NewModuleFactory(mod, cand)
	}
	if len(factories) == 0 {
		return nil, errors.Newf("module %s provides no bindable handlers", desc.Name)
	}
	return factories, nil
}

// LoadedCounts reports the per-context loaded module counts, keyed by
// context name. Diagnostics only.
func (s *Service) LoadedCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.contexts))
	for _, c := range s.contexts {
		counts[c.Name()] = c.LoadedCount()
	}
	return counts
}

// Close unloads every load context created by this service, best-effort:
// unload failures are logged and the walk continues. Repeat calls are no-ops.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, c := range s.contexts {
		if err := c.Close(ctx); err != nil {
			s.logger.Warnw("Load context unload failed", "context", c.Name(), "error", err)
		}
	}
	s.contexts = nil
	s.loaded = make(map[string]*plugin.Module)
	return nil
}

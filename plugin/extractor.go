package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
)

// Module exports making up the declarative registration surface.
const (
	exportManifest = "pk_manifest"
	exportHandlers = "pk_handlers"
)

// Extractor introspects loaded modules into Descriptors. It never fails for
// recoverable probe errors: a failing sub-probe degrades its one field to
// empty and leaves a warning on the descriptor. Only a top-level introspection
// failure marks the descriptor incompatible.
type Extractor struct {
	hostVersion      string
	legacyHeuristics bool
	logger           *zap.SugaredLogger
}

// NewExtractor creates an extractor. hostVersion feeds manifest host-range
// checks; legacyHeuristics enables the advisory export-name scan for modules
// without a declarative handler listing.
func NewExtractor(hostVersion string, legacyHeuristics bool, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{
		hostVersion:      hostVersion,
		legacyHeuristics: legacyHeuristics,
		logger:           logger,
	}
}

// Extract produces the descriptor for a loaded module. The returned value is
// complete and immutable; callers must not mutate it.
func (e *Extractor) Extract(ctx context.Context, mod *Module) (desc *Descriptor) {
	desc = &Descriptor{
		Path:         mod.Path,
		IsCompatible: true,
	}

	defer func() {
		if r := recover(); r != nil {
			desc.IsCompatible = false
			desc.IncompatibilityReason = fmt.Sprintf("introspection panic: %v", r)
			e.logger.Errorw("Module introspection panicked",
				"path", mod.Path, "panic", r)
		}
	}()

	e.probeFile(desc)
	desc.TargetRuntime = targetRuntime(mod)

	manifest, warnings := e.probeManifest(ctx, mod)
	desc.Warnings = append(desc.Warnings, warnings...)
	desc.Manifest = manifest

	if manifest != nil {
		desc.Name = manifest.Name
		desc.Version = manifest.ModuleVersion()

		deps, depWarnings := manifest.declaredDependencies()
		desc.Dependencies = deps
		desc.Warnings = append(desc.Warnings, depWarnings...)

		compat, compatWarnings := manifest.declaredResourceCompat()
		desc.ResourceCompat = compat
		desc.Warnings = append(desc.Warnings, compatWarnings...)

		if ok, warn, err := manifest.CheckHostCompatibility(e.hostVersion); err != nil {
			desc.Warnings = append(desc.Warnings, err.Error())
		} else if !ok {
			desc.Warnings = append(desc.Warnings, warn)
		}
	} else {
		desc.Name = NameFromPath(mod.Path)
	}
	desc.QualifiedName = fmt.Sprintf("%s/%s", desc.Name, desc.Version)

	candidates, handlerWarnings := e.probeHandlers(ctx, mod)
	desc.CandidateHandlers = candidates
	desc.Warnings = append(desc.Warnings, handlerWarnings...)

	return desc
}

// probeFile fills size, timestamp and signature presence; stat failures
// degrade to a warning.
func (e *Extractor) probeFile(desc *Descriptor) {
	info, err := os.Stat(desc.Path)
	if err != nil {
		desc.Warnings = append(desc.Warnings, errors.Wrap(err, "stat module file").Error())
		return
	}
	desc.Size = info.Size()
	desc.ModTime = info.ModTime()

	if _, err := os.Stat(desc.Path + ".sig"); err == nil {
		desc.Signed = true
	}
}

// probeManifest reads the declared metadata block: the module's pk_manifest
// export first, then a sidecar file. Every failure degrades to a warning and
// the next source is tried.
func (e *Extractor) probeManifest(ctx context.Context, mod *Module) (*Manifest, []string) {
	var warnings []string

	if mod.HasExport(exportManifest) {
		inst, err := mod.Instance(ctx)
		if err != nil {
			warnings = append(warnings, errors.Wrap(err, "embedded manifest unavailable").Error())
		} else {
			raw, err := callNoArgs(ctx, inst, exportManifest)
			if err != nil {
				warnings = append(warnings, errors.Wrap(err, "read embedded manifest").Error())
			} else {
				m, err := ParseManifestJSON(raw)
				if err != nil {
					warnings = append(warnings, err.Error())
				} else {
					return m, warnings
				}
			}
		}
	}

	m, err := LoadSidecarManifest(mod.Path)
	if err != nil {
		warnings = append(warnings, err.Error())
		return nil, warnings
	}
	return m, warnings
}

// probeHandlers discovers candidate handlers: the declarative pk_handlers
// listing when present, otherwise the legacy export-name heuristic when it is
// enabled. Heuristic candidates are advisory and flagged as such.
func (e *Extractor) probeHandlers(ctx context.Context, mod *Module) ([]HandlerCandidate, []string) {
	var warnings []string

	if mod.HasExport(exportHandlers) {
		inst, err := mod.Instance(ctx)
		if err != nil {
			warnings = append(warnings, errors.Wrap(err, "handler listing unavailable").Error())
		} else {
			raw, err := callNoArgs(ctx, inst, exportHandlers)
			if err != nil {
				warnings = append(warnings, errors.Wrap(err, "read handler listing").Error())
			} else {
				candidates, err := parseHandlerListing(raw, mod)
				if err != nil {
					warnings = append(warnings, err.Error())
				} else {
					return candidates, warnings
				}
			}
		}
	}

	if !e.legacyHeuristics {
		return nil, warnings
	}

	candidates := scanLegacyExports(mod)
	if len(candidates) > 0 {
		warnings = append(warnings,
			fmt.Sprintf("module %s matched by legacy export naming only; handler detection is best-effort", NameFromPath(mod.Path)))
	}
	return candidates, warnings
}

// parseHandlerListing decodes the pk_handlers JSON: [{"type_id": ..., "export": ...}].
func parseHandlerListing(raw []byte, mod *Module) ([]HandlerCandidate, error) {
	var entries []struct {
		TypeID string `json:"type_id"`
		Export string `json:"export"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "parse handler listing")
	}

	var candidates []HandlerCandidate
	for _, entry := range entries {
		if entry.TypeID == "" || entry.Export == "" {
			continue
		}
		if !mod.HasExport(entry.Export) {
			return nil, errors.Newf("handler listing names missing export %q", entry.Export)
		}
		candidates = append(candidates, HandlerCandidate{
			TypeID: handler.NormalizeTypeID(entry.TypeID),
			Export: entry.Export,
		})
	}
	return candidates, nil
}

func targetRuntime(mod *Module) string {
	for _, def := range mod.compiled.ImportedFunctions() {
		if modName, _, isImport := def.Import(); isImport && strings.HasPrefix(modName, "wasi_") {
			return "wasip1"
		}
	}
	return "wasm-core"
}

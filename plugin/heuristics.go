package plugin

import (
	"strings"

	"github.com/wrenware/packhost/handler"
)

// Legacy handler detection. Older modules predate the pk_handlers listing and
// are recognized by export naming conventions instead: a "decode_" prefix, a
// "_wrapper" suffix, or "resource" anywhere in the name. The data-type
// identifier is recovered from a trailing hex segment when one exists. This
// inference over- and under-matches; results carry Heuristic=true and callers
// must treat them as advisory.

// scanLegacyExports walks the compiled module's exports looking for the
// legacy naming patterns.
func scanLegacyExports(mod *Module) []HandlerCandidate {
	var candidates []HandlerCandidate
	for name := range mod.Exports() {
		if !looksLikeLegacyHandler(name) {
			continue
		}
		candidates = append(candidates, HandlerCandidate{
			TypeID:    typeIDFromExportName(name),
			Export:    name,
			Heuristic: true,
		})
	}
	return candidates
}

func looksLikeLegacyHandler(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "decode_"):
		return true
	case strings.HasSuffix(lower, "_wrapper"):
		return true
	case strings.Contains(lower, "resource"):
		return true
	}
	return false
}

// typeIDFromExportName recovers an identifier from names like
// "decode_0x034aeecb" or "clip_resource_034aeecb". Returns "" when no
// trailing segment parses as hex.
func typeIDFromExportName(name string) string {
	segments := strings.Split(strings.ToLower(name), "_")
	last := segments[len(segments)-1]
	last = strings.TrimPrefix(last, "0x")
	if last == "" || !isHexSegment(last) {
		return ""
	}
	return handler.NormalizeTypeID(last)
}

func isHexSegment(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

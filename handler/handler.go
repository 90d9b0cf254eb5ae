// Package handler defines the capability surface a plugin provides to the host.
//
// A handler decodes one container entry format, keyed by a data-type identifier
// such as "0x034AEECB". Concrete handler implementations live inside plugins;
// the host only ever sees them through the Factory interface, which is the
// narrow, statically-typed registration surface a module populates at load time.
package handler

import (
	"context"
	"strings"
)

// Handler decodes raw container entries of one data type into their
// normalized representation.
type Handler interface {
	Decode(ctx context.Context, raw []byte) ([]byte, error)
}

// Factory produces handlers and declares which data-type identifiers it serves.
type Factory interface {
	// ResourceTypes lists the data-type identifiers this factory can decode.
	ResourceTypes() []string

	// New returns a handler instance. Instances are cheap; callers may
	// request one per decode.
	New() Handler
}

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context, raw []byte) ([]byte, error)

// Decode implements Handler.
func (f Func) Decode(ctx context.Context, raw []byte) ([]byte, error) {
	return f(ctx, raw)
}

// NormalizeTypeID canonicalizes a data-type identifier: "0x" prefix, upper-case
// hex digits. Identifiers that do not look like hex literals are returned
// trimmed but otherwise untouched.
func NormalizeTypeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 2 && (id[:2] == "0x" || id[:2] == "0X") {
		return "0x" + strings.ToUpper(id[2:])
	}
	if id != "" && isHex(id) {
		return "0x" + strings.ToUpper(id)
	}
	return id
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

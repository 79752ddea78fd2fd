package tomorrowland

import "errors"

const Namespace = "tomorrowland"

var (
	// ErrAPIMismatch is reported by Resolver.HandleCallback adapters when the
	// completion handler is invoked with neither a value nor an error.
	ErrAPIMismatch = errors.New(Namespace + ": completion handler invoked with neither value nor error")
)

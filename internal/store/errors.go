package store

import "errors"

// ErrNoRegistry is returned by GetRegistry before any registry has ever been
// installed. Callers should treat it as "not yet initialized", not as a
// storage failure.
var ErrNoRegistry = errors.New("store: no registry installed")

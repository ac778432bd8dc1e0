package index

import "errors"

// ErrUnknownIndexType is returned by Open for an index Type with no
// registered implementation.
var ErrUnknownIndexType = errors.New("index: unknown index type")

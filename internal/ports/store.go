package ports

import "errors"

// ErrNotFound is returned by stores when a point lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate")

package vfs

import "errors"

// ErrNotSupported is returned by every write path the facade exposes:
// all operations are read-only, and writes fail with an explicit
// "not supported" kind.
var ErrNotSupported = errors.New("vfs: write operations are not supported")

// ErrInvalidPath names an invalid facade path. The facade itself does not
// return it: Open reports a path outside the three top-level directories
// (/datasets, /metadata, /queries) as fs.ErrNotExist.
var ErrInvalidPath = errors.New("vfs: invalid path")

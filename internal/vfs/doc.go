/*
Package vfs implements the Virtual Filesystem Facade: a read-only
filesystem view over the Columnar Bridge, exposing datasets, sidecar
metadata, and cached query results as paths.

FS implements the standard io/fs.FS, fs.ReadDirFS, and fs.StatFS
interfaces, which is the idiomatic Go way to present a read-only
filesystem to any FS-shaped consumer: any stdlib or third-party code
that accepts fs.FS works against it unmodified. Higher level helpers
(Ls, Info, Exists, CatFile) mirror the named operations for callers
that want structured results instead of raw fs.DirEntry/fs.FileInfo
values.

Listing caches for /datasets and /metadata are invalidated by a
github.com/fsnotify/fsnotify watch on the Bridge's metadata directory
rather than a rescan on every call.
*/
package vfs

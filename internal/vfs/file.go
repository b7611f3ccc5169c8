package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"time"
)

// fileInfo is a minimal fs.FileInfo over an in-memory or sidecar byte
// sequence; the facade never stats the real filesystem directly for
// dataset/metadata entries, since those are synthesized views over the
// Bridge.
type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) ModTime() time.Time { return fi.modTime }
func (fi fileInfo) IsDir() bool        { return fi.isDir }
func (fi fileInfo) Sys() interface{}   { return nil }
func (fi fileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

// dirEntry adapts fileInfo to fs.DirEntry for ReadDir results.
type dirEntry struct{ info fileInfo }

func (d dirEntry) Name() string               { return d.info.Name() }
func (d dirEntry) IsDir() bool                { return d.info.IsDir() }
func (d dirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.info, nil }

// byteFile is a read-only fs.File over an in-memory byte slice, used for
// every leaf path the facade serves, presented as a byte sequence.
type byteFile struct {
	info   fileInfo
	reader *bytes.Reader
}

func newByteFile(name string, data []byte) *byteFile {
	return &byteFile{
		info:   fileInfo{name: name, size: int64(len(data)), modTime: time.Now()},
		reader: bytes.NewReader(data),
	}
}

func (f *byteFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *byteFile) Read(p []byte) (int, error) { return f.reader.Read(p) }
func (f *byteFile) Close() error               { return nil }
func (f *byteFile) Seek(offset int64, whence int) (int64, error) {
	return f.reader.Seek(offset, whence)
}

// dirFile is a read-only fs.ReadDirFile over a fixed set of entries.
type dirFile struct {
	info    fileInfo
	entries []fs.DirEntry
	pos     int
}

func newDirFile(name string, entries []fs.DirEntry) *dirFile {
	return &dirFile{info: fileInfo{name: name, isDir: true, modTime: time.Now()}, entries: entries}
}

func (f *dirFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *dirFile) Read([]byte) (int, error)   { return 0, io.EOF }
func (f *dirFile) Close() error               { return nil }
func (f *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		out := f.entries[f.pos:]
		f.pos = len(f.entries)
		return out, nil
	}
	if f.pos >= len(f.entries) {
		return nil, io.EOF
	}
	end := f.pos + n
	if end > len(f.entries) {
		end = len(f.entries)
	}
	out := f.entries[f.pos:end]
	f.pos = end
	return out, nil
}

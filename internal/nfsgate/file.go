package nfsgate

import (
	"io"

	billy "github.com/go-git/go-billy/v5"
)

// bytesFile is one attribute value captured at open time.
type bytesFile struct {
	name string
	data []byte
	pos  int64
}

func (f *bytesFile) Name() string { return f.name }

func (f *bytesFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	if f.pos >= int64(len(f.data)) {
		return n, io.EOF
	}
	return n, nil
}

func (f *bytesFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *bytesFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(len(f.data)) + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *bytesFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *bytesFile) Truncate(int64) error      { return errReadOnly }
func (f *bytesFile) Lock() error               { return nil }
func (f *bytesFile) Unlock() error             { return nil }
func (f *bytesFile) Close() error              { return nil }

// writeFile buffers WRITE RPCs and sets the attribute when the file is
// closed.
type writeFile struct {
	path    string
	buf     []byte
	pos     int64
	dirty   bool
	onClose func(path string, content []byte) error
}

func (f *writeFile) Name() string { return f.path }

func (f *writeFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *writeFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *writeFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

func (f *writeFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(len(f.buf)) + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *writeFile) Truncate(size int64) error {
	if size < int64(len(f.buf)) {
		f.buf = f.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.buf)
		f.buf = grown
	}
	f.dirty = true
	return nil
}

func (f *writeFile) Close() error {
	if !f.dirty || f.onClose == nil {
		return nil
	}
	f.dirty = false
	return f.onClose(f.path, f.buf)
}

func (f *writeFile) Lock() error   { return nil }
func (f *writeFile) Unlock() error { return nil }

var (
	_ billy.File = (*bytesFile)(nil)
	_ billy.File = (*writeFile)(nil)
)

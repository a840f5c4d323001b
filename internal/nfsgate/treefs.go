// Package nfsgate exposes a live hearth tree as an NFS export. It
// adapts the client's session protocol to billy.Filesystem for use
// with willscott/go-nfs: directories are tree nodes, files are
// attributes, and writing a file sets the attribute's value.
package nfsgate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/hearthgrid/hearth/api"
)

var errReadOnly = errors.New("read-only filesystem")

// Browser is the slice of the client surface the gateway needs.
// *client.Client satisfies it.
type Browser interface {
	ListDirectory(ctx context.Context, path string) ([]string, error)
	GetFile(ctx context.Context, path string) (string, error)
	SetFile(ctx context.Context, path, value string) ([]api.PathValue, error)
}

// TreeFS adapts a hearth tree to billy.Filesystem. Every call reads
// through to the server, so the mount always shows committed state.
type TreeFS struct {
	ctx       context.Context
	browser   Browser
	mountTime time.Time
	writable  bool
}

func NewTreeFS(ctx context.Context, b Browser) *TreeFS {
	return &TreeFS{ctx: ctx, browser: b, mountTime: time.Now()}
}

// SetWritable enables write-through: closing a written file sets the
// attribute. Formula-backed attributes still reject the write
// server-side.
func (fs *TreeFS) SetWritable() {
	fs.writable = true
}

// --- billy.Basic ---

func (fs *TreeFS) Create(filename string) (billy.File, error) {
	if !fs.writable {
		return nil, errReadOnly
	}
	filename = cleanPath(filename)
	if _, err := fs.browser.GetFile(fs.ctx, filename); err != nil {
		return nil, &os.PathError{Op: "create", Path: filename, Err: os.ErrNotExist}
	}
	// NFS CREATE on an existing attribute; the content arrives through
	// later WRITE RPCs, so hand back a throwaway file.
	return &bytesFile{name: filename}, nil
}

func (fs *TreeFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *TreeFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)

	writing := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0
	if writing {
		if !fs.writable {
			return nil, errReadOnly
		}
		return fs.openWritable(filename, flag)
	}

	value, err := fs.browser.GetFile(fs.ctx, filename)
	if err != nil {
		return nil, openError("open", filename, err)
	}
	return &bytesFile{name: filename, data: renderValue(value)}, nil
}

func (fs *TreeFS) openWritable(filename string, flag int) (billy.File, error) {
	value, err := fs.browser.GetFile(fs.ctx, filename)
	if err != nil {
		return nil, openError("open", filename, err)
	}
	var buf []byte
	if flag&os.O_TRUNC == 0 {
		buf = renderValue(value)
	}
	return &writeFile{
		path:    filename,
		buf:     buf,
		onClose: fs.writeBack,
	}, nil
}

func (fs *TreeFS) writeBack(path string, content []byte) error {
	// Editors append a trailing newline; the attribute value carries
	// none.
	value := strings.TrimSuffix(string(content), "\n")
	_, err := fs.browser.SetFile(fs.ctx, path, value)
	return err
}

func (fs *TreeFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *TreeFS) Rename(oldpath, newpath string) error {
	return errReadOnly
}

func (fs *TreeFS) Remove(filename string) error {
	return errReadOnly
}

func (fs *TreeFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *TreeFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *TreeFS) ReadDir(path string) ([]os.FileInfo, error) {
	path = cleanPath(path)

	names, err := fs.browser.ListDirectory(fs.ctx, path)
	if err != nil {
		return nil, openError("readdir", path, err)
	}

	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		info, err := fs.Lstat(childPath(path, name))
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (fs *TreeFS) MkdirAll(filename string, perm os.FileMode) error {
	return errReadOnly
}

// --- billy.Symlink ---

func (fs *TreeFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)

	if filename == "/" {
		return &staticFileInfo{
			name:    "/",
			mode:    os.ModeDir | 0o555,
			modTime: fs.mountTime,
		}, nil
	}

	// Attributes satisfy GetFile; anything listable is a directory.
	if value, err := fs.browser.GetFile(fs.ctx, filename); err == nil {
		mode := os.FileMode(0o444)
		if fs.writable {
			mode = 0o644
		}
		return &staticFileInfo{
			name:    filepath.Base(filename),
			size:    int64(len(renderValue(value))),
			mode:    mode,
			modTime: fs.mountTime,
		}, nil
	}

	if _, err := fs.browser.ListDirectory(fs.ctx, filename); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	return &staticFileInfo{
		name:    filepath.Base(filename),
		mode:    os.ModeDir | 0o555,
		modTime: fs.mountTime,
	}, nil
}

func (fs *TreeFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *TreeFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *TreeFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *TreeFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *TreeFS) Capabilities() billy.Capability {
	caps := billy.ReadCapability | billy.SeekCapability
	if fs.writable {
		caps |= billy.WriteCapability
	}
	return caps
}

// --- internals ---

// renderValue is the file image of an attribute value. The trailing
// newline keeps cat output readable.
func renderValue(value string) []byte {
	return append([]byte(value), '\n')
}

func cleanPath(path string) string {
	path = filepath.Clean("/" + path)
	if path == "." {
		return "/"
	}
	return path
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func openError(op, path string, err error) error {
	var remote *api.RemoteError
	if errors.As(err, &remote) {
		switch remote.Name {
		case api.ErrNameNotFound:
			return &os.PathError{Op: op, Path: path, Err: os.ErrNotExist}
		case api.ErrNameNotFile, api.ErrNameNotDirectory:
			return &os.PathError{Op: op, Path: path, Err: errors.New(remote.Context)}
		}
	}
	return &os.PathError{Op: op, Path: path, Err: err}
}

type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*TreeFS)(nil)
	_ billy.Capable    = (*TreeFS)(nil)
)

package tree

import "errors"

var (
	ErrNotFound      = errors.New("no such node")
	ErrAlreadyExists = errors.New("node already exists")
	ErrReadOnly      = errors.New("attribute is formula-backed")
	ErrNotDirectory  = errors.New("not a directory")
	ErrNotFile       = errors.New("not a file")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidGlob   = errors.New("invalid glob")
	ErrBadSelector   = errors.New("invalid selector")
)

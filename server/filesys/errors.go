package filesys

import "errors"

var (
	ErrCreateFailed = errors.New("file could not be created")
	ErrNotFound     = errors.New("file not found")
	ErrShortWrite   = errors.New("file system accepted fewer bytes than written")
	ErrContent      = errors.New("file contents do not match what was written")
)

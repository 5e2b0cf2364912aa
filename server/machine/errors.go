package machine

import "errors"

var (
	ErrBadMagic       = errors.New("disk image has a bad magic number")
	ErrShortImage     = errors.New("disk image is shorter than the disk")
	ErrGeometry       = errors.New("disk image geometry does not match")
	ErrStoreClosed    = errors.New("block store is closed")
	ErrDiskBusy       = errors.New("disk has a request in flight")
	ErrSnapshotFormat = errors.New("snapshot header is malformed")
)

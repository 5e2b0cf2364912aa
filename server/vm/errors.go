package vm

import "errors"

var (
	ErrBadNoffMagic    = errors.New("executable is not in NOFF format")
	ErrShortExecutable = errors.New("executable is shorter than its header")
	ErrSegmentRange    = errors.New("segment lies outside the address space")
	ErrNoSuchThread    = errors.New("no such thread")
	ErrThreadExited    = errors.New("thread has already exited")
)

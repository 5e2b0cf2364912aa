package kernel

import "github.com/juju/errors"

var (
	errNoExecutable = errors.New("executable not found in file system")
	errInstall      = errors.New("executable could not be installed")
	errVMCheck      = errors.New("virtual memory check read back a wrong value")
)

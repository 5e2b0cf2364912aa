package filesys

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// TransferSize 复制与打印时每次传输的字节数
const TransferSize = 1000

const (
	perfFileName    = "TestFile1"
	perfContents    = "1234567890"
	perfFileSize    = len(perfContents) * 20
	perfInitialSize = 128
)

// Copy 将宿主机文件 from 复制为文件系统中的 to
func (fs *FileSystem) Copy(from string, to string) error {
	fp, err := os.Open(from)
	if err != nil {
		return errors.Wrapf(err, "open host file %s", from)
	}
	defer fp.Close()

	info, err := fp.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat host file %s", from)
	}
	if !fs.Create(to, int(info.Size())) {
		return errors.Wrapf(ErrCreateFailed, "copy %s to %s", from, to)
	}
	file := fs.Open(to)
	if file == nil {
		return errors.Wrapf(ErrNotFound, "open %s after create", to)
	}

	buffer := make([]byte, TransferSize)
	for {
		n, err := fp.Read(buffer)
		if n > 0 {
			if written := file.Write(buffer, n); written < n {
				return errors.Wrapf(ErrShortWrite, "copy %s: wrote %d of %d bytes", to, written, n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read host file %s", from)
		}
	}
}

// Cat 将文件内容输出到 w
func (fs *FileSystem) Cat(name string, w io.Writer) error {
	file := fs.Open(name)
	if file == nil {
		return errors.Wrapf(ErrNotFound, "print %s", name)
	}
	buffer := make([]byte, TransferSize)
	for {
		n := file.Read(buffer, TransferSize)
		if n == 0 {
			return nil
		}
		if _, err := w.Write(buffer[:n]); err != nil {
			return errors.WithStack(err)
		}
	}
}

// PerformanceTest 以小块顺序写入再读出一个文件, 然后删除它.
// 文件以较小的初始长度创建, 写入过程会触发扩展.
func (fs *FileSystem) PerformanceTest(w io.Writer) error {
	fmt.Fprintln(w, "Starting file system performance test:")
	if !fs.Create(perfFileName, perfInitialSize) {
		return errors.Wrapf(ErrCreateFailed, "perf test: create %s", perfFileName)
	}

	fmt.Fprintf(w, "Sequential write of %d byte file, in %d byte chunks\n", perfFileSize, len(perfContents))
	file := fs.Open(perfFileName)
	if file == nil {
		return errors.Wrapf(ErrNotFound, "perf test: open %s", perfFileName)
	}
	for i := 0; i < perfFileSize; i += len(perfContents) {
		if n := file.Write([]byte(perfContents), len(perfContents)); n < len(perfContents) {
			return errors.Wrapf(ErrShortWrite, "perf test: write %s at %d", perfFileName, i)
		}
	}

	fmt.Fprintf(w, "Sequential read of %d byte file, in %d byte chunks\n", perfFileSize, len(perfContents))
	file = fs.Open(perfFileName)
	buffer := make([]byte, len(perfContents))
	for i := 0; i < perfFileSize; i += len(perfContents) {
		n := file.Read(buffer, len(perfContents))
		if n < len(perfContents) || !bytes.Equal(buffer, []byte(perfContents)) {
			return errors.Wrapf(ErrContent, "perf test: read %s at %d", perfFileName, i)
		}
	}

	if !fs.Remove(perfFileName) {
		return errors.Wrapf(ErrNotFound, "perf test: remove %s", perfFileName)
	}
	return nil
}

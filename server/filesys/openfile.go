package filesys

import (
	"github.com/zhukovaskychina/xnachos/server/filesys/filehdr"
)

// OpenFile 打开的文件. 同一个文件可以被打开多次, 各自维护读写位置.
// 文件头以磁盘上的为准, 每次访问前重新读取, 因此一个句柄扩展文件后其他句柄立即可见.
type OpenFile struct {
	fs           *FileSystem
	hdr          *filehdr.FileHeader
	sector       int
	seekPosition int
}

func newOpenFile(fs *FileSystem, sector int) *OpenFile {
	hdr := filehdr.NewFileHeader(fs.dev)
	hdr.FetchFrom(sector)
	return &OpenFile{fs: fs, hdr: hdr, sector: sector}
}

// reload 从文件头扇区重新读取文件头
func (f *OpenFile) reload() {
	f.hdr.FetchFrom(f.sector)
}

// Seek 设置读写位置
func (f *OpenFile) Seek(position int) {
	f.seekPosition = position
}

// Length 文件字节数
func (f *OpenFile) Length() int {
	f.reload()
	return f.hdr.FileLength()
}

// Sector 文件头所在扇区
func (f *OpenFile) Sector() int {
	return f.sector
}

// Header 文件头
func (f *OpenFile) Header() *filehdr.FileHeader {
	f.reload()
	return f.hdr
}

// Read 从当前位置读取, 并推进位置
func (f *OpenFile) Read(into []byte, numBytes int) int {
	result := f.ReadAt(into, numBytes, f.seekPosition)
	f.seekPosition += result
	return result
}

// Write 从当前位置写入, 并推进位置
func (f *OpenFile) Write(from []byte, numBytes int) int {
	result := f.WriteAt(from, numBytes, f.seekPosition)
	f.seekPosition += result
	return result
}

// ReadAt 从 position 处读取至多 numBytes 字节, 不超过文件末尾. 返回实际读取的字节数.
func (f *OpenFile) ReadAt(into []byte, numBytes int, position int) int {
	f.reload()
	fileLength := f.hdr.FileLength()
	if numBytes <= 0 || position < 0 || position >= fileLength {
		return 0
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}

	ss := f.fs.sectorSize
	first := position / ss
	last := (position + numBytes - 1) / ss
	buf := make([]byte, (last-first+1)*ss)
	for i := first; i <= last; i++ {
		f.fs.dev.ReadSector(f.hdr.ByteToSector(i*ss), buf[(i-first)*ss:(i-first+1)*ss])
	}
	copy(into[:numBytes], buf[position-first*ss:])
	return numBytes
}

// WriteAt 在 position 处写入 numBytes 字节. 超出文件末尾时先扩展文件并写回文件头;
// 磁盘空间不足时只写到原文件末尾为止. 返回实际写入的字节数.
func (f *OpenFile) WriteAt(from []byte, numBytes int, position int) int {
	if numBytes <= 0 || position < 0 {
		return 0
	}
	f.reload()
	if position+numBytes > f.hdr.FileLength() && !f.fs.extend(f, position+numBytes) {
		numBytes = f.hdr.FileLength() - position
		if numBytes <= 0 {
			return 0
		}
	}

	ss := f.fs.sectorSize
	first := position / ss
	last := (position + numBytes - 1) / ss
	buf := make([]byte, (last-first+1)*ss)

	// 首尾扇区只写一部分时, 先读出原内容
	firstAligned := position == first*ss
	lastAligned := position+numBytes == (last+1)*ss
	if !firstAligned {
		f.ReadAt(buf[:ss], ss, first*ss)
	}
	if !lastAligned && (first != last || firstAligned) {
		f.ReadAt(buf[(last-first)*ss:], ss, last*ss)
	}
	copy(buf[position-first*ss:], from[:numBytes])

	for i := first; i <= last; i++ {
		f.fs.dev.WriteSector(f.hdr.ByteToSector(i*ss), buf[(i-first)*ss:(i-first+1)*ss])
	}
	return numBytes
}

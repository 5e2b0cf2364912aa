// Package filesys 在同步磁盘之上实现扁平的文件系统.
//
// 磁盘布局: 扇区 0 是空闲位图文件的文件头, 扇区 1 是目录文件的文件头.
// 这两个文件长度固定, 像普通文件一样通过 OpenFile 读写.
// 创建、删除以及文件扩展都会修改空闲位图和目录, 由 FileSystem 的锁串行化.
package filesys

import (
	"fmt"
	"io"
	"sync"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/filesys/bitmap"
	"github.com/zhukovaskychina/xnachos/server/filesys/filehdr"
	"github.com/zhukovaskychina/xnachos/server/metrics"
	"github.com/zhukovaskychina/xnachos/util"
)

const (
	FreeMapSector   = 0
	DirectorySector = 1

	DefaultNumDirEntries  = 10
	DefaultFileNameMaxLen = 9
)

// Device 文件系统所需的块设备
type Device interface {
	filehdr.SectorDevice
	NumSectors() int
}

// Options 目录参数
type Options struct {
	NumDirEntries  int
	FileNameMaxLen int
}

// DefaultOptions 默认目录参数
func DefaultOptions() Options {
	return Options{NumDirEntries: DefaultNumDirEntries, FileNameMaxLen: DefaultFileNameMaxLen}
}

// FileSystem 文件系统
type FileSystem struct {
	mu sync.Mutex

	dev        Device
	sectorSize int
	numSectors int
	opts       Options

	freeMapFile   *OpenFile
	directoryFile *OpenFile

	metrics *metrics.Registry
}

// NewFileSystem 挂载 dev 上的文件系统. format 为 true 时先格式化.
func NewFileSystem(dev Device, opts Options, format bool, reg *metrics.Registry) *FileSystem {
	fs := &FileSystem{
		dev:        dev,
		sectorSize: dev.SectorSize(),
		numSectors: dev.NumSectors(),
		opts:       opts,
		metrics:    reg,
	}
	if format {
		fs.format()
	}
	fs.freeMapFile = newOpenFile(fs, FreeMapSector)
	fs.directoryFile = newOpenFile(fs, DirectorySector)
	return fs
}

func (fs *FileSystem) format() {
	logger.Infof("formatting file system: %d sectors of %d bytes", fs.numSectors, fs.sectorSize)

	freeMap := bitmap.NewBitMap(fs.numSectors)
	directory := fs.newDirectory()
	freeMap.Mark(FreeMapSector)
	freeMap.Mark(DirectorySector)

	mapHdr := filehdr.NewFileHeader(fs.dev)
	dirHdr := filehdr.NewFileHeader(fs.dev)
	util.Assert(mapHdr.Allocate(freeMap, freeMap.NumBytes()), "no space for the free map file")
	util.Assert(dirHdr.Allocate(freeMap, directory.FileSize()), "no space for the directory file")
	mapHdr.WriteBack(FreeMapSector)
	dirHdr.WriteBack(DirectorySector)

	fs.freeMapFile = newOpenFile(fs, FreeMapSector)
	fs.directoryFile = newOpenFile(fs, DirectorySector)
	freeMap.WriteBack(fs.freeMapFile)
	directory.WriteBack(fs.directoryFile)
}

func (fs *FileSystem) newDirectory() *Directory {
	return NewDirectory(fs.opts.NumDirEntries, fs.opts.FileNameMaxLen)
}

func (fs *FileSystem) loadFreeMap() *bitmap.BitMap {
	freeMap := bitmap.NewBitMap(fs.numSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	return freeMap
}

func (fs *FileSystem) loadDirectory() *Directory {
	directory := fs.newDirectory()
	directory.FetchFrom(fs.directoryFile)
	return directory
}

// Create 创建初始长度为 initialSize 的文件. 重名、目录已满或磁盘空间不足时返回 false.
func (fs *FileSystem) Create(name string, initialSize int) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ok := fs.create(name, initialSize)
	fs.metrics.RecordFileOperation("create", ok)
	logger.Debugf("create %s size %d: %v", name, initialSize, ok)
	return ok
}

func (fs *FileSystem) create(name string, initialSize int) bool {
	directory := fs.loadDirectory()
	if directory.Find(name) != -1 {
		return false
	}

	freeMap := fs.loadFreeMap()
	sector := freeMap.Find()
	if sector == -1 {
		return false
	}
	if !directory.Add(name, sector) {
		return false
	}
	hdr := filehdr.NewFileHeader(fs.dev)
	if !hdr.Allocate(freeMap, initialSize) {
		return false
	}

	fs.zeroSectors(hdr.DataSectors())
	hdr.WriteBack(sector)
	directory.WriteBack(fs.directoryFile)
	freeMap.WriteBack(fs.freeMapFile)
	return true
}

// Open 打开文件, 文件不存在时返回 nil
func (fs *FileSystem) Open(name string) *OpenFile {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sector := fs.loadDirectory().Find(name)
	fs.metrics.RecordFileOperation("open", sector >= 0)
	if sector < 0 {
		return nil
	}
	return newOpenFile(fs, sector)
}

// Remove 删除文件并释放其全部扇区
func (fs *FileSystem) Remove(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	directory := fs.loadDirectory()
	sector := directory.Find(name)
	if sector == -1 {
		fs.metrics.RecordFileOperation("remove", false)
		return false
	}

	hdr := filehdr.NewFileHeader(fs.dev)
	hdr.FetchFrom(sector)

	freeMap := fs.loadFreeMap()
	hdr.Deallocate(freeMap)
	freeMap.Clear(sector)
	directory.Remove(name)

	freeMap.WriteBack(fs.freeMapFile)
	directory.WriteBack(fs.directoryFile)
	fs.metrics.RecordFileOperation("remove", true)
	logger.Debugf("removed %s (header sector %d)", name, sector)
	return true
}

// extend 把打开的文件扩展到 newLength 字节, 新增的数据块清零.
// 只用于普通文件, 位图文件和目录文件长度固定.
func (fs *FileSystem) extend(f *OpenFile, newLength int) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// 其他句柄可能已经扩展过, 以磁盘上的文件头为准
	f.reload()
	freeMap := fs.loadFreeMap()
	oldBlocks := f.hdr.NumSectors()
	if !f.hdr.Expand(freeMap, newLength) {
		fs.metrics.RecordFileOperation("extend", false)
		logger.Warnf("cannot extend file at sector %d to %d bytes: disk full", f.sector, newLength)
		return false
	}

	fs.zeroSectors(f.hdr.DataSectors()[oldBlocks:])
	f.hdr.WriteBack(f.sector)
	freeMap.WriteBack(fs.freeMapFile)
	fs.metrics.RecordFileOperation("extend", true)
	return true
}

// zeroSectors 清零数据块
func (fs *FileSystem) zeroSectors(sectors []int) {
	zero := make([]byte, fs.sectorSize)
	for _, s := range sectors {
		fs.dev.WriteSector(s, zero)
	}
}

// Names 目录中的全部文件名
func (fs *FileSystem) Names() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var names []string
	for _, e := range fs.loadDirectory().Entries() {
		names = append(names, e.Name)
	}
	return names
}

// FreeSectors 空闲扇区数
func (fs *FileSystem) FreeSectors() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.loadFreeMap().NumClear()
}

// List 列出目录
func (fs *FileSystem) List(w io.Writer) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.loadDirectory().List(w)
}

// Print 打印位图、目录以及每个文件的文件头和内容
func (fs *FileSystem) Print(w io.Writer) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fmt.Fprintln(w, "Bit map file header:")
	fs.freeMapFile.hdr.Print(w)
	fmt.Fprintln(w, "Directory file header:")
	fs.directoryFile.hdr.Print(w)

	fs.loadFreeMap().Print(w)

	fmt.Fprintln(w, "Directory contents:")
	for _, e := range fs.loadDirectory().Entries() {
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", e.Name, e.Sector)
		hdr := filehdr.NewFileHeader(fs.dev)
		hdr.FetchFrom(e.Sector)
		hdr.Print(w)
	}
	fmt.Fprintln(w)
}

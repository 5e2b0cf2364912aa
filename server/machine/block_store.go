package machine

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xnachos/util"
)

// DiskMagic 磁盘镜像文件头部的魔数
const DiskMagic = 0x456789ab

// magicSize 文件镜像中魔数占用的字节数
const magicSize = 4

// BlockStore 磁盘的后备存储, 按固定大小的块读写
type BlockStore interface {
	ReadBlock(blockNo int, data []byte) error
	WriteBlock(blockNo int, data []byte) error
	NumBlocks() int
	BlockSize() int
	Close() error
}

// MemStore 内存中的块存储
type MemStore struct {
	mu        sync.RWMutex
	blockSize int
	blocks    [][]byte
}

var _ BlockStore = (*MemStore)(nil)

// NewMemStore 创建 numBlocks 个全零块
func NewMemStore(blockSize, numBlocks int) *MemStore {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemStore{blockSize: blockSize, blocks: blocks}
}

func (ms *MemStore) ReadBlock(blockNo int, data []byte) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	copy(data, ms.blocks[blockNo])
	return nil
}

func (ms *MemStore) WriteBlock(blockNo int, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	copy(ms.blocks[blockNo], data)
	return nil
}

func (ms *MemStore) NumBlocks() int { return len(ms.blocks) }

func (ms *MemStore) BlockSize() int { return ms.blockSize }

func (ms *MemStore) Close() error { return nil }

// FileStore 以宿主机文件保存磁盘内容: 4 字节魔数之后依次存放每个扇区
type FileStore struct {
	mu        sync.RWMutex
	file      *os.File
	filePath  string
	blockSize int
	numBlocks int
}

var _ BlockStore = (*FileStore)(nil)

// OpenFileStore 打开或创建磁盘镜像文件. 新文件写入魔数并扩展到完整大小,
// 已有文件校验魔数与长度.
func OpenFileStore(filePath string, blockSize, numBlocks int) (*FileStore, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open disk image %s", filePath)
	}
	fs := &FileStore{
		file:      file,
		filePath:  filePath,
		blockSize: blockSize,
		numBlocks: numBlocks,
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat disk image %s", filePath)
	}
	size := int64(magicSize + blockSize*numBlocks)

	if stat.Size() == 0 {
		magic := make([]byte, magicSize)
		util.WriteUB4(magic, 0, DiskMagic)
		if _, err := file.WriteAt(magic, 0); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "init disk image %s", filePath)
		}
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "size disk image %s", filePath)
		}
		return fs, nil
	}

	magic := make([]byte, magicSize)
	if _, err := file.ReadAt(magic, 0); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "read magic of %s", filePath)
	}
	if _, m := util.ReadUB4(magic, 0); m != DiskMagic {
		file.Close()
		return nil, errors.Wrapf(ErrBadMagic, "%s: 0x%x", filePath, m)
	}
	if stat.Size() < size {
		file.Close()
		return nil, errors.Wrapf(ErrShortImage, "%s: %d < %d bytes", filePath, stat.Size(), size)
	}
	return fs, nil
}

func (fs *FileStore) offset(blockNo int) int64 {
	return int64(magicSize) + int64(blockNo)*int64(fs.blockSize)
}

func (fs *FileStore) ReadBlock(blockNo int, data []byte) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.file == nil {
		return ErrStoreClosed
	}
	_, err := fs.file.ReadAt(data[:fs.blockSize], fs.offset(blockNo))
	return errors.Wrapf(err, "read sector %d", blockNo)
}

func (fs *FileStore) WriteBlock(blockNo int, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return ErrStoreClosed
	}
	_, err := fs.file.WriteAt(data[:fs.blockSize], fs.offset(blockNo))
	return errors.Wrapf(err, "write sector %d", blockNo)
}

func (fs *FileStore) NumBlocks() int { return fs.numBlocks }

func (fs *FileStore) BlockSize() int { return fs.blockSize }

// Sync 将文件内容刷到宿主机磁盘
func (fs *FileStore) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file != nil {
		return fs.file.Sync()
	}
	return nil
}

// Close 关闭镜像文件
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file != nil {
		err := fs.file.Close()
		fs.file = nil
		return err
	}
	return nil
}

// Package filehdr 实现文件头: 记录文件长度以及数据块所在扇区.
//
// 文件头恰好占用一个扇区, 其中 directBlocks 存放的不是数据块, 而是索引块
// (半间接块) 的扇区号. 每个索引块再存放 NumSemiDirect 个数据块扇区号.
// 第 k 个数据块位于第 k/NumSemiDirect 个索引块的第 k%NumSemiDirect 项.
package filehdr

import (
	"fmt"
	"io"

	"github.com/zhukovaskychina/xnachos/server/filesys/bitmap"
	"github.com/zhukovaskychina/xnachos/util"
)

// headerFixedSize byteLength 与 blockCount 两个 int32
const headerFixedSize = 8

// SectorDevice 文件头读写扇区所需的块设备
type SectorDevice interface {
	ReadSector(sectorNumber int, data []byte)
	WriteSector(sectorNumber int, data []byte)
	SectorSize() int
}

// Geometry 由扇区大小推导出的文件头布局
type Geometry struct {
	SectorSize    int
	NumDirect     int
	NumSemiDirect int
}

// NewGeometry 计算给定扇区大小下的布局
func NewGeometry(sectorSize int) Geometry {
	util.Assert(sectorSize > headerFixedSize && sectorSize%4 == 0, "sector size %d cannot hold a file header", sectorSize)
	return Geometry{
		SectorSize:    sectorSize,
		NumDirect:     (sectorSize - headerFixedSize) / 4,
		NumSemiDirect: sectorSize / 4,
	}
}

// MaxFileSize 单个文件可达到的最大字节数
func (g Geometry) MaxFileSize() int {
	return g.NumDirect * g.NumSemiDirect * g.SectorSize
}

// FileHeader 文件头
type FileHeader struct {
	dev  SectorDevice
	geom Geometry

	byteLength   int
	blockCount   int
	directBlocks []int
}

// NewFileHeader 创建一个空的文件头, 之后通过 Allocate 或 FetchFrom 初始化
func NewFileHeader(dev SectorDevice) *FileHeader {
	geom := NewGeometry(dev.SectorSize())
	return &FileHeader{
		dev:          dev,
		geom:         geom,
		directBlocks: make([]int, geom.NumDirect),
	}
}

// Geometry 文件头布局
func (h *FileHeader) Geometry() Geometry { return h.geom }

// FileLength 文件字节数
func (h *FileHeader) FileLength() int { return h.byteLength }

// NumSectors 数据块个数
func (h *FileHeader) NumSectors() int { return h.blockCount }

// IndexBlockCount 索引块个数
func (h *FileHeader) IndexBlockCount() int {
	return util.DivRoundUp(h.blockCount, h.geom.NumSemiDirect)
}

// IndexSectors 各索引块的扇区号
func (h *FileHeader) IndexSectors() []int {
	out := make([]int, h.IndexBlockCount())
	copy(out, h.directBlocks)
	return out
}

func (h *FileHeader) counts(byteLength int) (blocks int, indexes int) {
	blocks = util.DivRoundUp(byteLength, h.geom.SectorSize)
	indexes = util.DivRoundUp(blocks, h.geom.NumSemiDirect)
	return blocks, indexes
}

// Allocate 为长度为 fileSize 的新文件分配索引块和数据块.
// 空间不足或超出单文件上限时返回 false, 此时 freeMap 不被修改.
func (h *FileHeader) Allocate(freeMap *bitmap.BitMap, fileSize int) bool {
	util.Assert(fileSize >= 0, "negative file size %d", fileSize)
	blocks, indexes := h.counts(fileSize)
	if indexes > h.geom.NumDirect || freeMap.NumClear() < blocks+indexes {
		return false
	}

	group, ok := freeMap.FindGroup(indexes)
	util.Assert(ok, "free map lost %d index blocks", indexes)
	for i := range h.directBlocks {
		h.directBlocks[i] = 0
	}
	copy(h.directBlocks, group)

	h.blockCount = 0
	h.growData(freeMap, blocks)
	h.byteLength = fileSize
	return true
}

// Expand 将文件扩展到 newSize 字节. 先检查空间, 再修改; 失败时不产生副作用.
// newSize 不大于当前长度时什么都不做. 只修改内存中的文件头, 由调用者写回.
func (h *FileHeader) Expand(freeMap *bitmap.BitMap, newSize int) bool {
	if newSize <= h.byteLength {
		return true
	}
	oldIndexes := h.IndexBlockCount()
	blocks, indexes := h.counts(newSize)
	if indexes > h.geom.NumDirect ||
		freeMap.NumClear() < (blocks-h.blockCount)+(indexes-oldIndexes) {
		return false
	}

	if indexes > oldIndexes {
		group, ok := freeMap.FindGroup(indexes - oldIndexes)
		util.Assert(ok, "free map lost %d index blocks", indexes-oldIndexes)
		copy(h.directBlocks[oldIndexes:], group)
	}
	h.growData(freeMap, blocks)
	h.byteLength = newSize
	return true
}

// growData 追加数据块直到 blockCount 达到 target, 每个被修改的索引块立即写回
func (h *FileHeader) growData(freeMap *bitmap.BitMap, target int) {
	nsd := h.geom.NumSemiDirect
	for h.blockCount < target {
		idx := h.blockCount / nsd
		offset := h.blockCount % nsd

		var entries []int
		if offset != 0 {
			// 最后一个索引块未满, 读回后接着填
			entries = h.readIndex(idx)
		} else {
			entries = make([]int, nsd)
		}

		n := util.MinInt(nsd-offset, target-h.blockCount)
		group, ok := freeMap.FindGroup(n)
		util.Assert(ok, "free map lost %d data blocks", n)
		copy(entries[offset:], group)
		h.writeIndex(idx, entries)
		h.blockCount += n
	}
}

// Deallocate 释放文件占用的全部数据块和索引块
func (h *FileHeader) Deallocate(freeMap *bitmap.BitMap) {
	nsd := h.geom.NumSemiDirect
	for i := 0; i < h.IndexBlockCount(); i++ {
		indexSector := h.directBlocks[i]
		util.Assert(freeMap.Test(indexSector), "index block %d not marked in free map", indexSector)

		entries := h.readIndex(i)
		used := util.MinInt(nsd, h.blockCount-i*nsd)
		for j := 0; j < used; j++ {
			util.Assert(freeMap.Test(entries[j]), "data block %d not marked in free map", entries[j])
			freeMap.Clear(entries[j])
		}
		freeMap.Clear(indexSector)
	}
}

// ByteToSector 返回文件内偏移 offset 所在的数据块扇区号, 需要读一次索引块
func (h *FileHeader) ByteToSector(offset int) int {
	block := offset / h.geom.SectorSize
	util.AssertInRange(block, h.blockCount, "file offset block")
	entries := h.readIndex(block / h.geom.NumSemiDirect)
	return entries[block%h.geom.NumSemiDirect]
}

// DataSectors 按文件顺序返回全部数据块扇区号
func (h *FileHeader) DataSectors() []int {
	out := make([]int, 0, h.blockCount)
	nsd := h.geom.NumSemiDirect
	for i := 0; i < h.IndexBlockCount(); i++ {
		entries := h.readIndex(i)
		out = append(out, entries[:util.MinInt(nsd, h.blockCount-i*nsd)]...)
	}
	return out
}

func (h *FileHeader) readIndex(idx int) []int {
	buff := make([]byte, h.geom.SectorSize)
	h.dev.ReadSector(h.directBlocks[idx], buff)
	_, entries := util.ReadInt4Array(buff, 0, h.geom.NumSemiDirect)
	return entries
}

func (h *FileHeader) writeIndex(idx int, entries []int) {
	buff := make([]byte, h.geom.SectorSize)
	util.WriteInt4Array(buff, 0, entries)
	h.dev.WriteSector(h.directBlocks[idx], buff)
}

// Serialize 按磁盘布局编码: byteLength, blockCount, directBlocks, 小端序
func (h *FileHeader) Serialize() []byte {
	buff := make([]byte, h.geom.SectorSize)
	cursor := util.WriteInt4(buff, 0, h.byteLength)
	cursor = util.WriteInt4(buff, cursor, h.blockCount)
	util.WriteInt4Array(buff, cursor, h.directBlocks)
	return buff
}

// Deserialize 从一个扇区的内容解码文件头
func (h *FileHeader) Deserialize(buff []byte) {
	util.AssertEqual(len(buff), h.geom.SectorSize, "file header size")
	cursor, byteLength := util.ReadInt4(buff, 0)
	cursor, blockCount := util.ReadInt4(buff, cursor)
	_, direct := util.ReadInt4Array(buff, cursor, h.geom.NumDirect)
	h.byteLength = byteLength
	h.blockCount = blockCount
	h.directBlocks = direct
}

// FetchFrom 从扇区读取文件头
func (h *FileHeader) FetchFrom(sector int) {
	buff := make([]byte, h.geom.SectorSize)
	h.dev.ReadSector(sector, buff)
	h.Deserialize(buff)
}

// WriteBack 将文件头写入扇区
func (h *FileHeader) WriteBack(sector int) {
	h.dev.WriteSector(sector, h.Serialize())
}

// Print 打印文件头及文件内容, 不可打印字符以 \xx 形式输出
func (h *FileHeader) Print(w io.Writer) {
	sectors := h.DataSectors()
	fmt.Fprintf(w, "FileHeader contents.  File size: %d.  Index blocks: %v.  File blocks:\n",
		h.byteLength, h.IndexSectors())
	for _, s := range sectors {
		fmt.Fprintf(w, "%d ", s)
	}
	fmt.Fprint(w, "\nFile contents:\n")

	data := make([]byte, h.geom.SectorSize)
	k := 0
	for _, s := range sectors {
		h.dev.ReadSector(s, data)
		for j := 0; j < h.geom.SectorSize && k < h.byteLength; j, k = j+1, k+1 {
			if c := data[j]; c >= 0x20 && c <= 0x7e {
				fmt.Fprintf(w, "%c", c)
			} else {
				fmt.Fprintf(w, "\\%x", c)
			}
		}
		fmt.Fprintln(w)
	}
}

package filesys

import (
	"fmt"
	"io"

	"github.com/zhukovaskychina/xnachos/server/filesys/bitmap"
	"github.com/zhukovaskychina/xnachos/util"
)

// DirectoryEntry 目录项
type DirectoryEntry struct {
	InUse  bool
	Sector int
	Name   string
}

// Directory 单层目录: 定长的目录项表, 保存在目录文件中.
// 每项编码为 inUse(4) sector(4) name(按 4 字节对齐, 以 0 结尾).
type Directory struct {
	table      []DirectoryEntry
	nameMaxLen int
}

// NewDirectory 创建 size 个空目录项
func NewDirectory(size int, nameMaxLen int) *Directory {
	return &Directory{
		table:      make([]DirectoryEntry, size),
		nameMaxLen: nameMaxLen,
	}
}

func (d *Directory) nameFieldLen() int {
	return util.DivRoundUp(d.nameMaxLen+1, 4) * 4
}

// EntrySize 单个目录项编码后的字节数
func (d *Directory) EntrySize() int {
	return 8 + d.nameFieldLen()
}

// FileSize 目录文件的字节数
func (d *Directory) FileSize() int {
	return d.EntrySize() * len(d.table)
}

// clip 超长文件名按最大长度截断
func (d *Directory) clip(name string) string {
	if len(name) > d.nameMaxLen {
		return name[:d.nameMaxLen]
	}
	return name
}

// FetchFrom 从目录文件读取目录项表
func (d *Directory) FetchFrom(file bitmap.FileIO) {
	buff := make([]byte, d.FileSize())
	file.ReadAt(buff, len(buff), 0)

	cursor := 0
	for i := range d.table {
		var inUse, sector int
		var name []byte
		cursor, inUse = util.ReadInt4(buff, cursor)
		cursor, sector = util.ReadInt4(buff, cursor)
		cursor, name = util.ReadBytes(buff, cursor, d.nameFieldLen())

		end := 0
		for end < len(name) && name[end] != 0 {
			end++
		}
		d.table[i] = DirectoryEntry{InUse: inUse != 0, Sector: sector, Name: string(name[:end])}
	}
}

// WriteBack 将目录项表写入目录文件
func (d *Directory) WriteBack(file bitmap.FileIO) {
	buff := make([]byte, d.FileSize())
	cursor := 0
	for _, e := range d.table {
		inUse := 0
		if e.InUse {
			inUse = 1
		}
		cursor = util.WriteInt4(buff, cursor, inUse)
		cursor = util.WriteInt4(buff, cursor, e.Sector)
		util.WriteBytes(buff, cursor, []byte(e.Name))
		cursor += d.nameFieldLen()
	}
	file.WriteAt(buff, len(buff), 0)
}

func (d *Directory) findIndex(name string) int {
	name = d.clip(name)
	for i, e := range d.table {
		if e.InUse && e.Name == name {
			return i
		}
	}
	return -1
}

// Find 返回文件头所在扇区, 找不到时返回 -1
func (d *Directory) Find(name string) int {
	if i := d.findIndex(name); i >= 0 {
		return d.table[i].Sector
	}
	return -1
}

// Add 加入一个目录项. 重名或目录已满时返回 false.
func (d *Directory) Add(name string, sector int) bool {
	if d.findIndex(name) >= 0 {
		return false
	}
	for i := range d.table {
		if !d.table[i].InUse {
			d.table[i] = DirectoryEntry{InUse: true, Sector: sector, Name: d.clip(name)}
			return true
		}
	}
	return false
}

// Remove 删除目录项
func (d *Directory) Remove(name string) bool {
	i := d.findIndex(name)
	if i < 0 {
		return false
	}
	d.table[i].InUse = false
	return true
}

// Entries 正在使用的目录项
func (d *Directory) Entries() []DirectoryEntry {
	var out []DirectoryEntry
	for _, e := range d.table {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}

// List 每行输出一个文件名
func (d *Directory) List(w io.Writer) {
	for _, e := range d.Entries() {
		fmt.Fprintln(w, e.Name)
	}
}

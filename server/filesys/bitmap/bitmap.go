package bitmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/zhukovaskychina/xnachos/util"
)

// BitsInByte 每字节的位数
const BitsInByte = 8

// FileIO 位图持久化所需的文件接口
type FileIO interface {
	ReadAt(into []byte, numBytes int, position int) int
	WriteAt(from []byte, numBytes int, position int) int
}

// BitMap 定长位图, 置位表示已分配. 第 i 位存放在第 i/8 字节的第 i%8 位,
// 与按小端 32 位字存放的布局逐字节相同.
type BitMap struct {
	numBits int
	bits    []byte
}

// NewBitMap 创建全部清零的位图
func NewBitMap(numBits int) *BitMap {
	return &BitMap{
		numBits: numBits,
		bits:    make([]byte, util.DivRoundUp(numBits, BitsInByte)),
	}
}

// NumBits 位数
func (b *BitMap) NumBits() int { return b.numBits }

// NumBytes 持久化后占用的字节数
func (b *BitMap) NumBytes() int { return len(b.bits) }

// Mark 置位
func (b *BitMap) Mark(which int) {
	util.AssertInRange(which, b.numBits, "bitmap mark")
	b.bits[which/BitsInByte] |= 1 << uint(which%BitsInByte)
}

// Clear 清位
func (b *BitMap) Clear(which int) {
	util.AssertInRange(which, b.numBits, "bitmap clear")
	b.bits[which/BitsInByte] &^= 1 << uint(which%BitsInByte)
}

// Test 是否已置位
func (b *BitMap) Test(which int) bool {
	util.AssertInRange(which, b.numBits, "bitmap test")
	return b.bits[which/BitsInByte]&(1<<uint(which%BitsInByte)) != 0
}

// Find 找到第一个空闲位并置位, 没有空闲位时返回 -1
func (b *BitMap) Find() int {
	for i := 0; i < b.numBits; i++ {
		if !b.Test(i) {
			b.Mark(i)
			return i
		}
	}
	return -1
}

// FindGroup 分配 n 个空闲位并返回其编号. 优先选取一段连续的空闲位,
// 找不到连续段时按升序取前 n 个空闲位. 空闲位不足时不做任何修改并返回 false.
func (b *BitMap) FindGroup(n int) ([]int, bool) {
	if n <= 0 {
		return nil, true
	}
	if b.NumClear() < n {
		return nil, false
	}

	group := make([]int, 0, n)
	run := 0
	for i := 0; i < b.numBits; i++ {
		if b.Test(i) {
			run = 0
			continue
		}
		run++
		if run == n {
			for j := i - n + 1; j <= i; j++ {
				b.Mark(j)
				group = append(group, j)
			}
			return group, true
		}
	}

	for i := 0; i < b.numBits && len(group) < n; i++ {
		if !b.Test(i) {
			b.Mark(i)
			group = append(group, i)
		}
	}
	return group, true
}

// NumClear 空闲位个数
func (b *BitMap) NumClear() int {
	count := 0
	for i := 0; i < b.numBits; i++ {
		if !b.Test(i) {
			count++
		}
	}
	return count
}

// FetchFrom 从文件读取位图内容
func (b *BitMap) FetchFrom(file FileIO) {
	file.ReadAt(b.bits, len(b.bits), 0)
}

// WriteBack 将位图写入文件
func (b *BitMap) WriteBack(file FileIO) {
	file.WriteAt(b.bits, len(b.bits), 0)
}

// Print 打印所有已置位的编号
func (b *BitMap) Print(w io.Writer) {
	var set []string
	for i := 0; i < b.numBits; i++ {
		if b.Test(i) {
			set = append(set, fmt.Sprint(i))
		}
	}
	fmt.Fprintf(w, "Bitmap set:\n%s\n", strings.Join(set, ", "))
}

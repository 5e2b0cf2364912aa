package bitmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// memFile 内存中的 FileIO 实现
type memFile struct {
	data []byte
}

func (f *memFile) ReadAt(into []byte, numBytes int, position int) int {
	return copy(into[:numBytes], f.data[position:])
}

func (f *memFile) WriteAt(from []byte, numBytes int, position int) int {
	if need := position + numBytes; need > len(f.data) {
		f.data = append(f.data, make([]byte, need-len(f.data))...)
	}
	return copy(f.data[position:], from[:numBytes])
}

func TestMarkClearTest(t *testing.T) {
	b := NewBitMap(40)
	assert.Equal(t, 5, b.NumBytes())
	assert.Equal(t, 40, b.NumClear())

	b.Mark(0)
	b.Mark(33)
	assert.True(t, b.Test(33))
	assert.Equal(t, 38, b.NumClear())

	b.Clear(33)
	assert.False(t, b.Test(33))
	assert.Panics(t, func() { b.Mark(40) })
}

func TestFind(t *testing.T) {
	b := NewBitMap(3)
	assert.Equal(t, 0, b.Find())
	assert.Equal(t, 1, b.Find())
	assert.Equal(t, 2, b.Find())
	assert.Equal(t, -1, b.Find())
}

func TestFindGroupPrefersContiguousRun(t *testing.T) {
	b := NewBitMap(16)
	b.Mark(1)
	b.Mark(4)

	group, ok := b.FindGroup(3)
	assert.True(t, ok)
	assert.Equal(t, []int{5, 6, 7}, group)
}

func TestFindGroupFallsBackToScattered(t *testing.T) {
	b := NewBitMap(8)
	for _, i := range []int{1, 3, 5, 7} {
		b.Mark(i)
	}
	group, ok := b.FindGroup(3)
	assert.True(t, ok)
	assert.Equal(t, []int{0, 2, 4}, group)
	assert.Equal(t, 1, b.NumClear())
}

func TestFindGroupFailsWithoutSideEffects(t *testing.T) {
	b := NewBitMap(8)
	b.Mark(0)
	group, ok := b.FindGroup(8)
	assert.False(t, ok)
	assert.Nil(t, group)
	assert.Equal(t, 7, b.NumClear())
}

func TestPersistRoundTrip(t *testing.T) {
	b := NewBitMap(64)
	b.Mark(0)
	b.Mark(9)
	b.Mark(63)

	file := &memFile{}
	b.WriteBack(file)
	// 位 0 与 位 9 分别落在字节 0 与字节 1
	assert.Equal(t, byte(0x01), file.data[0])
	assert.Equal(t, byte(0x02), file.data[1])

	c := NewBitMap(64)
	c.FetchFrom(file)
	assert.True(t, c.Test(0))
	assert.True(t, c.Test(9))
	assert.True(t, c.Test(63))
	assert.Equal(t, 61, c.NumClear())

	var out bytes.Buffer
	c.Print(&out)
	assert.Contains(t, out.String(), "0, 9, 63")
}

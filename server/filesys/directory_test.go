package filesys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

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

func TestDirectoryAddFindRemove(t *testing.T) {
	d := NewDirectory(2, 9)
	assert.Equal(t, 20, d.EntrySize())
	assert.True(t, d.Add("a", 5))
	assert.False(t, d.Add("a", 6))
	assert.True(t, d.Add("b", 7))
	assert.False(t, d.Add("c", 8), "table full")

	assert.Equal(t, 7, d.Find("b"))
	assert.Equal(t, -1, d.Find("c"))
	assert.True(t, d.Remove("a"))
	assert.False(t, d.Remove("a"))
	assert.True(t, d.Add("c", 8))
	assert.Equal(t, "c", d.Entries()[0].Name)
}

func TestDirectoryPersist(t *testing.T) {
	d := NewDirectory(3, 9)
	d.Add("alpha", 10)
	d.Add("longername", 11)

	file := &memFile{}
	d.WriteBack(file)
	assert.Len(t, file.data, 60)

	other := NewDirectory(3, 9)
	other.FetchFrom(file)
	assert.Equal(t, d.Entries(), other.Entries())
	assert.Equal(t, 11, other.Find("longernam"))
}

package filehdr

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zhukovaskychina/xnachos/server/filesys/bitmap"
	"github.com/zhukovaskychina/xnachos/util"
)

// TestAllocationInvariants 对随机文件大小验证分配器的不变式
func TestAllocationInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)
	geom := NewGeometry(testSectorSize)

	properties.Property("allocate succeeds iff enough free blocks", prop.ForAll(
		func(used, size int) bool {
			freeMap := bitmap.NewBitMap(testNumSectors)
			for i := 0; i < used; i++ {
				freeMap.Mark(i)
			}
			blocks := util.DivRoundUp(size, testSectorSize)
			indexes := util.DivRoundUp(blocks, geom.NumSemiDirect)
			fits := indexes <= geom.NumDirect && freeMap.NumClear() >= blocks+indexes

			before := freeMap.NumClear()
			ok := NewFileHeader(newTestDevice()).Allocate(freeMap, size)
			if ok != fits {
				return false
			}
			if ok {
				return freeMap.NumClear() == before-blocks-indexes
			}
			return freeMap.NumClear() == before
		},
		gen.IntRange(0, testNumSectors),
		gen.IntRange(0, 140000),
	))

	properties.Property("allocated sectors are distinct and marked", prop.ForAll(
		func(size int) bool {
			freeMap := bitmap.NewBitMap(testNumSectors)
			hdr := NewFileHeader(newTestDevice())
			if !hdr.Allocate(freeMap, size) {
				return false
			}
			seen := map[int]bool{}
			for _, s := range append(hdr.IndexSectors(), hdr.DataSectors()...) {
				if seen[s] || !freeMap.Test(s) {
					return false
				}
				seen[s] = true
			}
			return len(seen) == hdr.NumSectors()+hdr.IndexBlockCount()
		},
		gen.IntRange(0, 100000),
	))

	properties.Property("allocate, expand, deallocate leaks nothing", prop.ForAll(
		func(size, grow int) bool {
			freeMap := bitmap.NewBitMap(testNumSectors)
			hdr := NewFileHeader(newTestDevice())
			if !hdr.Allocate(freeMap, size) {
				return false
			}
			if !hdr.Expand(freeMap, size+grow) {
				return false
			}
			hdr.Deallocate(freeMap)
			return freeMap.NumClear() == testNumSectors
		},
		gen.IntRange(0, 50000),
		gen.IntRange(0, 50000),
	))

	properties.Property("byte offsets map into the file's own blocks", prop.ForAll(
		func(size, offset int) bool {
			freeMap := bitmap.NewBitMap(testNumSectors)
			hdr := NewFileHeader(newTestDevice())
			if !hdr.Allocate(freeMap, size) {
				return false
			}
			offset %= size
			data := hdr.DataSectors()
			return hdr.ByteToSector(offset) == data[offset/testSectorSize]
		},
		gen.IntRange(1, 60000),
		gen.IntRange(0, 60000),
	))

	properties.TestingRun(t)
}

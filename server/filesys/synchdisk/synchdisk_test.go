package synchdisk

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/metrics"
)

const (
	testSectorSize = 128
	testNumSectors = 64
)

func sector(b byte) []byte {
	return bytes.Repeat([]byte{b}, testSectorSize)
}

func newTestDisk(t *testing.T) (*SynchDisk, *machine.MemStore) {
	store := machine.NewMemStore(testSectorSize, testNumSectors)
	for i := 0; i < testNumSectors; i++ {
		require.NoError(t, store.WriteBlock(i, sector(byte(i))))
	}
	return NewSynchDisk(store, DefaultCacheSlots, DefaultReadAhead, nil), store
}

func TestReadMissPerformsReadAhead(t *testing.T) {
	sd, _ := newTestDisk(t)
	buf := make([]byte, testSectorSize)

	sd.ReadSector(10, buf)
	assert.Equal(t, sector(10), buf)
	assert.Equal(t, int64(4), sd.Stats().PhysicalReads)

	for k := 11; k <= 13; k++ {
		sd.ReadSector(k, buf)
		assert.Equal(t, sector(byte(k)), buf)
	}
	stats := sd.Stats()
	assert.Equal(t, int64(4), stats.PhysicalReads)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestReadAheadClampedToDevice(t *testing.T) {
	sd, _ := newTestDisk(t)
	buf := make([]byte, testSectorSize)
	sd.ReadSector(testNumSectors-2, buf)
	assert.Equal(t, int64(2), sd.Stats().PhysicalReads)
	assert.Equal(t, []int{62, 63}, sd.CachedSectors()[:2])
}

func TestReadAheadSkipsCachedSectors(t *testing.T) {
	sd, _ := newTestDisk(t)
	buf := make([]byte, testSectorSize)
	sd.ReadSector(5, buf) // 缓存 5..8
	sd.ReadSector(4, buf) // 只需读 4

	assert.Equal(t, int64(5), sd.Stats().PhysicalReads)
	tags := sd.CachedSectors()
	seen := map[int]int{}
	for _, tag := range tags {
		if tag >= 0 {
			seen[tag]++
		}
	}
	for tag, n := range seen {
		assert.Equal(t, 1, n, "sector %d cached twice", tag)
	}
}

func TestWriteThenReadIsCacheHit(t *testing.T) {
	sd, _ := newTestDisk(t)
	before, err := sd.Disk().Fingerprint()
	require.NoError(t, err)

	sd.WriteSector(20, sector(0xaa))
	buf := make([]byte, testSectorSize)
	sd.ReadSector(20, buf)
	assert.Equal(t, sector(0xaa), buf)

	stats := sd.Stats()
	assert.Zero(t, stats.PhysicalReads)
	assert.Zero(t, stats.PhysicalWrites)

	// 写回缓存, 磁盘内容尚未改变
	after, err := sd.Disk().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteHitUpdatesCacheInPlace(t *testing.T) {
	sd, store := newTestDisk(t)
	buf := make([]byte, testSectorSize)
	sd.ReadSector(30, buf)
	sd.WriteSector(31, sector(0x55))

	assert.Equal(t, int64(4), sd.Stats().PhysicalReads)
	assert.Zero(t, sd.Stats().PhysicalWrites)

	raw := make([]byte, testSectorSize)
	require.NoError(t, store.ReadBlock(31, raw))
	assert.Equal(t, sector(31), raw)

	sd.Flush()
	require.NoError(t, store.ReadBlock(31, raw))
	assert.Equal(t, sector(0x55), raw)
	assert.Equal(t, int64(1), sd.Stats().PhysicalWrites)

	// 已写回的槽位不再重复写
	sd.Flush()
	assert.Equal(t, int64(1), sd.Stats().PhysicalWrites)
}

func TestEvictionFlushesDirtySlot(t *testing.T) {
	sd, store := newTestDisk(t)
	sd.WriteSector(0, sector(0xee)) // 占用槽位 0

	buf := make([]byte, testSectorSize)
	// 三次读未命中占满槽位 1..12
	for _, s := range []int{1, 5, 9} {
		sd.ReadSector(s, buf)
	}
	raw := make([]byte, testSectorSize)
	require.NoError(t, store.ReadBlock(0, raw))
	assert.Equal(t, sector(0), raw)

	// 预读 13..16, 扇区 16 轮转回槽位 0
	sd.ReadSector(13, buf)
	require.NoError(t, store.ReadBlock(0, raw))
	assert.Equal(t, sector(0xee), raw)
	assert.NotContains(t, sd.CachedSectors(), 0)

	sd.ReadSector(0, buf)
	assert.Equal(t, sector(0xee), buf)
}

func TestCloseFlushes(t *testing.T) {
	sd, store := newTestDisk(t)
	sd.WriteSector(7, sector(0x77))
	require.NoError(t, sd.Close())

	raw := make([]byte, testSectorSize)
	require.NoError(t, store.ReadBlock(7, raw))
	assert.Equal(t, sector(0x77), raw)
}

func TestOutOfRangePanics(t *testing.T) {
	sd, _ := newTestDisk(t)
	buf := make([]byte, testSectorSize)
	assert.Panics(t, func() { sd.ReadSector(testNumSectors, buf) })
	assert.Panics(t, func() { sd.WriteSector(-1, buf) })
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	sd, _ := newTestDisk(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			buf := make([]byte, testSectorSize)
			for i := 0; i < 50; i++ {
				s := (g*7 + i) % testNumSectors
				sd.ReadSector(s, buf)
				if !bytes.Equal(sector(byte(s)), buf) {
					t.Errorf("sector %d returned wrong data", s)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestMetricsWired(t *testing.T) {
	store := machine.NewMemStore(testSectorSize, testNumSectors)
	reg := metrics.NewRegistry("test")
	sd := NewSynchDisk(store, 4, 2, reg)
	buf := make([]byte, testSectorSize)
	sd.ReadSector(0, buf)
	sd.ReadSector(1, buf)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) > 0 && f.GetMetric()[0].GetCounter() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["test_disk_cache_hits_total"])
	assert.Equal(t, 1.0, values["test_disk_cache_misses_total"])
	assert.Equal(t, 2.0, values["test_disk_physical_reads_total"])
}

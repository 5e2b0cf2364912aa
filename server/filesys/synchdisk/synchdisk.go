/*
SynchDisk 在异步的物理磁盘之上提供同步接口: 请求发出后调用者阻塞,
直到磁盘完成中断到来. 物理磁盘同一时刻只能处理一个请求, 因此用一把锁
保证互斥, 用一个信号量把完成中断和等待中的请求连接起来.

另外维护一个小的扇区缓存:
- 写命中只更新缓存并标记为脏, 槽位被复用或关机时才写回
- 写未命中按轮转方式占用一个槽位, 同样标记为脏, 之后的读可直接命中
- 读未命中时预读当前扇区及其后若干扇区, 槽位按轮转方式复用
*/
package synchdisk

import (
	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/metrics"
	"github.com/zhukovaskychina/xnachos/util"
	"sync"
)

const (
	DefaultCacheSlots = 16
	DefaultReadAhead  = 4
	noSector          = -1
)

type cacheSlot struct {
	tag   int
	dirty bool
	data  []byte
}

// SynchDisk 同步磁盘与扇区缓存
type SynchDisk struct {
	disk *machine.Disk

	lock      sync.Mutex    // 同一时刻只有一个磁盘请求
	semaphore chan struct{} // 磁盘完成中断

	sectorSize int
	numSectors int

	slots     []cacheSlot
	turn      int
	readAhead int

	stats   *Stats
	metrics *metrics.Registry
}

// NewSynchDisk 在 store 之上创建同步磁盘
func NewSynchDisk(store machine.BlockStore, cacheSlots, readAhead int, reg *metrics.Registry) *SynchDisk {
	util.Assert(cacheSlots > 0, "cache needs at least one slot")
	util.Assert(readAhead > 0 && readAhead <= cacheSlots, "read ahead %d outside [1, %d]", readAhead, cacheSlots)

	sd := &SynchDisk{
		semaphore:  make(chan struct{}, 1),
		sectorSize: store.BlockSize(),
		numSectors: store.NumBlocks(),
		slots:      make([]cacheSlot, cacheSlots),
		readAhead:  readAhead,
		stats:      new(Stats),
		metrics:    reg,
	}
	sd.disk = machine.NewDisk(store, sd.requestDone)
	for i := range sd.slots {
		sd.slots[i] = cacheSlot{tag: noSector, data: make([]byte, sd.sectorSize)}
	}
	return sd
}

// requestDone 磁盘中断处理: 唤醒等待中的请求
func (sd *SynchDisk) requestDone() {
	sd.semaphore <- struct{}{}
}

func (sd *SynchDisk) SectorSize() int { return sd.sectorSize }

func (sd *SynchDisk) NumSectors() int { return sd.numSectors }

// Disk 返回底层物理磁盘
func (sd *SynchDisk) Disk() *machine.Disk { return sd.disk }

// Stats 返回统计信息快照
func (sd *SynchDisk) Stats() StatsSnapshot { return sd.stats.Snapshot() }

// physicalRead 发起读请求并等待完成, 调用者持有 lock
func (sd *SynchDisk) physicalRead(sector int, data []byte) {
	sd.disk.ReadRequest(sector, data)
	<-sd.semaphore
	sd.stats.recordPhysical(false)
	sd.metrics.RecordPhysicalIO(false)
}

// physicalWrite 发起写请求并等待完成, 调用者持有 lock
func (sd *SynchDisk) physicalWrite(sector int, data []byte) {
	sd.disk.WriteRequest(sector, data)
	<-sd.semaphore
	sd.stats.recordPhysical(true)
	sd.metrics.RecordPhysicalIO(true)
}

func (sd *SynchDisk) lookup(sector int) int {
	for i := range sd.slots {
		if sd.slots[i].tag == sector {
			return i
		}
	}
	return -1
}

// ReadSector 读取一个扇区到 data, 返回时数据已就绪
func (sd *SynchDisk) ReadSector(sectorNumber int, data []byte) {
	util.AssertInRange(sectorNumber, sd.numSectors, "sector")
	sd.lock.Lock()
	defer sd.lock.Unlock()

	if i := sd.lookup(sectorNumber); i >= 0 {
		copy(data, sd.slots[i].data)
		sd.stats.recordLookup(true)
		sd.metrics.RecordCacheLookup(true)
		return
	}
	sd.stats.recordLookup(false)
	sd.metrics.RecordCacheLookup(false)

	for i := 0; i < sd.readAhead && sectorNumber+i < sd.numSectors; i++ {
		sector := sectorNumber + i
		if i > 0 && sd.lookup(sector) >= 0 {
			continue
		}
		slot := &sd.slots[sd.turn]
		sd.evict(slot)
		sd.physicalRead(sector, slot.data)
		slot.tag = sector
		slot.dirty = false
		if i == 0 {
			copy(data, slot.data)
		}
		sd.turn = (sd.turn + 1) % len(sd.slots)
	}
	logger.Debugf("read sector %d with read-ahead, next slot %d", sectorNumber, sd.turn)
}

// evict 复用槽位前写回脏数据
func (sd *SynchDisk) evict(slot *cacheSlot) {
	if slot.tag == noSector {
		return
	}
	sd.stats.recordEviction()
	sd.metrics.RecordCacheEviction()
	if slot.dirty {
		sd.physicalWrite(slot.tag, slot.data)
	}
	slot.tag = noSector
	slot.dirty = false
}

// WriteSector 写入一个扇区. 数据只进入缓存, 槽位被复用或 Flush 时才落盘.
func (sd *SynchDisk) WriteSector(sectorNumber int, data []byte) {
	util.AssertInRange(sectorNumber, sd.numSectors, "sector")
	sd.lock.Lock()
	defer sd.lock.Unlock()

	if i := sd.lookup(sectorNumber); i >= 0 {
		copy(sd.slots[i].data, data)
		sd.slots[i].dirty = true
		sd.stats.recordLookup(true)
		sd.metrics.RecordCacheLookup(true)
		return
	}
	sd.stats.recordLookup(false)
	sd.metrics.RecordCacheLookup(false)

	slot := &sd.slots[sd.turn]
	sd.evict(slot)
	copy(slot.data, data)
	slot.tag = sectorNumber
	slot.dirty = true
	sd.turn = (sd.turn + 1) % len(sd.slots)
}

// Flush 写回所有脏槽位, 槽位内容保留
func (sd *SynchDisk) Flush() {
	sd.lock.Lock()
	defer sd.lock.Unlock()
	for i := range sd.slots {
		if sd.slots[i].tag != noSector && sd.slots[i].dirty {
			sd.physicalWrite(sd.slots[i].tag, sd.slots[i].data)
			sd.slots[i].dirty = false
		}
	}
	sd.stats.recordFlush()
}

// CachedSectors 返回各槽位当前缓存的扇区号, -1 表示空槽
func (sd *SynchDisk) CachedSectors() []int {
	sd.lock.Lock()
	defer sd.lock.Unlock()
	tags := make([]int, len(sd.slots))
	for i := range sd.slots {
		tags[i] = sd.slots[i].tag
	}
	return tags
}

// Close 关机: 写回缓存并关闭磁盘
func (sd *SynchDisk) Close() error {
	sd.Flush()
	return sd.disk.Close()
}

// Package vm 实现倒排页表、TLB 替换以及基于交换区的请求调页.
//
// 每个物理页框对应倒排页表中的一项, 记录占用它的线程和虚拟页号.
// 虚拟页的状态依次为: 只在交换区, 驻留在物理内存, 同时缓存在 TLB 中.
// TLB 缺失时先查倒排页表, 查不到再缺页换入; 换出优先选择空闲页框,
// 否则选择最近最少访问且没有被当前 TLB 引用的页框.
package vm

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/metrics"
	"github.com/zhukovaskychina/xnachos/util"
)

// maxFaultRetries 一次 TLB 缺失最多触发的缺页次数, 一次换入之后必然命中
const maxFaultRetries = 2

// FrameEntry 倒排页表项
type FrameEntry struct {
	Occupied   bool
	Owner      int
	VPN        int
	Entry      machine.TranslationEntry
	LastAccess int64
}

// MemoryManager 物理内存管理器, 拥有倒排页表和全局访问时间戳.
// 表的查询、换出与装入都在 mu 的保护下完成.
type MemoryManager struct {
	mu sync.Mutex

	machine  *machine.Machine
	procs    *ProcessTable
	frames   []FrameEntry
	pageTime int64

	stats   Stats
	metrics *metrics.Registry
}

// NewMemoryManager 为 m 的全部物理页框创建倒排页表
func NewMemoryManager(m *machine.Machine, procs *ProcessTable, reg *metrics.Registry) *MemoryManager {
	util.Assert(m.NumPhysPages() > m.TLBSize(),
		"need more frames (%d) than tlb slots (%d) to always find a victim", m.NumPhysPages(), m.TLBSize())
	return &MemoryManager{
		machine: m,
		procs:   procs,
		frames:  make([]FrameEntry, m.NumPhysPages()),
		metrics: reg,
	}
}

// Stats 分页统计
func (mm *MemoryManager) Stats() StatsSnapshot {
	return mm.stats.Snapshot()
}

// Frames 倒排页表的副本
func (mm *MemoryManager) Frames() []FrameEntry {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	out := make([]FrameEntry, len(mm.frames))
	copy(out, mm.frames)
	return out
}

func (mm *MemoryManager) currentTid() int {
	tid := mm.procs.CurrentTid()
	util.Assert(tid != NoThread, "paging with no current thread")
	return tid
}

// lookup 查找 (tid, vpn) 所在页框, 不在内存中时返回 -1
func (mm *MemoryManager) lookup(tid int, vpn int) int {
	for i := range mm.frames {
		f := &mm.frames[i]
		if f.Occupied && f.Owner == tid && f.VPN == vpn {
			return i
		}
	}
	return -1
}

// HandleTLBMiss 处理 TLB 缺失: BadVAddrReg 所在虚拟页不在内存时先缺页换入,
// 然后将其翻译装入时间戳最小的 TLB 槽位
func (mm *MemoryManager) HandleTLBMiss() {
	badVAddr := mm.machine.ReadRegister(machine.BadVAddrReg)
	vpn := badVAddr / mm.machine.PageSize()

	mm.mu.Lock()
	defer mm.mu.Unlock()

	atomic.AddInt64(&mm.stats.tlbMisses, 1)
	mm.metrics.RecordTLBMiss()

	tid := mm.currentTid()
	for attempt := 0; ; attempt++ {
		if frame := mm.lookup(tid, vpn); frame >= 0 {
			mm.frames[frame].LastAccess = mm.tick()
			slot := mm.lruSlot()
			mm.machine.InstallTLB(slot, mm.frames[frame].Entry)
			logger.Debugf("tlb miss: vpn %d of thread %d -> frame %d, slot %d", vpn, tid, frame, slot)
			return
		}
		util.Assert(attempt < maxFaultRetries, "virtual page %d of thread %d still absent after page fault", vpn, tid)
		// 直接调用, 不经过 RaiseException, 以免重入 mu
		mm.pageFault(tid, vpn)
	}
}

// HandlePageFault 处理缺页异常, 将 BadVAddrReg 所在虚拟页换入内存
func (mm *MemoryManager) HandlePageFault() {
	badVAddr := mm.machine.ReadRegister(machine.BadVAddrReg)
	vpn := badVAddr / mm.machine.PageSize()

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.pageFault(mm.currentTid(), vpn)
}

func (mm *MemoryManager) tick() int64 {
	mm.pageTime++
	return mm.pageTime
}

// lruSlot 时间戳最小的 TLB 槽位, 相同时取编号最小者
func (mm *MemoryManager) lruSlot() int {
	slots := mm.machine.TLBSlots()
	index := 0
	for i := 1; i < len(slots); i++ {
		if slots[i].Time < slots[index].Time {
			index = i
		}
	}
	return index
}

// chooseVictim 优先返回空闲页框; 否则返回 LastAccess 最小且未被 TLB 引用的页框
func (mm *MemoryManager) chooseVictim() int {
	for i := range mm.frames {
		if !mm.frames[i].Occupied {
			return i
		}
	}

	pinned := make(map[int]bool)
	for _, slot := range mm.machine.TLBSlots() {
		if slot.Entry.Valid {
			pinned[slot.Entry.PhysicalPage] = true
		}
	}
	victim := -1
	for i := range mm.frames {
		if pinned[i] {
			continue
		}
		if victim == -1 || mm.frames[i].LastAccess < mm.frames[victim].LastAccess {
			victim = i
		}
	}
	util.Assert(victim >= 0, "every frame is pinned by the tlb")
	return victim
}

// pageFault 将线程 tid 的虚拟页 vpn 换入内存, 调用者持有 mu
func (mm *MemoryManager) pageFault(tid int, vpn int) {
	proc, ok := mm.procs.Lookup(tid)
	util.Assert(ok, "page fault for unknown thread %d", tid)
	pageSize := mm.machine.PageSize()

	frame := mm.chooseVictim()
	victim := &mm.frames[frame]
	mem := mm.machine.MainMemory[frame*pageSize : (frame+1)*pageSize]

	evicted := victim.Occupied
	ownerAlive := false
	if evicted {
		ownerAlive = mm.procs.Alive(victim.Owner)
		if ownerAlive {
			// Space 在线程创建后不再改变, 退出后仍可写入
			owner, _ := mm.procs.Lookup(victim.Owner)
			copy(owner.Space.page(victim.VPN), mem)
			atomic.AddInt64(&mm.stats.evictions, 1)
		} else {
			atomic.AddInt64(&mm.stats.discarded, 1)
		}
		mm.machine.InvalidateTLBPhysical(frame)
		logger.Debugf("page fault: evict vpn %d of thread %d from frame %d (owner alive %v)",
			victim.VPN, victim.Owner, frame, ownerAlive)
	}

	copy(mem, proc.Space.page(vpn))
	atomic.AddInt64(&mm.stats.swapIns, 1)
	atomic.AddInt64(&mm.stats.pageFaults, 1)

	*victim = FrameEntry{
		Occupied: true,
		Owner:    tid,
		VPN:      vpn,
		Entry: machine.TranslationEntry{
			VirtualPage:  vpn,
			PhysicalPage: frame,
			Valid:        true,
		},
		LastAccess: mm.tick(),
	}

	mm.metrics.RecordPageFault(evicted, ownerAlive)
	mm.metrics.SetResidentFrames(mm.residentFrames())
}

func (mm *MemoryManager) residentFrames() int {
	n := 0
	for i := range mm.frames {
		if mm.frames[i].Occupied {
			n++
		}
	}
	return n
}

// ReleaseThread 线程结束时释放其占用的全部页框, 并使对应的 TLB 槽位失效
func (mm *MemoryManager) ReleaseThread(tid int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	released := 0
	for i := range mm.frames {
		if mm.frames[i].Occupied && mm.frames[i].Owner == tid {
			mm.frames[i].Occupied = false
			mm.machine.InvalidateTLBPhysical(i)
			released++
		}
	}
	mm.metrics.SetResidentFrames(mm.residentFrames())
	logger.Debugf("thread %d released %d frames, page time %d", tid, released, mm.pageTime)
}

// Dump 打印倒排页表
func (mm *MemoryManager) Dump(w io.Writer) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	fmt.Fprintf(w, "pageTime: %d\n", mm.pageTime)
	for i, f := range mm.frames {
		if f.Occupied {
			fmt.Fprintf(w, "PhysPage: %d, thread: %d, VirtPage: %d, lastAccess: %d\n", i, f.Owner, f.VPN, f.LastAccess)
		} else {
			fmt.Fprintf(w, "PhysPage: %d, free\n", i)
		}
	}
}

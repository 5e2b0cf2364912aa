package vm

import (
	"fmt"
	"sync/atomic"
)

// Stats 分页统计
type Stats struct {
	tlbMisses  int64
	pageFaults int64
	evictions  int64
	discarded  int64
	swapIns    int64
}

// StatsSnapshot 某一时刻的分页统计
type StatsSnapshot struct {
	TLBMisses  int64
	PageFaults int64
	Evictions  int64 // 换出到属主交换区的页
	Discarded  int64 // 属主已结束而直接丢弃的页
	SwapIns    int64
}

// Snapshot 读取当前统计值
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TLBMisses:  atomic.LoadInt64(&s.tlbMisses),
		PageFaults: atomic.LoadInt64(&s.pageFaults),
		Evictions:  atomic.LoadInt64(&s.evictions),
		Discarded:  atomic.LoadInt64(&s.discarded),
		SwapIns:    atomic.LoadInt64(&s.swapIns),
	}
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("paging: tlb misses %d, page faults %d, evictions %d, discarded %d, swap ins %d",
		s.TLBMisses, s.PageFaults, s.Evictions, s.Discarded, s.SwapIns)
}

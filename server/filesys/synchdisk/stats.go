package synchdisk

import (
	"fmt"
	"sync/atomic"
)

// Stats 磁盘缓存统计
type Stats struct {
	hits           int64
	misses         int64
	physicalReads  int64
	physicalWrites int64
	evictions      int64
	flushes        int64
}

// StatsSnapshot 某一时刻的统计值
type StatsSnapshot struct {
	Hits           int64
	Misses         int64
	PhysicalReads  int64
	PhysicalWrites int64
	Evictions      int64
	Flushes        int64
}

func (s *Stats) recordLookup(hit bool) {
	if hit {
		atomic.AddInt64(&s.hits, 1)
	} else {
		atomic.AddInt64(&s.misses, 1)
	}
}

func (s *Stats) recordPhysical(write bool) {
	if write {
		atomic.AddInt64(&s.physicalWrites, 1)
	} else {
		atomic.AddInt64(&s.physicalReads, 1)
	}
}

func (s *Stats) recordEviction() {
	atomic.AddInt64(&s.evictions, 1)
}

func (s *Stats) recordFlush() {
	atomic.AddInt64(&s.flushes, 1)
}

// Snapshot 读取当前统计值
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:           atomic.LoadInt64(&s.hits),
		Misses:         atomic.LoadInt64(&s.misses),
		PhysicalReads:  atomic.LoadInt64(&s.physicalReads),
		PhysicalWrites: atomic.LoadInt64(&s.physicalWrites),
		Evictions:      atomic.LoadInt64(&s.evictions),
		Flushes:        atomic.LoadInt64(&s.flushes),
	}
}

// HitRate 缓存命中率
func (s StatsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("disk cache: hits %d, misses %d (%.2f), physical reads %d, writes %d, evictions %d",
		s.Hits, s.Misses, s.HitRate(), s.PhysicalReads, s.PhysicalWrites, s.Evictions)
}

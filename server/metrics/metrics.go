package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry 内核各组件的 prometheus 指标. nil Registry 上的所有记录方法都是空操作.
type Registry struct {
	registry *prometheus.Registry

	// disk cache
	DiskCacheHits      prometheus.Counter
	DiskCacheMisses    prometheus.Counter
	DiskPhysicalReads  prometheus.Counter
	DiskPhysicalWrites prometheus.Counter
	DiskCacheEvictions prometheus.Counter

	// paging
	TLBMisses      prometheus.Counter
	PageFaults     prometheus.Counter
	PageEvictions  *prometheus.CounterVec
	ResidentFrames prometheus.Gauge

	// filesys
	FileOperations *prometheus.CounterVec
}

// NewRegistry 创建独立的指标注册表
func NewRegistry(namespace string) *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.DiskCacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disk_cache_hits_total",
		Help:      "Sector requests served from the disk cache",
	})
	r.DiskCacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disk_cache_misses_total",
		Help:      "Sector reads that missed the disk cache",
	})
	r.DiskPhysicalReads = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disk_physical_reads_total",
		Help:      "Read requests issued to the physical disk",
	})
	r.DiskPhysicalWrites = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disk_physical_writes_total",
		Help:      "Write requests issued to the physical disk",
	})
	r.DiskCacheEvictions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disk_cache_evictions_total",
		Help:      "Cache slots reused for a different sector",
	})

	r.TLBMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tlb_misses_total",
		Help:      "TLB miss exceptions handled",
	})
	r.PageFaults = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_faults_total",
		Help:      "Page faults handled",
	})
	r.PageEvictions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_evictions_total",
		Help:      "Resident pages evicted to make room, by victim outcome",
	}, []string{"outcome"})
	r.ResidentFrames = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resident_frames",
		Help:      "Occupied physical page frames",
	})

	r.FileOperations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "file_operations_total",
		Help:      "File system operations by kind and status",
	}, []string{"operation", "status"})

	return r
}

// Gatherer 返回底层注册表, 供导出使用
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

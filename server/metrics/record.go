package metrics

// RecordCacheLookup 记录一次磁盘缓存查询
func (r *Registry) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.DiskCacheHits.Inc()
	} else {
		r.DiskCacheMisses.Inc()
	}
}

// RecordPhysicalIO 记录一次物理磁盘请求
func (r *Registry) RecordPhysicalIO(write bool) {
	if r == nil {
		return
	}
	if write {
		r.DiskPhysicalWrites.Inc()
	} else {
		r.DiskPhysicalReads.Inc()
	}
}

// RecordCacheEviction 记录一次缓存槽复用
func (r *Registry) RecordCacheEviction() {
	if r == nil {
		return
	}
	r.DiskCacheEvictions.Inc()
}

// RecordTLBMiss 记录一次 TLB 缺失
func (r *Registry) RecordTLBMiss() {
	if r == nil {
		return
	}
	r.TLBMisses.Inc()
}

// RecordPageFault 记录一次缺页, evicted 表示是否换出了已占用的页,
// ownerAlive 表示被换出页的属主线程是否仍存活
func (r *Registry) RecordPageFault(evicted bool, ownerAlive bool) {
	if r == nil {
		return
	}
	r.PageFaults.Inc()
	if !evicted {
		return
	}
	if ownerAlive {
		r.PageEvictions.WithLabelValues("swapped").Inc()
	} else {
		r.PageEvictions.WithLabelValues("discarded").Inc()
	}
}

// SetResidentFrames 设置已占用物理页数
func (r *Registry) SetResidentFrames(n int) {
	if r == nil {
		return
	}
	r.ResidentFrames.Set(float64(n))
}

// RecordFileOperation 记录文件系统操作
func (r *Registry) RecordFileOperation(operation string, ok bool) {
	if r == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	r.FileOperations.WithLabelValues(operation, status).Inc()
}

package machine

import "github.com/zhukovaskychina/xnachos/util"

// TLBSize TLB 槽位数
func (m *Machine) TLBSize() int {
	return len(m.tlb)
}

// TLBSlot 返回第 i 个槽位的副本
func (m *Machine) TLBSlot(i int) TLBSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tlb[i]
}

// TLBSlots 返回全部槽位的副本
func (m *Machine) TLBSlots() []TLBSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := make([]TLBSlot, len(m.tlb))
	copy(slots, m.tlb)
	return slots
}

func (m *Machine) tick() int64 {
	m.tlbClock++
	return m.tlbClock
}

// InstallTLB 将 entry 装入第 index 个槽位并打上新的时间戳
func (m *Machine) InstallTLB(index int, entry TranslationEntry) {
	util.AssertInRange(index, len(m.tlb), "tlb slot")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tlb[index] = TLBSlot{Entry: entry, Time: m.tick()}
}

// InvalidateTLBPhysical 使所有映射到物理页 frame 的槽位失效
func (m *Machine) InvalidateTLBPhysical(frame int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tlb {
		if m.tlb[i].Entry.Valid && m.tlb[i].Entry.PhysicalPage == frame {
			m.tlb[i] = TLBSlot{}
		}
	}
}

// FlushTLB 上下文切换时清空 TLB
func (m *Machine) FlushTLB() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tlb {
		m.tlb[i] = TLBSlot{}
	}
}

// Translate 通过 TLB 将虚拟地址翻译为物理地址. 命中时更新槽位的使用位,
// 脏位与时间戳; 失败时返回需要抛出的异常.
func (m *Machine) Translate(virtAddr int, size int, writing bool) (int, ExceptionType) {
	if virtAddr < 0 ||
		(size == 4 && virtAddr&0x3 != 0) ||
		(size == 2 && virtAddr&0x1 != 0) {
		return 0, AddressErrorException
	}

	vpn := virtAddr / m.pageSize
	offset := virtAddr % m.pageSize
	if vpn >= m.pageTableSize {
		return 0, AddressErrorException
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var slot *TLBSlot
	for i := range m.tlb {
		if m.tlb[i].Entry.Valid && m.tlb[i].Entry.VirtualPage == vpn {
			slot = &m.tlb[i]
			break
		}
	}
	if slot == nil {
		return 0, TLBMissException
	}
	if slot.Entry.ReadOnly && writing {
		return 0, ReadOnlyException
	}
	frame := slot.Entry.PhysicalPage
	if frame < 0 || frame >= m.numPhysPages {
		return 0, BusErrorException
	}

	slot.Entry.Use = true
	if writing {
		slot.Entry.Dirty = true
	}
	slot.Time = m.tick()
	return frame*m.pageSize + offset, NoException
}

package machine

// TranslationEntry 虚拟页到物理页的一条翻译
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
	Use          bool // 被访问过时由硬件置位
	Dirty        bool // 被写过时由硬件置位
}

// TLBSlot TLB 中的一个槽位, Time 为最近一次装入或命中时的逻辑时间戳
type TLBSlot struct {
	Entry TranslationEntry
	Time  int64
}

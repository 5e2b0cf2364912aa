package machine

import "github.com/zhukovaskychina/xnachos/util"

// ReadMem 读取 size(1, 2, 4) 字节. 翻译失败时抛出异常并返回 false,
// 由调用者重新执行这次访问.
func (m *Machine) ReadMem(addr int, size int) (int, bool) {
	phys, exc := m.Translate(addr, size, false)
	if exc != NoException {
		m.RaiseException(exc, addr)
		return 0, false
	}
	switch size {
	case 1:
		return int(m.MainMemory[phys]), true
	case 2:
		return int(m.MainMemory[phys]) | int(m.MainMemory[phys+1])<<8, true
	case 4:
		_, v := util.ReadInt4(m.MainMemory, phys)
		return v, true
	}
	util.Assert(false, "bad read size %d", size)
	return 0, false
}

// WriteMem 写入 size(1, 2, 4) 字节, 语义同 ReadMem
func (m *Machine) WriteMem(addr int, size int, value int) bool {
	phys, exc := m.Translate(addr, size, true)
	if exc != NoException {
		m.RaiseException(exc, addr)
		return false
	}
	switch size {
	case 1:
		m.MainMemory[phys] = byte(value)
	case 2:
		m.MainMemory[phys] = byte(value)
		m.MainMemory[phys+1] = byte(value >> 8)
	case 4:
		util.WriteInt4(m.MainMemory, phys, value)
	default:
		util.Assert(false, "bad write size %d", size)
	}
	return true
}

// Load 像 CPU 重新执行指令那样重试 ReadMem, 直到访问成功
func (m *Machine) Load(addr int, size int) int {
	for attempt := 0; attempt < maxTranslateAttempts; attempt++ {
		if v, ok := m.ReadMem(addr, size); ok {
			return v
		}
	}
	util.Assert(false, "load of 0x%x did not complete after %d attempts", addr, maxTranslateAttempts)
	return 0
}

// Store 重试 WriteMem 直到访问成功
func (m *Machine) Store(addr int, size int, value int) {
	for attempt := 0; attempt < maxTranslateAttempts; attempt++ {
		if m.WriteMem(addr, size, value) {
			return
		}
	}
	util.Assert(false, "store to 0x%x did not complete after %d attempts", addr, maxTranslateAttempts)
}

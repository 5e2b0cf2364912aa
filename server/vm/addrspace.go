package vm

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/util"
)

// DefaultUserStackSize 用户栈字节数
const DefaultUserStackSize = 1024

// AddrSpace 用户地址空间. 每个虚拟页在交换区中都有一份副本,
// 缺页时从交换区换入, 被换出时写回交换区.
type AddrSpace struct {
	numPages int
	pageSize int
	swap     []byte
}

// NewAddrSpace 创建 numPages 页、内容全零的地址空间
func NewAddrSpace(numPages int, pageSize int) *AddrSpace {
	util.Assert(numPages > 0 && pageSize > 0, "bad address space geometry %d/%d", numPages, pageSize)
	return &AddrSpace{
		numPages: numPages,
		pageSize: pageSize,
		swap:     make([]byte, numPages*pageSize),
	}
}

// LoadAddrSpace 从 NOFF 可执行文件构建地址空间: 代码段和已初始化数据段
// 按各自的虚拟地址复制到交换区, 再加上 userStackSize 字节的用户栈
func LoadAddrSpace(exe Executable, pageSize int, userStackSize int) (*AddrSpace, error) {
	buff := make([]byte, NoffHeaderSize)
	if n := exe.ReadAt(buff, NoffHeaderSize, 0); n < NoffHeaderSize {
		return nil, errors.Wrapf(ErrShortExecutable, "read %d header bytes", n)
	}
	noffH, err := ParseNoffHeader(buff)
	if err != nil {
		return nil, err
	}

	size := noffH.MemorySize() + userStackSize
	numPages := util.DivRoundUp(size, pageSize)
	logger.Debugf("initializing address space, num pages %d, size %d", numPages, numPages*pageSize)

	space := NewAddrSpace(numPages, pageSize)
	for _, seg := range []Segment{noffH.Code, noffH.InitData} {
		if seg.Size <= 0 {
			continue
		}
		if seg.VirtualAddr < 0 || seg.VirtualAddr+seg.Size > len(space.swap) {
			return nil, errors.Wrapf(ErrSegmentRange, "segment at 0x%x size %d", seg.VirtualAddr, seg.Size)
		}
		if n := exe.ReadAt(space.swap[seg.VirtualAddr:], seg.Size, seg.InFileAddr); n < seg.Size {
			return nil, errors.Wrapf(ErrShortExecutable, "segment at 0x%x: read %d of %d bytes", seg.VirtualAddr, n, seg.Size)
		}
	}
	return space, nil
}

// NumPages 虚拟页数
func (as *AddrSpace) NumPages() int { return as.numPages }

// Size 地址空间字节数
func (as *AddrSpace) Size() int { return len(as.swap) }

// page 交换区中第 vpn 页
func (as *AddrSpace) page(vpn int) []byte {
	util.AssertInRange(vpn, as.numPages, "virtual page")
	return as.swap[vpn*as.pageSize : (vpn+1)*as.pageSize]
}

// SwapPage 返回交换区中第 vpn 页的副本
func (as *AddrSpace) SwapPage(vpn int) []byte {
	out := make([]byte, as.pageSize)
	copy(out, as.page(vpn))
	return out
}

// InitRegisters 设置用户程序的初始寄存器: PC 从 0 开始, 栈指针位于地址空间末尾之前
func (as *AddrSpace) InitRegisters(m *machine.Machine) {
	for i := 0; i < machine.NumTotalRegs; i++ {
		m.WriteRegister(i, 0)
	}
	m.WriteRegister(machine.PCReg, 0)
	m.WriteRegister(machine.NextPCReg, 4)
	// 留出一点空间, 避免越过地址空间末尾
	m.WriteRegister(machine.StackReg, as.numPages*as.pageSize-16)
}

// RestoreState 切换到该地址空间: 设置页表大小并清空 TLB
func (as *AddrSpace) RestoreState(m *machine.Machine) {
	m.SetPageTableSize(as.numPages)
	m.FlushTLB()
}

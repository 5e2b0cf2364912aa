package machine

import (
	"sync"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/util"
)

// 用户态寄存器编号
const (
	StackReg     = 29 // 栈指针
	RetAddrReg   = 31 // 返回地址
	NumGPRegs    = 32 // 通用寄存器个数
	HiReg        = 32 // 乘法结果高位
	LoReg        = 33 // 乘法结果低位
	PCReg        = 34 // 当前 PC
	NextPCReg    = 35 // 下一条指令
	PrevPCReg    = 36 // 上一条指令
	LoadReg      = 37 // 延迟加载的目标寄存器
	LoadValueReg = 38 // 延迟加载的值
	BadVAddrReg  = 39 // 引发异常的虚拟地址
	NumTotalRegs = 40
)

// maxTranslateAttempts 一次访存最多重试的次数: TLB 缺失处理返回后重试一次即可命中
const maxTranslateAttempts = 4

// Machine 模拟的 CPU 与物理内存. 页表由内核的倒排页表代替,
// 硬件只通过 TLB 翻译地址.
type Machine struct {
	mu sync.Mutex

	registers [NumTotalRegs]int

	// MainMemory 物理内存, 异常处理程序直接在其中换入换出页面
	MainMemory []byte

	pageSize     int
	numPhysPages int

	tlb      []TLBSlot
	tlbClock int64

	// pageTableSize 当前地址空间的虚拟页数, 越界访问产生 AddressErrorException
	pageTableSize int

	handler ExceptionHandler
	halted  bool
}

// NewMachine 创建机器, 物理内存清零, TLB 全部无效
func NewMachine(pageSize, numPhysPages, tlbSize int) *Machine {
	util.Assert(pageSize > 0 && numPhysPages > 0 && tlbSize > 0,
		"bad machine geometry %d/%d/%d", pageSize, numPhysPages, tlbSize)
	return &Machine{
		MainMemory:   make([]byte, pageSize*numPhysPages),
		pageSize:     pageSize,
		numPhysPages: numPhysPages,
		tlb:          make([]TLBSlot, tlbSize),
	}
}

// SetExceptionHandler 设置内核异常入口
func (m *Machine) SetExceptionHandler(handler ExceptionHandler) {
	m.handler = handler
}

func (m *Machine) PageSize() int { return m.pageSize }

func (m *Machine) NumPhysPages() int { return m.numPhysPages }

// ReadRegister 读寄存器
func (m *Machine) ReadRegister(num int) int {
	util.AssertInRange(num, NumTotalRegs, "register")
	return m.registers[num]
}

// WriteRegister 写寄存器
func (m *Machine) WriteRegister(num int, value int) {
	util.AssertInRange(num, NumTotalRegs, "register")
	m.registers[num] = value
}

// SetPageTableSize 设置当前地址空间的虚拟页数
func (m *Machine) SetPageTableSize(numPages int) {
	m.pageTableSize = numPages
}

// PageTableSize 当前地址空间的虚拟页数
func (m *Machine) PageTableSize() int {
	return m.pageTableSize
}

// RaiseException 转入内核处理异常, badVAddr 记录在 BadVAddrReg 中
func (m *Machine) RaiseException(which ExceptionType, badVAddr int) {
	logger.Debugf("exception %s at 0x%x", which, badVAddr)
	m.WriteRegister(BadVAddrReg, badVAddr)
	util.Assert(m.handler != nil, "no exception handler installed for %s", which)
	m.handler.HandleException(which)
}

// Halt 停机
func (m *Machine) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = true
	logger.Infof("machine halting")
}

// Halted 是否已停机
func (m *Machine) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

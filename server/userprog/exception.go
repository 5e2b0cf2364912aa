// Package userprog 是用户态进入内核的入口: 根据异常类型分派到系统调用或分页处理.
package userprog

import (
	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/vm"
	"github.com/zhukovaskychina/xnachos/util"
)

// ExceptionHandler 内核异常处理程序
type ExceptionHandler struct {
	machine *machine.Machine
	memory  *vm.MemoryManager
	procs   *vm.ProcessTable
}

// NewExceptionHandler 创建异常处理程序并安装到 m 上
func NewExceptionHandler(m *machine.Machine, memory *vm.MemoryManager, procs *vm.ProcessTable) *ExceptionHandler {
	h := &ExceptionHandler{machine: m, memory: memory, procs: procs}
	m.SetExceptionHandler(h)
	return h
}

// HandleException 实现 machine.ExceptionHandler
func (h *ExceptionHandler) HandleException(which machine.ExceptionType) {
	switch which {
	case machine.SyscallException:
		h.syscall(h.machine.ReadRegister(SyscallCodeReg))
	case machine.TLBMissException:
		h.memory.HandleTLBMiss()
	case machine.PageFaultException:
		h.memory.HandlePageFault()
	default:
		util.Assert(false, "unexpected user mode exception %s, bad address 0x%x",
			which, h.machine.ReadRegister(machine.BadVAddrReg))
	}
}

func (h *ExceptionHandler) syscall(code int) {
	switch code {
	case SCHalt:
		logger.Debugf("shutdown, initiated by user program")
		h.machine.Halt()
	case SCExit:
		h.exit(h.machine.ReadRegister(SyscallArg1Reg))
	default:
		util.Assert(false, "unexpected system call %d", code)
	}
}

// exit 结束当前线程: 释放页框, 标记线程结束并记录退出码
func (h *ExceptionHandler) exit(status int) {
	tid := h.procs.CurrentTid()
	util.Assert(tid != vm.NoThread, "exit with no current thread")
	logger.Debugf("finish, initiated by thread %d with status %d", tid, status)

	h.memory.ReleaseThread(tid)
	err := h.procs.Exit(tid, status)
	util.Assert(err == nil, "exit thread %d: %v", tid, err)
}

package kernel

import (
	"fmt"
	"io"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/userprog"
	"github.com/zhukovaskychina/xnachos/server/vm"
)

const vmTestProgram = "vmtest"

// vmTestImage 代码段与数据段各占若干页, 内容可以由地址推算出来
func (k *Kernel) vmTestImage() []byte {
	pageSize := k.cfg.PageSize
	code := make([]byte, 8*pageSize)
	for i := range code {
		code[i] = byte(i % 251)
	}
	data := make([]byte, 4*pageSize)
	for i := range data {
		data[i] = byte(0xff - i%251)
	}
	return vm.BuildNoffImage(code, data, 4*pageSize)
}

// RunVMTest 装入同一个程序的 numThreads 个实例, 交替地写满各自的每一页再读回,
// 使各线程的页面在物理内存与交换区之间反复换入换出, 最后通过 Exit 系统调用结束.
func (k *Kernel) RunVMTest(w io.Writer, numThreads int) error {
	if numThreads < 1 {
		return errors.Errorf("vm test needs at least one thread, got %d", numThreads)
	}
	image := k.vmTestImage()
	if k.FileSystem.Open(vmTestProgram) == nil {
		if err := k.Install(vmTestProgram, image); err != nil {
			return errors.Trace(err)
		}
	}

	var procs []*vm.Process
	for i := 0; i < numThreads; i++ {
		p, err := k.Exec(vmTestProgram)
		if err != nil {
			return errors.Trace(err)
		}
		procs = append(procs, p)
	}

	pageSize := k.cfg.PageSize
	marker := func(tid, vpn int) int { return tid<<16 | vpn }

	for _, p := range procs {
		if err := k.Switch(p.Tid); err != nil {
			return errors.Trace(err)
		}
		for vpn := 0; vpn < p.Space.NumPages(); vpn++ {
			k.Machine.Store((vpn+1)*pageSize-4, 4, marker(p.Tid, vpn))
		}
	}

	codeBytes := 8 * pageSize
	for _, p := range procs {
		if err := k.Switch(p.Tid); err != nil {
			return errors.Trace(err)
		}
		for vpn := 0; vpn < p.Space.NumPages(); vpn++ {
			if got := k.Machine.Load((vpn+1)*pageSize-4, 4); got != marker(p.Tid, vpn) {
				return errors.Annotatef(errVMCheck, "thread %d page %d: got 0x%x", p.Tid, vpn, got)
			}
			if addr := vpn * pageSize; addr < codeBytes {
				if got := k.Machine.Load(addr, 1); got != int(image[vm.NoffHeaderSize+addr]) {
					return errors.Annotatef(errVMCheck, "thread %d code byte 0x%x: got 0x%x", p.Tid, addr, got)
				}
			}
		}

		k.Machine.WriteRegister(userprog.SyscallCodeReg, userprog.SCExit)
		k.Machine.WriteRegister(userprog.SyscallArg1Reg, 0)
		k.Machine.RaiseException(machine.SyscallException, 0)
	}

	fmt.Fprintf(w, "vm test: %d threads of %d pages on %d frames passed\n",
		numThreads, procs[0].Space.NumPages(), k.Machine.NumPhysPages())
	fmt.Fprintln(w, k.Memory.Stats())
	return nil
}

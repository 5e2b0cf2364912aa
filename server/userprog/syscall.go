package userprog

// 系统调用号, 由用户程序放在 r2 中
const (
	SCHalt = 0
	SCExit = 1
)

// 系统调用参数和返回值所用的寄存器
const (
	SyscallCodeReg = 2
	SyscallArg1Reg = 4
)

package machine

import "fmt"

// ExceptionType 用户态进入内核的原因
type ExceptionType int

const (
	NoException           ExceptionType = iota // 一切正常
	SyscallException                           // 系统调用
	PageFaultException                         // 页不在物理内存中
	ReadOnlyException                          // 写只读页
	BusErrorException                          // 翻译得到非法物理地址
	AddressErrorException                      // 地址未对齐或越过地址空间
	OverflowException                          // 整数溢出
	IllegalInstrException                      // 非法指令
	TLBMissException                           // TLB 中没有对应表项
	NumExceptionTypes
)

var exceptionNames = [...]string{
	"NoException",
	"SyscallException",
	"PageFaultException",
	"ReadOnlyException",
	"BusErrorException",
	"AddressErrorException",
	"OverflowException",
	"IllegalInstrException",
	"TLBMissException",
}

func (e ExceptionType) String() string {
	if e >= 0 && int(e) < len(exceptionNames) {
		return exceptionNames[e]
	}
	return fmt.Sprintf("ExceptionType(%d)", int(e))
}

// ExceptionHandler 内核的异常入口
type ExceptionHandler interface {
	HandleException(which ExceptionType)
}

// ExceptionHandlerFunc 适配普通函数
type ExceptionHandlerFunc func(which ExceptionType)

func (f ExceptionHandlerFunc) HandleException(which ExceptionType) {
	f(which)
}

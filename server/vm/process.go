package vm

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/machine"
)

// NoThread 没有正在运行的线程
const NoThread = -1

// Process 用户线程及其地址空间
type Process struct {
	Tid        int
	Name       string
	Space      *AddrSpace
	Alive      bool
	ExitStatus int
}

// ProcessTable 线程号登记表, 记录每个线程是否存活以及当前运行的线程.
// 线程号单调递增, 不会复用.
type ProcessTable struct {
	mu      sync.Mutex
	procs   map[int]*Process
	nextTid int
	current int
}

// NewProcessTable 创建空的登记表
func NewProcessTable() *ProcessTable {
	return &ProcessTable{
		procs:   make(map[int]*Process),
		current: NoThread,
	}
}

// Add 登记一个新线程并分配线程号
func (pt *ProcessTable) Add(name string, space *AddrSpace) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p := &Process{Tid: pt.nextTid, Name: name, Space: space, Alive: true}
	pt.procs[p.Tid] = p
	pt.nextTid++
	logger.Debugf("thread %d (%s) created with %d pages", p.Tid, name, space.NumPages())
	return p
}

// Lookup 按线程号查找
func (pt *ProcessTable) Lookup(tid int) (*Process, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[tid]
	return p, ok
}

// Alive 线程是否仍存活
func (pt *ProcessTable) Alive(tid int) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[tid]
	return ok && p.Alive
}

// CurrentTid 当前线程号
func (pt *ProcessTable) CurrentTid() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.current
}

// Current 当前线程, 没有时返回 nil
func (pt *ProcessTable) Current() *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.procs[pt.current]
}

// Switch 切换到线程 tid 并装入其地址空间
func (pt *ProcessTable) Switch(tid int, m *machine.Machine) error {
	pt.mu.Lock()
	p, ok := pt.procs[tid]
	if !ok {
		pt.mu.Unlock()
		return errors.Wrapf(ErrNoSuchThread, "switch to %d", tid)
	}
	if !p.Alive {
		pt.mu.Unlock()
		return errors.Wrapf(ErrThreadExited, "switch to %d", tid)
	}
	pt.current = tid
	pt.mu.Unlock()

	p.Space.RestoreState(m)
	return nil
}

// Exit 标记线程结束并记录退出码. 结束的是当前线程时, 当前线程置为 NoThread.
func (pt *ProcessTable) Exit(tid int, status int) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.procs[tid]
	if !ok {
		return errors.Wrapf(ErrNoSuchThread, "exit %d", tid)
	}
	if !p.Alive {
		return errors.Wrapf(ErrThreadExited, "exit %d", tid)
	}
	p.Alive = false
	p.ExitStatus = status
	if pt.current == tid {
		pt.current = NoThread
	}
	logger.Debugf("thread %d (%s) exited with status %d", tid, p.Name, status)
	return nil
}

// AliveTids 按线程号升序返回存活的线程
func (pt *ProcessTable) AliveTids() []int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var tids []int
	for tid, p := range pt.procs {
		if p.Alive {
			tids = append(tids, tid)
		}
	}
	sort.Ints(tids)
	return tids
}

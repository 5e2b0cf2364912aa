package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xnachos/server/machine"
)

const (
	testPageSize = 128
	testFrames   = 8
	testTLBSize  = 4
)

type harness struct {
	m     *machine.Machine
	procs *ProcessTable
	mm    *MemoryManager
}

func newHarness() *harness {
	m := machine.NewMachine(testPageSize, testFrames, testTLBSize)
	procs := NewProcessTable()
	mm := NewMemoryManager(m, procs, nil)
	m.SetExceptionHandler(machine.ExceptionHandlerFunc(func(which machine.ExceptionType) {
		switch which {
		case machine.TLBMissException:
			mm.HandleTLBMiss()
		case machine.PageFaultException:
			mm.HandlePageFault()
		default:
			panic(which.String())
		}
	}))
	return &harness{m: m, procs: procs, mm: mm}
}

func (h *harness) spawn(t *testing.T, numPages int) *Process {
	p := h.procs.Add("test", NewAddrSpace(numPages, testPageSize))
	require.NoError(t, h.procs.Switch(p.Tid, h.m))
	return p
}

func (h *harness) frameOf(tid, vpn int) int {
	for i, f := range h.mm.Frames() {
		if f.Occupied && f.Owner == tid && f.VPN == vpn {
			return i
		}
	}
	return -1
}

// checkInvariants 每个 (线程, 虚拟页) 至多占用一个页框, TLB 中的翻译都指向对应的页框
func (h *harness) checkInvariants(t *testing.T) {
	seen := map[[2]int]bool{}
	frames := h.mm.Frames()
	for _, f := range frames {
		if !f.Occupied {
			continue
		}
		key := [2]int{f.Owner, f.VPN}
		assert.False(t, seen[key], "thread %d page %d resident twice", f.Owner, f.VPN)
		seen[key] = true
	}
	tid := h.procs.CurrentTid()
	for _, slot := range h.m.TLBSlots() {
		if !slot.Entry.Valid {
			continue
		}
		f := frames[slot.Entry.PhysicalPage]
		assert.True(t, f.Occupied)
		assert.Equal(t, tid, f.Owner)
		assert.Equal(t, slot.Entry.VirtualPage, f.VPN)
	}
}

func TestDemandPagingPreservesData(t *testing.T) {
	h := newHarness()
	h.spawn(t, 16)

	for vpn := 0; vpn < 16; vpn++ {
		h.m.Store(vpn*testPageSize+8, 4, 1000+vpn)
	}
	for vpn := 0; vpn < 16; vpn++ {
		assert.Equal(t, 1000+vpn, h.m.Load(vpn*testPageSize+8, 4))
	}

	stats := h.mm.Stats()
	assert.Equal(t, int64(32), stats.PageFaults)
	assert.Equal(t, int64(24), stats.Evictions)
	assert.Zero(t, stats.Discarded)
	h.checkInvariants(t)
}

func TestTLBReplacementIsLRU(t *testing.T) {
	h := newHarness()
	h.spawn(t, 16)

	for vpn := 0; vpn < 4; vpn++ {
		h.m.Load(vpn*testPageSize, 4)
		assert.Equal(t, vpn, h.m.TLBSlot(vpn).Entry.VirtualPage)
	}
	// 命中刷新槽位 0 的时间戳, 槽位 1 成为最久未用
	h.m.Load(0, 4)
	h.m.Load(4*testPageSize, 4)

	assert.Equal(t, 0, h.m.TLBSlot(0).Entry.VirtualPage)
	assert.Equal(t, 4, h.m.TLBSlot(1).Entry.VirtualPage)
	assert.Equal(t, int64(5), h.mm.Stats().TLBMisses)
}

func TestVictimSkipsTLBPinnedFrames(t *testing.T) {
	h := newHarness()
	p := h.spawn(t, 16)

	for vpn := 0; vpn < testFrames; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 500+vpn)
	}
	// TLB 中现在是页 4..7
	pinnedFrame := h.frameOf(p.Tid, 4)
	require.GreaterOrEqual(t, pinnedFrame, 0)
	h.mm.mu.Lock()
	h.mm.frames[pinnedFrame].LastAccess = 0
	h.mm.mu.Unlock()

	victimFrame := h.frameOf(p.Tid, 0)
	h.m.Load(8*testPageSize, 4)

	assert.Equal(t, pinnedFrame, h.frameOf(p.Tid, 4))
	assert.Equal(t, victimFrame, h.frameOf(p.Tid, 8))
	assert.Equal(t, -1, h.frameOf(p.Tid, 0))

	// 被换出的页写回了交换区
	_, v := readInt(p.Space.SwapPage(0), 0)
	assert.Equal(t, 500, v)
	h.checkInvariants(t)
}

func readInt(page []byte, off int) (int, int) {
	v := int(page[off]) | int(page[off+1])<<8 | int(page[off+2])<<16 | int(int8(page[off+3]))<<24
	return off + 4, v
}

func TestThreadsShareFrames(t *testing.T) {
	h := newHarness()
	p1 := h.spawn(t, 12)
	for vpn := 0; vpn < 12; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 100+vpn)
	}
	p2 := h.spawn(t, 12)
	for vpn := 0; vpn < 12; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 200+vpn)
	}
	h.checkInvariants(t)

	require.NoError(t, h.procs.Switch(p1.Tid, h.m))
	for vpn := 0; vpn < 12; vpn++ {
		assert.Equal(t, 100+vpn, h.m.Load(vpn*testPageSize, 4))
	}

	h.mm.ReleaseThread(p1.Tid)
	require.NoError(t, h.procs.Exit(p1.Tid, 3))
	for _, f := range h.mm.Frames() {
		assert.False(t, f.Occupied && f.Owner == p1.Tid)
	}
	for _, slot := range h.m.TLBSlots() {
		assert.False(t, slot.Entry.Valid)
	}

	require.NoError(t, h.procs.Switch(p2.Tid, h.m))
	for vpn := 0; vpn < 12; vpn++ {
		assert.Equal(t, 200+vpn, h.m.Load(vpn*testPageSize, 4))
	}
	exited, _ := h.procs.Lookup(p1.Tid)
	assert.Equal(t, 3, exited.ExitStatus)
	assert.Equal(t, []int{p2.Tid}, h.procs.AliveTids())
}

func TestDeadOwnerPagesAreDiscarded(t *testing.T) {
	h := newHarness()
	p1 := h.spawn(t, 8)
	for vpn := 0; vpn < 8; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 7)
	}
	require.NoError(t, h.procs.Exit(p1.Tid, 0))

	h.spawn(t, 8)
	for vpn := 0; vpn < 8; vpn++ {
		h.m.Load(vpn*testPageSize, 4)
	}
	stats := h.mm.Stats()
	assert.Equal(t, int64(8), stats.Discarded)
	assert.Zero(t, stats.Evictions)
	// 交换区保持原样
	assert.Equal(t, make([]byte, testPageSize), p1.Space.SwapPage(0))
}

func TestOwnerExitDuringEviction(t *testing.T) {
	h := newHarness()
	p1 := h.spawn(t, 8)
	for vpn := 0; vpn < 8; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 7)
	}
	h.spawn(t, 8)

	done := make(chan error)
	go func() {
		done <- h.procs.Exit(p1.Tid, 0)
	}()
	for vpn := 0; vpn < 8; vpn++ {
		h.m.Store(vpn*testPageSize, 4, 100+vpn)
	}
	require.NoError(t, <-done)

	stats := h.mm.Stats()
	assert.Equal(t, int64(8), stats.Evictions+stats.Discarded)
	assert.False(t, h.procs.Alive(p1.Tid))
	for vpn := 0; vpn < 8; vpn++ {
		assert.Equal(t, 100+vpn, h.m.Load(vpn*testPageSize, 4))
	}
	h.checkInvariants(t)
}

func TestAddressErrorBeyondPageTable(t *testing.T) {
	h := newHarness()
	h.spawn(t, 2)
	_, exc := h.m.Translate(2*testPageSize, 4, false)
	assert.Equal(t, machine.AddressErrorException, exc)
}

func TestNewMemoryManagerNeedsSpareFrames(t *testing.T) {
	m := machine.NewMachine(testPageSize, testTLBSize, testTLBSize)
	assert.Panics(t, func() { NewMemoryManager(m, NewProcessTable(), nil) })
}

func TestPagingWithoutThreadPanics(t *testing.T) {
	h := newHarness()
	h.m.WriteRegister(machine.BadVAddrReg, 0)
	assert.Panics(t, func() { h.mm.HandlePageFault() })
}

func TestDump(t *testing.T) {
	h := newHarness()
	p := h.spawn(t, 4)
	h.m.Load(testPageSize, 4)

	var out bytes.Buffer
	h.mm.Dump(&out)
	assert.Contains(t, out.String(), "thread: 0, VirtPage: 1")
	assert.Contains(t, out.String(), "PhysPage: 7, free")
	assert.Equal(t, 0, p.Tid)
}

package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xnachos/server/machine"
)

type imageFile []byte

func (f imageFile) ReadAt(into []byte, numBytes int, position int) int {
	if position >= len(f) {
		return 0
	}
	return copy(into[:numBytes], f[position:])
}

func TestLoadAddrSpace(t *testing.T) {
	code := bytes.Repeat([]byte{0xc0}, 300)
	data := bytes.Repeat([]byte{0xda}, 100)
	image := BuildNoffImage(code, data, 50)

	space, err := LoadAddrSpace(imageFile(image), testPageSize, DefaultUserStackSize)
	require.NoError(t, err)
	// 300 + 100 + 50 + 1024 = 1474 字节, 12 页
	assert.Equal(t, 12, space.NumPages())
	assert.Equal(t, 12*testPageSize, space.Size())

	assert.Equal(t, byte(0xc0), space.SwapPage(0)[0])
	assert.Equal(t, byte(0xc0), space.SwapPage(2)[300-2*testPageSize-1])
	assert.Equal(t, byte(0xda), space.SwapPage(2)[300-2*testPageSize])
	assert.Equal(t, byte(0xda), space.SwapPage(3)[399-3*testPageSize])
	assert.Equal(t, byte(0), space.SwapPage(3)[400-3*testPageSize])
}

func TestLoadAddrSpaceErrors(t *testing.T) {
	_, err := LoadAddrSpace(imageFile([]byte{1, 2, 3}), testPageSize, DefaultUserStackSize)
	assert.ErrorIs(t, err, ErrShortExecutable)

	bad := BuildNoffImage(nil, nil, 0)
	bad[0] = 0
	_, err = LoadAddrSpace(imageFile(bad), testPageSize, DefaultUserStackSize)
	assert.ErrorIs(t, err, ErrBadNoffMagic)

	truncated := BuildNoffImage(make([]byte, 200), nil, 0)
	_, err = LoadAddrSpace(imageFile(truncated[:NoffHeaderSize+10]), testPageSize, DefaultUserStackSize)
	assert.ErrorIs(t, err, ErrShortExecutable)

	h := NoffHeader{Code: Segment{VirtualAddr: 4096, InFileAddr: NoffHeaderSize, Size: 8}}
	image := append(h.Bytes(), make([]byte, 8)...)
	_, err = LoadAddrSpace(imageFile(image), testPageSize, 0)
	assert.ErrorIs(t, err, ErrSegmentRange)
}

func TestParseBigEndianHeader(t *testing.T) {
	h := NoffHeader{Code: Segment{VirtualAddr: 0, InFileAddr: 40, Size: 300}}
	le := h.Bytes()
	be := make([]byte, len(le))
	for i := 0; i < len(le); i += 4 {
		be[i], be[i+1], be[i+2], be[i+3] = le[i+3], le[i+2], le[i+1], le[i]
	}

	parsed, err := ParseNoffHeader(be)
	require.NoError(t, err)
	assert.Equal(t, uint32(NoffMagic), parsed.Magic)
	assert.Equal(t, 300, parsed.Code.Size)
	assert.Equal(t, 40, parsed.Code.InFileAddr)
}

func TestInitRegistersAndRestoreState(t *testing.T) {
	m := machine.NewMachine(testPageSize, testFrames, testTLBSize)
	m.WriteRegister(5, 42)
	m.InstallTLB(0, machine.TranslationEntry{VirtualPage: 1, Valid: true})

	space := NewAddrSpace(10, testPageSize)
	space.InitRegisters(m)
	space.RestoreState(m)

	assert.Zero(t, m.ReadRegister(5))
	assert.Zero(t, m.ReadRegister(machine.PCReg))
	assert.Equal(t, 4, m.ReadRegister(machine.NextPCReg))
	assert.Equal(t, 10*testPageSize-16, m.ReadRegister(machine.StackReg))
	assert.Equal(t, 10, m.PageTableSize())
	assert.False(t, m.TLBSlot(0).Entry.Valid)
}

func TestProcessTable(t *testing.T) {
	m := machine.NewMachine(testPageSize, testFrames, testTLBSize)
	pt := NewProcessTable()
	assert.Equal(t, NoThread, pt.CurrentTid())
	assert.Nil(t, pt.Current())

	a := pt.Add("a", NewAddrSpace(3, testPageSize))
	b := pt.Add("b", NewAddrSpace(5, testPageSize))
	assert.Equal(t, 0, a.Tid)
	assert.Equal(t, 1, b.Tid)

	require.NoError(t, pt.Switch(b.Tid, m))
	assert.Equal(t, b, pt.Current())
	assert.Equal(t, 5, m.PageTableSize())

	assert.ErrorIs(t, pt.Switch(9, m), ErrNoSuchThread)
	require.NoError(t, pt.Exit(b.Tid, 1))
	assert.Equal(t, NoThread, pt.CurrentTid())
	assert.False(t, pt.Alive(b.Tid))
	assert.ErrorIs(t, pt.Exit(b.Tid, 1), ErrThreadExited)
	assert.ErrorIs(t, pt.Switch(b.Tid, m), ErrThreadExited)
	assert.ErrorIs(t, pt.Exit(9, 0), ErrNoSuchThread)
	assert.Equal(t, []int{a.Tid}, pt.AliveTids())
}

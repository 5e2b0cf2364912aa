package vm

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xnachos/util"
)

const (
	// NoffMagic NOFF 可执行文件魔数
	NoffMagic = 0x00badfad
	// NoffHeaderSize 魔数加三个段描述, 每个段描述 3 个 int32
	NoffHeaderSize = 4 + 3*12
)

// Executable 读取可执行文件所需的接口, 文件系统的 OpenFile 满足该接口
type Executable interface {
	ReadAt(into []byte, numBytes int, position int) int
}

// Segment 段描述
type Segment struct {
	VirtualAddr int
	InFileAddr  int
	Size        int
}

// NoffHeader NOFF 文件头
type NoffHeader struct {
	Magic      uint32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

// MemorySize 三个段所需的字节数, 不含用户栈
func (h NoffHeader) MemorySize() int {
	return h.Code.Size + h.InitData.Size + h.UninitData.Size
}

func swapWord(v uint32) uint32 {
	return v>>24 | (v>>8)&0xff00 | (v<<8)&0xff0000 | v<<24
}

// ParseNoffHeader 解码 NOFF 文件头, 兼容按大端序写出的文件
func ParseNoffHeader(buff []byte) (NoffHeader, error) {
	var h NoffHeader
	if len(buff) < NoffHeaderSize {
		return h, errors.Wrapf(ErrShortExecutable, "header has %d bytes", len(buff))
	}

	cursor, magic := util.ReadUB4(buff, 0)
	swapped := false
	if magic != NoffMagic {
		if swapWord(magic) != NoffMagic {
			return h, errors.Wrapf(ErrBadNoffMagic, "magic 0x%08x", magic)
		}
		swapped = true
	}
	h.Magic = NoffMagic

	word := func() int {
		var v uint32
		cursor, v = util.ReadUB4(buff, cursor)
		if swapped {
			v = swapWord(v)
		}
		return int(int32(v))
	}
	for _, seg := range []*Segment{&h.Code, &h.InitData, &h.UninitData} {
		seg.VirtualAddr = word()
		seg.InFileAddr = word()
		seg.Size = word()
	}
	return h, nil
}

// Bytes 按小端序编码 NOFF 文件头
func (h NoffHeader) Bytes() []byte {
	buff := make([]byte, NoffHeaderSize)
	cursor := util.WriteUB4(buff, 0, NoffMagic)
	for _, seg := range []Segment{h.Code, h.InitData, h.UninitData} {
		cursor = util.WriteInt4(buff, cursor, seg.VirtualAddr)
		cursor = util.WriteInt4(buff, cursor, seg.InFileAddr)
		cursor = util.WriteInt4(buff, cursor, seg.Size)
	}
	return buff
}

// BuildNoffImage 生成一个 NOFF 镜像: 代码段从虚拟地址 0 开始,
// 已初始化数据段紧随其后, 未初始化数据段只占地址空间
func BuildNoffImage(code []byte, initData []byte, uninitSize int) []byte {
	h := NoffHeader{
		Magic: NoffMagic,
		Code: Segment{
			VirtualAddr: 0,
			InFileAddr:  NoffHeaderSize,
			Size:        len(code),
		},
		InitData: Segment{
			VirtualAddr: len(code),
			InFileAddr:  NoffHeaderSize + len(code),
			Size:        len(initData),
		},
		UninitData: Segment{
			VirtualAddr: len(code) + len(initData),
			Size:        uninitSize,
		},
	}
	image := h.Bytes()
	image = append(image, code...)
	return append(image, initData...)
}

package machine

import (
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/util"
)

// Disk 模拟的物理磁盘. 请求立即返回, 操作完成后在另一个 goroutine 中
// 调用 requestDone, 相当于磁盘中断. 同一时刻只允许一个请求在途.
type Disk struct {
	mu          sync.Mutex
	store       BlockStore
	requestDone func()
	active      bool

	numReads  int64
	numWrites int64
}

// NewDisk 在 store 之上创建磁盘, requestDone 为完成中断处理函数
func NewDisk(store BlockStore, requestDone func()) *Disk {
	return &Disk{store: store, requestDone: requestDone}
}

// SectorSize 扇区大小
func (d *Disk) SectorSize() int { return d.store.BlockSize() }

// NumSectors 扇区总数
func (d *Disk) NumSectors() int { return d.store.NumBlocks() }

func (d *Disk) begin(sectorNumber int, data []byte, write bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	util.Assert(!d.active, "disk request on sector %d while another is in flight", sectorNumber)
	util.AssertInRange(sectorNumber, d.store.NumBlocks(), "disk sector")
	util.Assert(len(data) >= d.store.BlockSize(), "disk buffer %d shorter than sector", len(data))
	d.active = true
	if write {
		d.numWrites++
	} else {
		d.numReads++
	}
}

func (d *Disk) finish() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
	d.requestDone()
}

// ReadRequest 发起读请求, data 在完成中断之前不可访问
func (d *Disk) ReadRequest(sectorNumber int, data []byte) {
	d.begin(sectorNumber, data, false)
	go func() {
		if err := d.store.ReadBlock(sectorNumber, data); err != nil {
			logger.Errorf("disk read of sector %d failed: %v", sectorNumber, err)
			panic(err)
		}
		logger.Debugf("disk read sector %d", sectorNumber)
		d.finish()
	}()
}

// WriteRequest 发起写请求, data 在完成中断之前不可修改
func (d *Disk) WriteRequest(sectorNumber int, data []byte) {
	d.begin(sectorNumber, data, true)
	go func() {
		if err := d.store.WriteBlock(sectorNumber, data); err != nil {
			logger.Errorf("disk write of sector %d failed: %v", sectorNumber, err)
			panic(err)
		}
		logger.Debugf("disk write sector %d", sectorNumber)
		d.finish()
	}()
}

// Counters 返回已发起的物理读写次数
func (d *Disk) Counters() (reads int64, writes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numReads, d.numWrites
}

// idle 持锁并确认没有在途请求
func (d *Disk) idle() error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return ErrDiskBusy
	}
	return nil
}

// Fingerprint 计算整个磁盘内容的 xxhash 指纹, 不经过中断路径, 也不计入读写次数
func (d *Disk) Fingerprint() (uint64, error) {
	if err := d.idle(); err != nil {
		return 0, err
	}
	defer d.mu.Unlock()

	chunks := make([][]byte, d.store.NumBlocks())
	for i := range chunks {
		chunks[i] = make([]byte, d.store.BlockSize())
		if err := d.store.ReadBlock(i, chunks[i]); err != nil {
			return 0, err
		}
	}
	return util.HashChunks(chunks...), nil
}

// Snapshot 将整个磁盘以 snappy 压缩流写入 w. 头部记录扇区大小与扇区数.
func (d *Disk) Snapshot(w io.Writer) error {
	if err := d.idle(); err != nil {
		return err
	}
	defer d.mu.Unlock()

	sw := snappy.NewBufferedWriter(w)
	header := make([]byte, 12)
	cursor := util.WriteUB4(header, 0, DiskMagic)
	cursor = util.WriteInt4(header, cursor, d.store.BlockSize())
	util.WriteInt4(header, cursor, d.store.NumBlocks())
	if _, err := sw.Write(header); err != nil {
		return errors.Wrap(err, "write snapshot header")
	}

	buf := make([]byte, d.store.BlockSize())
	for i := 0; i < d.store.NumBlocks(); i++ {
		if err := d.store.ReadBlock(i, buf); err != nil {
			return err
		}
		if _, err := sw.Write(buf); err != nil {
			return errors.Wrapf(err, "write snapshot sector %d", i)
		}
	}
	return sw.Close()
}

// Restore 从 Snapshot 产生的流恢复磁盘内容, 几何参数必须一致
func (d *Disk) Restore(r io.Reader) error {
	if err := d.idle(); err != nil {
		return err
	}
	defer d.mu.Unlock()

	sr := snappy.NewReader(r)
	header := make([]byte, 12)
	if _, err := io.ReadFull(sr, header); err != nil {
		return errors.Wrap(ErrSnapshotFormat, err.Error())
	}
	cursor, magic := util.ReadUB4(header, 0)
	cursor, sectorSize := util.ReadInt4(header, cursor)
	_, numSectors := util.ReadInt4(header, cursor)
	if magic != DiskMagic {
		return errors.Wrapf(ErrBadMagic, "snapshot magic 0x%x", magic)
	}
	if sectorSize != d.store.BlockSize() || numSectors != d.store.NumBlocks() {
		return errors.Wrapf(ErrGeometry, "snapshot %dx%d, disk %dx%d",
			numSectors, sectorSize, d.store.NumBlocks(), d.store.BlockSize())
	}

	buf := make([]byte, sectorSize)
	for i := 0; i < numSectors; i++ {
		if _, err := io.ReadFull(sr, buf); err != nil {
			return errors.Wrapf(err, "read snapshot sector %d", i)
		}
		if err := d.store.WriteBlock(i, buf); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭后备存储
func (d *Disk) Close() error {
	return d.store.Close()
}

// Package kernel 负责一次性构造并持有内核的全部组件:
// 磁盘与缓存、文件系统、机器、线程登记表、物理内存管理器和异常处理程序.
package kernel

import (
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/conf"
	"github.com/zhukovaskychina/xnachos/server/filesys"
	"github.com/zhukovaskychina/xnachos/server/filesys/synchdisk"
	"github.com/zhukovaskychina/xnachos/server/machine"
	"github.com/zhukovaskychina/xnachos/server/metrics"
	"github.com/zhukovaskychina/xnachos/server/userprog"
	"github.com/zhukovaskychina/xnachos/server/vm"
)

// Kernel 内核
type Kernel struct {
	cfg *conf.Cfg

	Metrics    *metrics.Registry
	Disk       *synchdisk.SynchDisk
	FileSystem *filesys.FileSystem
	Machine    *machine.Machine
	Processes  *vm.ProcessTable
	Memory     *vm.MemoryManager
	Handler    *userprog.ExceptionHandler
}

// openStore 按配置打开磁盘: 未配置镜像文件时使用内存磁盘.
// 返回的 fresh 表示磁盘是新建的, 需要格式化.
func openStore(cfg *conf.Cfg) (store machine.BlockStore, fresh bool, err error) {
	if cfg.DiskFile == "" {
		return machine.NewMemStore(cfg.SectorSize, cfg.NumSectors), true, nil
	}
	_, statErr := os.Stat(cfg.DiskFile)
	fresh = os.IsNotExist(statErr)
	fileStore, err := machine.OpenFileStore(cfg.DiskFile, cfg.SectorSize, cfg.NumSectors)
	if err != nil {
		return nil, false, errors.Annotatef(err, "open disk %s", cfg.DiskFile)
	}
	return fileStore, fresh, nil
}

// New 按配置构造内核
func New(cfg *conf.Cfg) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	store, fresh, err := openStore(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}

	k := &Kernel{cfg: cfg}
	if cfg.MetricsEnabled {
		k.Metrics = metrics.NewRegistry(cfg.MetricsNamespace)
	}

	k.Disk = synchdisk.NewSynchDisk(store, cfg.CacheSlots, cfg.ReadAhead, k.Metrics)
	format := cfg.Format || fresh
	k.FileSystem = filesys.NewFileSystem(k.Disk, filesys.Options{
		NumDirEntries:  cfg.NumDirEntries,
		FileNameMaxLen: cfg.FileNameMaxLen,
	}, format, k.Metrics)

	k.Machine = machine.NewMachine(cfg.PageSize, cfg.NumPhysPages, cfg.TLBSize)
	k.Processes = vm.NewProcessTable()
	k.Memory = vm.NewMemoryManager(k.Machine, k.Processes, k.Metrics)
	k.Handler = userprog.NewExceptionHandler(k.Machine, k.Memory, k.Processes)

	logger.Infof("kernel up: %d sectors of %d bytes (format %v), %d frames of %d bytes, %d tlb slots",
		cfg.NumSectors, cfg.SectorSize, format, cfg.NumPhysPages, cfg.PageSize, cfg.TLBSize)
	return k, nil
}

// Install 把可执行镜像写入文件系统中的 name
func (k *Kernel) Install(name string, image []byte) error {
	if !k.FileSystem.Create(name, len(image)) {
		return errors.Annotatef(errInstall, "create %s (%d bytes)", name, len(image))
	}
	file := k.FileSystem.Open(name)
	if file == nil {
		return errors.Annotatef(errNoExecutable, "open %s", name)
	}
	if n := file.WriteAt(image, len(image), 0); n != len(image) {
		return errors.Annotatef(errInstall, "write %s: %d of %d bytes", name, n, len(image))
	}
	return nil
}

// Exec 从文件系统装入可执行文件 name, 创建线程并切换过去
func (k *Kernel) Exec(name string) (*vm.Process, error) {
	file := k.FileSystem.Open(name)
	if file == nil {
		return nil, errors.Annotatef(errNoExecutable, "exec %s", name)
	}
	space, err := vm.LoadAddrSpace(file, k.cfg.PageSize, k.cfg.UserStackSize)
	if err != nil {
		return nil, errors.Annotatef(err, "exec %s", name)
	}
	proc := k.Processes.Add(name, space)
	if err := k.Switch(proc.Tid); err != nil {
		return nil, errors.Trace(err)
	}
	space.InitRegisters(k.Machine)
	return proc, nil
}

// Switch 切换到线程 tid
func (k *Kernel) Switch(tid int) error {
	return errors.Trace(k.Processes.Switch(tid, k.Machine))
}

// Fingerprint 写回缓存后计算磁盘内容的校验和
func (k *Kernel) Fingerprint() (uint64, error) {
	k.Disk.Flush()
	sum, err := k.Disk.Disk().Fingerprint()
	return sum, errors.Trace(err)
}

// Snapshot 写回缓存后把压缩的磁盘镜像写到 w
func (k *Kernel) Snapshot(w io.Writer) error {
	k.Disk.Flush()
	return errors.Trace(k.Disk.Disk().Snapshot(w))
}

// RestoreSnapshot 在内核启动之前用快照覆盖配置中的磁盘
func RestoreSnapshot(cfg *conf.Cfg, r io.Reader) error {
	store, _, err := openStore(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	disk := machine.NewDisk(store, func() {})
	if err := disk.Restore(r); err != nil {
		disk.Close()
		return errors.Annotatef(err, "restore %s", cfg.DiskFile)
	}
	return errors.Trace(disk.Close())
}

// Report 缓存、磁盘与分页统计
func (k *Kernel) Report(w io.Writer) {
	reads, writes := k.Disk.Disk().Counters()
	fmt.Fprintf(w, "Disk I/O: reads %d, writes %d\n", reads, writes)
	fmt.Fprintln(w, k.Disk.Stats())
	fmt.Fprintln(w, k.Memory.Stats())
}

// Shutdown 停机: 写回缓存、关闭磁盘并输出统计
func (k *Kernel) Shutdown(w io.Writer) error {
	logger.Infof("%s", k.Disk.Stats())
	logger.Infof("%s", k.Memory.Stats())
	if w != nil {
		k.Report(w)
	}
	return errors.Trace(k.Disk.Close())
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zhukovaskychina/xnachos/logger"
	"github.com/zhukovaskychina/xnachos/server/conf"
	"github.com/zhukovaskychina/xnachos/server/kernel"
)

const help = `
******************************************************************************************
*帮助:
*1. -configPath   指定 xnachos.ini / xnachos.toml 配置文件
*2. -f            格式化磁盘
*3. -cp 宿主文件 -to 文件名   复制宿主机文件到文件系统
*4. -p 文件名     打印文件内容
*5. -r 文件名     删除文件
*6. -l            列出目录
*7. -D            打印整个文件系统
*8. -t            文件系统性能测试
*9. -vmtest N     以 N 个线程运行虚拟内存测试
*10. -snapshot 路径 / -restore 路径   导出或恢复压缩的磁盘快照
*11. -fingerprint 输出磁盘内容指纹
******************************************************************************************
`

type options struct {
	configPath  string
	format      bool
	copyFrom    string
	copyTo      string
	print       string
	remove      string
	list        bool
	dump        bool
	perfTest    bool
	vmTest      int
	snapshot    string
	restore     string
	fingerprint bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.configPath, "configPath", "", "配置文件路径")
	flag.BoolVar(&opts.format, "f", false, "格式化磁盘")
	flag.StringVar(&opts.copyFrom, "cp", "", "要复制的宿主机文件")
	flag.StringVar(&opts.copyTo, "to", "", "复制目标文件名")
	flag.StringVar(&opts.print, "p", "", "打印文件")
	flag.StringVar(&opts.remove, "r", "", "删除文件")
	flag.BoolVar(&opts.list, "l", false, "列出目录")
	flag.BoolVar(&opts.dump, "D", false, "打印整个文件系统")
	flag.BoolVar(&opts.perfTest, "t", false, "文件系统性能测试")
	flag.IntVar(&opts.vmTest, "vmtest", 0, "虚拟内存测试线程数")
	flag.StringVar(&opts.snapshot, "snapshot", "", "导出磁盘快照")
	flag.StringVar(&opts.restore, "restore", "", "从快照恢复磁盘")
	flag.BoolVar(&opts.fingerprint, "fingerprint", false, "输出磁盘指纹")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, help)
		flag.PrintDefaults()
	}
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	config, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: opts.configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if opts.format {
		config.Format = true
	}

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	if err := run(config, opts); err != nil {
		logger.Fatalf("%+v", err)
	}
}

func run(config *conf.Cfg, opts *options) error {
	if opts.restore != "" {
		f, err := os.Open(opts.restore)
		if err != nil {
			return err
		}
		err = kernel.RestoreSnapshot(config, f)
		f.Close()
		if err != nil {
			return err
		}
		logger.Infof("disk restored from %s", opts.restore)
	}

	k, err := kernel.New(config)
	if err != nil {
		return err
	}

	if err := runCommands(k, opts); err != nil {
		k.Shutdown(nil)
		return err
	}
	return k.Shutdown(os.Stdout)
}

func runCommands(k *kernel.Kernel, opts *options) error {
	if opts.copyFrom != "" {
		to := opts.copyTo
		if to == "" {
			to = opts.copyFrom
		}
		if err := k.FileSystem.Copy(opts.copyFrom, to); err != nil {
			return err
		}
	}
	if opts.print != "" {
		if err := k.FileSystem.Cat(opts.print, os.Stdout); err != nil {
			return err
		}
	}
	if opts.remove != "" && !k.FileSystem.Remove(opts.remove) {
		logger.Warnf("remove %s: no such file", opts.remove)
	}
	if opts.list {
		k.FileSystem.List(os.Stdout)
	}
	if opts.dump {
		k.FileSystem.Print(os.Stdout)
	}
	if opts.perfTest {
		if err := k.FileSystem.PerformanceTest(os.Stdout); err != nil {
			return err
		}
	}
	if opts.vmTest > 0 {
		if err := k.RunVMTest(os.Stdout, opts.vmTest); err != nil {
			return err
		}
		k.Memory.Dump(os.Stdout)
	}
	if opts.snapshot != "" {
		f, err := os.Create(opts.snapshot)
		if err != nil {
			return err
		}
		err = k.Snapshot(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	if opts.fingerprint {
		sum, err := k.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Printf("disk fingerprint: %016x\n", sum)
	}
	return nil
}

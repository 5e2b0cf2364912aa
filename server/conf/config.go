package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/xnachos/logger"
)

// ConfigPath 最近一次加载的配置文件路径
var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

/*
[disk]
disk_file   = DISK
sector_size = 128
num_sectors = 1024
cache_slots = 16
read_ahead  = 4

[machine]
page_size       = 128
num_phys_pages  = 32
tlb_size        = 4
user_stack_size = 1024
*/
type Cfg struct {
	Raw *ini.File

	// disk
	DiskFile   string `default:"" yaml:"disk_file" json:"disk_file,omitempty"`
	SectorSize int    `default:"128" yaml:"sector_size" json:"sector_size,omitempty"`
	NumSectors int    `default:"1024" yaml:"num_sectors" json:"num_sectors,omitempty"`
	CacheSlots int    `default:"16" yaml:"cache_slots" json:"cache_slots,omitempty"`
	ReadAhead  int    `default:"4" yaml:"read_ahead" json:"read_ahead,omitempty"`

	// machine
	PageSize      int `default:"128" yaml:"page_size" json:"page_size,omitempty"`
	NumPhysPages  int `default:"32" yaml:"num_phys_pages" json:"num_phys_pages,omitempty"`
	TLBSize       int `default:"4" yaml:"tlb_size" json:"tlb_size,omitempty"`
	UserStackSize int `default:"1024" yaml:"user_stack_size" json:"user_stack_size,omitempty"`

	// filesys
	Format         bool `default:"false" yaml:"format" json:"format,omitempty"`
	NumDirEntries  int  `default:"10" yaml:"num_dir_entries" json:"num_dir_entries,omitempty"`
	FileNameMaxLen int  `default:"9" yaml:"file_name_max_len" json:"file_name_max_len,omitempty"`

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// metrics
	MetricsEnabled   bool   `default:"true" yaml:"metrics_enabled" json:"metrics_enabled,omitempty"`
	MetricsNamespace string `default:"xnachos" yaml:"metrics_namespace" json:"metrics_namespace,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:              ini.Empty(),
		SectorSize:       128,
		NumSectors:       1024,
		CacheSlots:       16,
		ReadAhead:        4,
		PageSize:         128,
		NumPhysPages:     32,
		TLBSize:          4,
		UserStackSize:    1024,
		NumDirEntries:    10,
		FileNameMaxLen:   9,
		LogLevel:         "info",
		MetricsEnabled:   true,
		MetricsNamespace: "xnachos",
	}
}

// Load 读取配置文件并覆盖默认值. 文件不存在时保留默认配置;
// 以 .toml 结尾的文件按 TOML 解析, 其余按 ini 解析.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	configFile := "conf/xnachos.ini"
	if args != nil && args.ConfigPath != "" {
		configFile = args.ConfigPath
	}
	ConfigPath, _ = filepath.Abs(configFile)

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("配置文件不存在: %s，使用默认配置", configFile)
		return cfg, cfg.Validate()
	}

	var src source
	if strings.HasSuffix(configFile, ".toml") {
		tree, err := loadTOML(configFile)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", configFile)
		}
		src = tree
	} else {
		parsed, err := ini.Load(configFile)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", configFile)
		}
		cfg.Raw = parsed
		src = iniSource{parsed}
	}

	cfg.apply(src)
	logger.Debugf("成功加载配置文件: %s", configFile)
	return cfg, cfg.Validate()
}

// LoadBytes 从内存中的 ini 内容加载配置
func (cfg *Cfg) LoadBytes(data []byte) (*Cfg, error) {
	parsed, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse ini")
	}
	cfg.Raw = parsed
	cfg.apply(iniSource{parsed})
	return cfg, cfg.Validate()
}

func (cfg *Cfg) apply(src source) {
	cfg.parseDiskCfg(src)
	cfg.parseMachineCfg(src)
	cfg.parseFilesysCfg(src)
	cfg.parseLogsCfg(src)
	cfg.parseMetricsCfg(src)
}

func (cfg *Cfg) parseDiskCfg(src source) {
	cfg.DiskFile = src.String("disk", "disk_file", cfg.DiskFile)
	cfg.SectorSize = src.Int("disk", "sector_size", cfg.SectorSize)
	cfg.NumSectors = src.Int("disk", "num_sectors", cfg.NumSectors)
	cfg.CacheSlots = src.Int("disk", "cache_slots", cfg.CacheSlots)
	cfg.ReadAhead = src.Int("disk", "read_ahead", cfg.ReadAhead)
}

func (cfg *Cfg) parseMachineCfg(src source) {
	cfg.PageSize = src.Int("machine", "page_size", cfg.PageSize)
	cfg.NumPhysPages = src.Int("machine", "num_phys_pages", cfg.NumPhysPages)
	cfg.TLBSize = src.Int("machine", "tlb_size", cfg.TLBSize)
	cfg.UserStackSize = src.Int("machine", "user_stack_size", cfg.UserStackSize)
}

func (cfg *Cfg) parseFilesysCfg(src source) {
	cfg.Format = src.Bool("filesys", "format", cfg.Format)
	cfg.NumDirEntries = src.Int("filesys", "num_dir_entries", cfg.NumDirEntries)
	cfg.FileNameMaxLen = src.Int("filesys", "file_name_max_len", cfg.FileNameMaxLen)
}

func (cfg *Cfg) parseLogsCfg(src source) {
	cfg.LogError = src.String("logs", "log_error", cfg.LogError)
	cfg.LogInfos = src.String("logs", "log_infos", cfg.LogInfos)
	cfg.LogLevel = src.String("logs", "log_level", cfg.LogLevel)
}

func (cfg *Cfg) parseMetricsCfg(src source) {
	cfg.MetricsEnabled = src.Bool("metrics", "enabled", cfg.MetricsEnabled)
	cfg.MetricsNamespace = src.String("metrics", "namespace", cfg.MetricsNamespace)
}

// Validate 检查几何参数是否自洽
func (cfg *Cfg) Validate() error {
	switch {
	case cfg.SectorSize <= 8 || cfg.SectorSize%4 != 0:
		return errors.Wrapf(ErrInvalidGeometry, "sector_size=%d must be a multiple of 4 above 8", cfg.SectorSize)
	case cfg.NumSectors <= 2:
		return errors.Wrapf(ErrInvalidGeometry, "num_sectors=%d", cfg.NumSectors)
	case cfg.CacheSlots <= 0:
		return errors.Wrapf(ErrInvalidGeometry, "cache_slots=%d", cfg.CacheSlots)
	case cfg.ReadAhead <= 0 || cfg.ReadAhead > cfg.CacheSlots:
		return errors.Wrapf(ErrInvalidGeometry, "read_ahead=%d must be in [1, cache_slots]", cfg.ReadAhead)
	case cfg.PageSize <= 0:
		return errors.Wrapf(ErrInvalidGeometry, "page_size=%d", cfg.PageSize)
	case cfg.TLBSize <= 0:
		return errors.Wrapf(ErrInvalidGeometry, "tlb_size=%d", cfg.TLBSize)
	case cfg.NumPhysPages <= cfg.TLBSize:
		// TLB 中的页不可被换出, 至少要留一个可换出的物理页
		return errors.Wrapf(ErrInvalidGeometry, "num_phys_pages=%d must exceed tlb_size=%d", cfg.NumPhysPages, cfg.TLBSize)
	case cfg.NumDirEntries <= 0 || cfg.FileNameMaxLen <= 0:
		return errors.Wrapf(ErrInvalidGeometry, "num_dir_entries=%d file_name_max_len=%d", cfg.NumDirEntries, cfg.FileNameMaxLen)
	}
	return nil
}

// GetString 获取 section.key 形式配置项的字符串值
func (cfg *Cfg) GetString(key string) string {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) < 2 {
		return ""
	}
	return iniSource{cfg.Raw}.String(parts[0], parts[1], "")
}

// GetInt 获取 section.key 形式配置项的整数值
func (cfg *Cfg) GetInt(key string) int {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) < 2 {
		return 0
	}
	return iniSource{cfg.Raw}.Int(parts[0], parts[1], 0)
}

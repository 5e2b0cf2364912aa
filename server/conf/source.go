package conf

import (
	"github.com/pelletier/go-toml"
	"gopkg.in/ini.v1"
)

// source 屏蔽 ini 与 toml 两种配置格式的差异
type source interface {
	String(section, key, def string) string
	Int(section, key string, def int) int
	Bool(section, key string, def bool) bool
}

type iniSource struct {
	file *ini.File
}

func (s iniSource) key(section, key string) *ini.Key {
	if s.file == nil {
		return nil
	}
	sec, err := s.file.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return nil
	}
	return sec.Key(key)
}

func (s iniSource) String(section, key, def string) string {
	if k := s.key(section, key); k != nil && k.String() != "" {
		return k.String()
	}
	return def
}

func (s iniSource) Int(section, key string, def int) int {
	if k := s.key(section, key); k != nil {
		return k.MustInt(def)
	}
	return def
}

func (s iniSource) Bool(section, key string, def bool) bool {
	if k := s.key(section, key); k != nil {
		return k.MustBool(def)
	}
	return def
}

type tomlSource struct {
	tree *toml.Tree
}

func loadTOML(path string) (tomlSource, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return tomlSource{}, err
	}
	return tomlSource{tree}, nil
}

func (s tomlSource) String(section, key, def string) string {
	if v, ok := s.tree.Get(section + "." + key).(string); ok && v != "" {
		return v
	}
	return def
}

func (s tomlSource) Int(section, key string, def int) int {
	switch v := s.tree.Get(section + "." + key).(type) {
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func (s tomlSource) Bool(section, key string, def bool) bool {
	if v, ok := s.tree.Get(section + "." + key).(bool); ok {
		return v
	}
	return def
}

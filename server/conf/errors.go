package conf

import "errors"

var (
	// ErrInvalidGeometry 磁盘或机器几何参数非法
	ErrInvalidGeometry = errors.New("invalid geometry")
)

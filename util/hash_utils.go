package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashChunks 按顺序对多个数据块计算一个整体 Hash
func HashChunks(chunks ...[]byte) uint64 {
	h := xxhash.New64()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum64()
}

package util

import (
	"fmt"

	"github.com/smartystreets/assertions"

	"github.com/zhukovaskychina/xnachos/logger"
)

// Assert 断言 cond 成立, 否则记录错误日志并 panic. 只用于内部一致性检查,
// 违反即说明内核存在缺陷, 不做恢复.
func Assert(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	fail(fmt.Sprintf(format, args...))
}

// AssertInRange 断言 0 <= v < limit
func AssertInRange(v int, limit int, what string) {
	if msg := assertions.ShouldBeGreaterThanOrEqualTo(v, 0); msg != "" {
		fail(what + ": " + msg)
	}
	if msg := assertions.ShouldBeLessThan(v, limit); msg != "" {
		fail(what + ": " + msg)
	}
}

// AssertEqual 断言 actual == expected
func AssertEqual(actual interface{}, expected interface{}, what string) {
	if msg := assertions.ShouldEqual(actual, expected); msg != "" {
		fail(what + ": " + msg)
	}
}

func fail(msg string) {
	logger.Errorf("assertion failed: %s", msg)
	panic("assertion failed: " + msg)
}

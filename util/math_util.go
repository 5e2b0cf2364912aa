package util

// DivRoundUp 向上取整除法
func DivRoundUp(n, s int) int {
	return (n + s - 1) / s
}

// DivRoundDown 向下取整除法
func DivRoundDown(n, s int) int {
	return n / s
}

// MinInt 返回较小值
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

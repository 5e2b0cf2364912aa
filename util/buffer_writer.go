package util

// WriteUB4 以小端序在 cursor 处写入 4 字节无符号整数, 返回新的游标
func WriteUB4(buff []byte, cursor int, i uint32) int {
	buff[cursor] = byte(i & 0xFF)
	buff[cursor+1] = byte((i >> 8) & 0xFF)
	buff[cursor+2] = byte((i >> 16) & 0xFF)
	buff[cursor+3] = byte((i >> 24) & 0xFF)
	return cursor + 4
}

// WriteInt4 写入有符号 4 字节整数
func WriteInt4(buff []byte, cursor int, i int) int {
	return WriteUB4(buff, cursor, uint32(int32(i)))
}

// WriteInt4Array 连续写入整数数组
func WriteInt4Array(buff []byte, cursor int, values []int) int {
	for _, v := range values {
		cursor = WriteInt4(buff, cursor, v)
	}
	return cursor
}

// WriteBytes 在 cursor 处写入 from
func WriteBytes(buff []byte, cursor int, from []byte) int {
	return cursor + copy(buff[cursor:], from)
}

package util

// ReadUB4 以小端序从 cursor 处读取 4 字节无符号整数, 返回新的游标
func ReadUB4(buff []byte, cursor int) (int, uint32) {
	i := uint32(buff[cursor])
	i |= uint32(buff[cursor+1]) << 8
	i |= uint32(buff[cursor+2]) << 16
	i |= uint32(buff[cursor+3]) << 24
	return cursor + 4, i
}

// ReadInt4 读取有符号 4 字节整数
func ReadInt4(buff []byte, cursor int) (int, int) {
	cursor, v := ReadUB4(buff, cursor)
	return cursor, int(int32(v))
}

// ReadInt4Array 连续读取 n 个 4 字节整数
func ReadInt4Array(buff []byte, cursor int, n int) (int, []int) {
	values := make([]int, n)
	for i := 0; i < n; i++ {
		cursor, values[i] = ReadInt4(buff, cursor)
	}
	return cursor, values
}

// ReadBytes 读取 size 字节
func ReadBytes(buff []byte, cursor int, size int) (int, []byte) {
	if size <= 0 {
		return cursor, nil
	}
	return cursor + size, buff[cursor : cursor+size]
}

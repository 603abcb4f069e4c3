package buffer

import (
	"github.com/bytedance/gopkg/lang/mcache"
)

// 初始容量基数,首次分配为initCap+n
const initCap = 16

// mallocMax is 8MB
const mallocMax = 8 * 1024 * 1024

// malloc limits the cap of the buffer from mcache.
func malloc(size, capacity int) []byte {
	if capacity > mallocMax {
		return make([]byte, size, capacity)
	}
	return mcache.Malloc(size, capacity)
}

// free limits the cap of the buffer from mcache.
func free(buf []byte) {
	if cap(buf) > mallocMax {
		return
	}
	mcache.Free(buf)
}

// Buffer 可增长的字节数组，零值可直接使用。
// 扩容按倍数增长，Append的均摊复杂度为O(1)。
type Buffer struct {
	buf     []byte
	adopted bool // 外部托管的内存，不能归还给mcache
}

// New 按指定容量初始化一个Buffer。
func New(capacity int) *Buffer {
	if capacity <= 0 {
		return &Buffer{}
	}
	return &Buffer{buf: malloc(0, capacity)}
}

// From 托管外部的字节数组，不产生复制。
// 原始内存由调用方分配，第一次扩容后才会迁移到mcache。
func From(p []byte) *Buffer {
	return &Buffer{buf: p, adopted: true}
}

// Len 当前字节数
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Cap 当前容量
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Bytes 返回底层字节数组，与Buffer共享内存
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Peek 返回[off, off+n)区间的字节，不产生复制
func (b *Buffer) Peek(off, n int) []byte {
	return b.buf[off : off+n]
}

// grow 确保还能容纳n个字节
func (b *Buffer) grow(n int) {
	size := len(b.buf)
	if size+n <= cap(b.buf) {
		return
	}
	capacity := initCap + n
	if cap(b.buf) > 0 {
		capacity = (size + n) * 2
	}
	buf := malloc(size, capacity)
	copy(buf, b.buf)
	if !b.adopted && cap(b.buf) > 0 {
		free(b.buf)
	}
	b.adopted = false
	b.buf = buf
}

// Append 在尾部追加字节，返回追加前的长度，
// 也就是新写入数据的起始偏移。
func (b *Buffer) Append(p []byte) int {
	size := len(b.buf)
	if len(p) == 0 {
		return size
	}
	b.grow(len(p))
	b.buf = append(b.buf, p...)
	return size
}

// AppendByte 在尾部追加单个字节，返回追加前的长度
func (b *Buffer) AppendByte(c byte) int {
	size := len(b.buf)
	b.grow(1)
	b.buf = append(b.buf, c)
	return size
}

// Prepend 在头部插入字节，已有数据整体后移
func (b *Buffer) Prepend(p []byte) {
	n := len(p)
	if n == 0 {
		return
	}
	b.grow(n)
	size := len(b.buf)
	b.buf = b.buf[:size+n]
	copy(b.buf[n:], b.buf[:size])
	copy(b.buf, p)
}

// Skip 丢弃头部n个字节，剩余数据整体前移
func (b *Buffer) Skip(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:len(b.buf)-n]
}

// Truncate 截断到n个字节
func (b *Buffer) Truncate(n int) {
	if n < 0 || n >= len(b.buf) {
		return
	}
	b.buf = b.buf[:n]
}

// Pop 弹出末尾字节，空Buffer返回false
func (b *Buffer) Pop() (byte, bool) {
	size := len(b.buf)
	if size == 0 {
		return 0, false
	}
	c := b.buf[size-1]
	b.buf = b.buf[:size-1]
	return c, true
}

// Reset 清空数据，保留容量
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Release 归还mcache内存，之后Buffer回到零值状态
func (b *Buffer) Release() {
	if !b.adopted && cap(b.buf) > 0 {
		free(b.buf)
	}
	b.buf = nil
	b.adopted = false
}

package gapbuffer

import (
	"errors"
	"io"

	"github.com/eminalparslan/olik/buffer"
)

// ErrOutOfRange 位置超出缓冲区范围
var ErrOutOfRange = errors.New("gapbuffer: position out of range")

// GapBuffer 实现带可移动gap的线性字节序列,适合承载单行内容。
// head存放gap左侧的字节,tail按自然顺序存放gap右侧的字节,
// 逻辑序列即head与tail的拼接。零值可直接使用。
type GapBuffer struct {
	head buffer.Buffer
	tail buffer.Buffer
}

// New 创建一个空的gap buffer
func New() *GapBuffer {
	return &GapBuffer{}
}

// Len 逻辑字节总数
func (gb *GapBuffer) Len() int {
	return gb.head.Len() + gb.tail.Len()
}

// MoveGap 把gap移动到pos,跨越边界的字节在head与tail之间搬移。
func (gb *GapBuffer) MoveGap(pos int) error {
	if pos < 0 || pos > gb.Len() {
		return ErrOutOfRange
	}

	headLen := gb.head.Len()
	if pos < headLen {
		// head中pos之后的字节挪到tail开头
		gb.tail.Prepend(gb.head.Peek(pos, headLen-pos))
		gb.head.Truncate(pos)
	} else if pos > headLen {
		n := pos - headLen
		// tail开头的n个字节挪到head末尾
		gb.head.Append(gb.tail.Peek(0, n))
		gb.tail.Skip(n)
	}
	return nil
}

// InsertChar 在gap处插入单个字节
func (gb *GapBuffer) InsertChar(c byte) {
	gb.head.AppendByte(c)
}

// InsertChars 在gap处插入一串字节
func (gb *GapBuffer) InsertChars(p []byte) {
	gb.head.Append(p)
}

// DeleteChar 删除gap前的字节并返回,gap左侧为空时返回false
func (gb *GapBuffer) DeleteChar() (byte, bool) {
	return gb.head.Pop()
}

// PushChar 在缓冲区末尾追加单个字节
func (gb *GapBuffer) PushChar(c byte) {
	gb.tail.AppendByte(c)
}

// PushChars 在缓冲区末尾追加一串字节
func (gb *GapBuffer) PushChars(p []byte) {
	gb.tail.Append(p)
}

// PopChar 弹出逻辑上最右侧的字节,优先从tail取
func (gb *GapBuffer) PopChar() (byte, bool) {
	if c, ok := gb.tail.Pop(); ok {
		return c, true
	}
	return gb.head.Pop()
}

// Concat 把src的全部字节按逻辑顺序追加到本缓冲区末尾
func (gb *GapBuffer) Concat(src *GapBuffer) {
	gb.tail.Append(src.head.Bytes())
	gb.tail.Append(src.tail.Bytes())
}

// Split 在gap处拆分,把gap右侧的字节移入dst末尾并清空本tail
func (gb *GapBuffer) Split(dst *GapBuffer) {
	dst.tail.Append(gb.tail.Bytes())
	gb.tail.Reset()
}

// ClearTail 丢弃gap右侧的全部字节
func (gb *GapBuffer) ClearTail() {
	gb.tail.Reset()
}

// GetChar 按逻辑下标取字节,越界返回false
func (gb *GapBuffer) GetChar(pos int) (byte, bool) {
	if pos < 0 || pos >= gb.Len() {
		return 0, false
	}
	if pos < gb.head.Len() {
		return gb.head.Bytes()[pos], true
	}
	return gb.tail.Bytes()[pos-gb.head.Len()], true
}

// WriteN 写出前n个逻辑字节,不追加换行,返回实际写出数
func (gb *GapBuffer) WriteN(w io.Writer, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if n > gb.Len() {
		n = gb.Len()
	}

	headLen := gb.head.Len()
	if n <= headLen {
		return w.Write(gb.head.Peek(0, n))
	}
	written, err := w.Write(gb.head.Bytes())
	if err != nil {
		return written, err
	}
	m, err := w.Write(gb.tail.Peek(0, n-headLen))
	return written + m, err
}

// WriteTo 写出全部逻辑字节,实现io.WriterTo
func (gb *GapBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := gb.WriteN(w, gb.Len())
	return int64(n), err
}

// Print 写出全部内容并追加换行
func (gb *GapBuffer) Print(w io.Writer) error {
	if _, err := gb.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// Release 归还底层缓冲区内存
func (gb *GapBuffer) Release() {
	gb.head.Release()
	gb.tail.Release()
}

package piecetable

import (
	"errors"
	"io"

	"github.com/eminalparslan/olik/buffer"
)

// ErrOutOfRange 位置或长度超出序列范围
var ErrOutOfRange = errors.New("piecetable: index out of range")

// 最近一次编辑动作,用于合并连续的同向编辑
const (
	actionNone uint8 = iota
	actionInsert
	actionDelete
)

// PieceTable 实现基于piece chain的可编辑字节序列。
//
// 序列由两个后备缓冲区组成:创建时传入的original缓冲区只读,
// add缓冲区只追加。文档内容是哨兵之间所有piece按序引用的字节拼接,
// 编辑只做结构上的splice,代价与涉及的piece数量成正比,与文档大小无关。
// 每次编辑把被换下的子链压入undo栈,undo/redo通过结构交换还原,
// 不复制任何数据。连续的键入和退格会合并成单个undo单元。
//
// 非并发安全,跨协程使用需要调用方加锁。
type PieceTable struct {
	original *buffer.Buffer
	add      buffer.Buffer

	head *piece // 哨兵
	tail *piece // 哨兵

	seqLength int

	undoStack rangeStack
	redoStack rangeStack

	lastAction      uint8
	prevEndIndex    int // 上一次插入结束的位置
	prevDeleteIndex int // 上一次删除开始的位置
}

// New 创建piece table并托管data字节数组,不产生复制。
func New(data []byte) *PieceTable {
	pt := &PieceTable{
		original: buffer.From(data),
		head:     newPiece(originalBuf, 0, 0),
		tail:     newPiece(originalBuf, 0, 0),
	}
	pt.head.next = pt.tail
	pt.tail.prev = pt.head

	if len(data) > 0 {
		// 挂上引用original缓冲区的初始piece
		p := newPiece(originalBuf, 0, len(data))
		old := pieceRange{first: pt.head, last: pt.tail, boundary: true}
		newR := pieceRange{first: p, last: p}
		swapRange(&old, &newR)
		pt.seqLength = len(data)
	}
	return pt
}

// bufFor 取piece引用的后备缓冲区
func (pt *PieceTable) bufFor(which uint8) *buffer.Buffer {
	if which == originalBuf {
		return pt.original
	}
	return &pt.add
}

// findPiece 把序列下标解析为piece与piece内偏移。
// 偏移为0表示下标正好落在该piece之前的边界上;
// index等于序列长度时返回tail哨兵。
func (pt *PieceTable) findPiece(index int) (*piece, int) {
	current := 0
	for p := pt.head.next; p != pt.tail; p = p.next {
		if current+p.length > index {
			return p, index - current
		}
		current += p.length
	}
	return pt.tail, 0
}

// Length 当前序列的字节总数
func (pt *PieceTable) Length() int {
	return pt.seqLength
}

// Insert 在index处插入字节。空数据直接忽略,越界返回ErrOutOfRange。
//
// 当本次插入紧跟上一次插入的末尾,且新字节在add缓冲区里与
// 前一个piece连续时,直接原地加长该piece,不产生新的undo记录,
// 这样逐键输入会合并成一个undo单元。
func (pt *PieceTable) Insert(index int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if index < 0 || index > pt.seqLength {
		return ErrOutOfRange
	}

	addOffset := pt.add.Append(data)
	pt.clearRedo()

	p, k := pt.findPiece(index)
	if k > 0 {
		// 插入位置在piece内部,拆成左中右三段
		old := &pieceRange{first: p, last: p, seqLength: pt.seqLength}
		pt.undoStack.push(old)

		left := newPiece(p.which, p.offset, k)
		mid := newPiece(addedBuf, addOffset, len(data))
		right := newPiece(p.which, p.offset+k, p.length-k)
		left.next = mid
		mid.prev = left
		mid.next = right
		right.prev = mid

		newR := pieceRange{first: left, last: right}
		swapRange(old, &newR)
	} else {
		prev := p.prev
		if pt.lastAction == actionInsert && index == pt.prevEndIndex &&
			prev != pt.head && prev.which == addedBuf &&
			prev.offset+prev.length == addOffset {
			// 与上一次插入首尾相接,原地加长即可
			prev.length += len(data)
		} else {
			old := &pieceRange{first: prev, last: p, boundary: true, seqLength: pt.seqLength}
			pt.undoStack.push(old)

			mid := newPiece(addedBuf, addOffset, len(data))
			newR := pieceRange{first: mid, last: mid}
			swapRange(old, &newR)
		}
	}

	pt.seqLength += len(data)
	pt.prevEndIndex = index + len(data)
	pt.lastAction = actionInsert
	return nil
}

// cutRun 解析出[index, index+length)覆盖的piece子链,
// 两端落在piece内部时拆出保留段。只做解析和拆分,不改动链表。
func (pt *PieceTable) cutRun(index, length int) (first, last, leftKeep, rightKeep *piece) {
	p, k := pt.findPiece(index)
	if k > 0 {
		leftKeep = newPiece(p.which, p.offset, k)
	}
	first = p
	remaining := length
	for {
		avail := p.length - k
		if avail > remaining {
			// 删除结束在piece内部,拆出右保留段
			rightKeep = newPiece(p.which, p.offset+k+remaining, avail-remaining)
			last = p
			return
		}
		remaining -= avail
		last = p
		if remaining == 0 {
			return
		}
		k = 0
		p = p.next
	}
}

// absorbBackward 向左合并的退格删除:欲删除的字节落在上一条undo记录
// 的替换区间内时,直接收缩或吞掉区间内的保留piece。
// 返回快速路径吃不掉的剩余删除长度,交给一般路径处理。
func (pt *PieceTable) absorbBackward(r *pieceRange, length int) int {
	p, _ := pt.findPiece(pt.prevDeleteIndex)
	q := p.prev
	for length > 0 && q != pt.head && q != r.first.prev {
		if q.length > length {
			// 删除的是q的末尾字节,收缩长度即可
			q.length -= length
			pt.seqLength -= length
			return 0
		}
		length -= q.length
		pt.seqLength -= q.length
		prev := q.prev
		q.prev.next = q.next
		q.next.prev = q.prev
		recycle(q)
		q = prev
	}
	return length
}

// Delete 删除[index, index+length)区间的字节。
//
// 当删除区间紧挨着上一次删除的起点时(连续退格),
// 优先收缩上一次编辑留下的保留piece,剩余部分走一般路径,
// 并把切下的子链并入已有的undo记录,整串退格合并成一个undo单元。
func (pt *PieceTable) Delete(index, length int) error {
	if length == 0 {
		return nil
	}
	if index < 0 || length < 0 || index+length > pt.seqLength {
		return ErrOutOfRange
	}

	pt.clearRedo()

	extend := false
	if pt.lastAction == actionDelete && index+length == pt.prevDeleteIndex {
		if r := pt.undoStack.peek(); r != nil && !r.boundary {
			length = pt.absorbBackward(r, length)
			if length == 0 {
				pt.prevDeleteIndex = index
				return nil
			}
			extend = true
		}
	}

	first, last, leftKeep, rightKeep := pt.cutRun(index, length)
	old := &pieceRange{first: first, last: last, seqLength: pt.seqLength}

	var newR pieceRange
	switch {
	case leftKeep != nil && rightKeep != nil:
		leftKeep.next = rightKeep
		rightKeep.prev = leftKeep
		newR = pieceRange{first: leftKeep, last: rightKeep}
	case leftKeep != nil:
		newR = pieceRange{first: leftKeep, last: leftKeep}
	case rightKeep != nil:
		newR = pieceRange{first: rightKeep, last: rightKeep}
	default:
		newR = pieceRange{boundary: true}
	}
	swapRange(old, &newR)

	if extend {
		pt.undoStack.peek().extend(first, last)
	} else {
		pt.undoStack.push(old)
	}

	pt.seqLength -= length
	pt.prevDeleteIndex = index
	pt.lastAction = actionDelete
	return nil
}

// Replace 用data替换[index, index+length)区间,新旧长度可以不同。
// 删除和插入合并为一次splice,undo一步还原。替换不参与编辑合并。
func (pt *PieceTable) Replace(index, length int, data []byte) error {
	if index < 0 || length < 0 || index+length > pt.seqLength {
		return ErrOutOfRange
	}
	if length == 0 && len(data) == 0 {
		return nil
	}

	pt.clearRedo()
	pt.lastAction = actionNone

	if length == 0 {
		// 纯插入
		addOffset := pt.add.Append(data)
		mid := newPiece(addedBuf, addOffset, len(data))

		p, k := pt.findPiece(index)
		if k > 0 {
			old := &pieceRange{first: p, last: p, seqLength: pt.seqLength}
			pt.undoStack.push(old)

			left := newPiece(p.which, p.offset, k)
			right := newPiece(p.which, p.offset+k, p.length-k)
			left.next = mid
			mid.prev = left
			mid.next = right
			right.prev = mid
			newR := pieceRange{first: left, last: right}
			swapRange(old, &newR)
		} else {
			old := &pieceRange{first: p.prev, last: p, boundary: true, seqLength: pt.seqLength}
			pt.undoStack.push(old)
			newR := pieceRange{first: mid, last: mid}
			swapRange(old, &newR)
		}
		pt.seqLength += len(data)
		return nil
	}

	first, last, leftKeep, rightKeep := pt.cutRun(index, length)
	old := &pieceRange{first: first, last: last, seqLength: pt.seqLength}
	pt.undoStack.push(old)

	// 按文档顺序串起 保留左段-新内容-保留右段
	var chainFirst, chainLast *piece
	link := func(p *piece) {
		if chainFirst == nil {
			chainFirst = p
		} else {
			chainLast.next = p
			p.prev = chainLast
		}
		chainLast = p
	}
	if leftKeep != nil {
		link(leftKeep)
	}
	if len(data) > 0 {
		addOffset := pt.add.Append(data)
		link(newPiece(addedBuf, addOffset, len(data)))
	}
	if rightKeep != nil {
		link(rightKeep)
	}

	var newR pieceRange
	if chainFirst == nil {
		newR = pieceRange{boundary: true}
	} else {
		newR = pieceRange{first: chainFirst, last: chainLast}
	}
	swapRange(old, &newR)

	pt.seqLength += len(data) - length
	return nil
}

// GetChars 从index开始复制最多length个字节到dest,返回实际复制数。
// length超过剩余序列时按剩余长度截断,dest不够长时按dest截断。
func (pt *PieceTable) GetChars(dest []byte, index, length int) int {
	if index < 0 || index > pt.seqLength || length <= 0 {
		return 0
	}
	if index+length > pt.seqLength {
		length = pt.seqLength - index
	}

	p, k := pt.findPiece(index)
	copied := 0
	for copied < length && p != pt.tail {
		n := p.length - k
		if n > length-copied {
			n = length - copied
		}
		n = copy(dest[copied:], pt.bufFor(p.which).Peek(p.offset+k, n))
		if n == 0 {
			break // dest已满
		}
		copied += n
		k = 0
		p = p.next
	}
	return copied
}

// restore 反向splice:把r保存的结构换回链表,同时把当前
// 活动的子链存回r,r的身份在"已保存"与"活动"之间互换。
// undo和redo共用同一套交换。
func (pt *PieceTable) restore(r *pieceRange) {
	if r.boundary {
		// r两端邻居之间是当次编辑插入的piece,摘下来存回r
		first := r.first.next
		last := r.last.prev
		r.first.next = r.last
		r.last.prev = r.first
		r.first, r.last = first, last
		r.boundary = false
	} else {
		outerLeft := r.first.prev
		outerRight := r.last.next
		if outerLeft.next == outerRight {
			// 活动链上两邻居间已无内容(纯删除),还原后r记为boundary
			outerLeft.next = r.first
			outerRight.prev = r.last
			r.first, r.last = outerLeft, outerRight
			r.boundary = true
		} else {
			liveFirst := outerLeft.next
			liveLast := outerRight.prev
			outerLeft.next = r.first
			outerRight.prev = r.last
			r.first, r.last = liveFirst, liveLast
		}
	}

	n := pt.seqLength
	pt.seqLength = r.seqLength
	r.seqLength = n
}

// Undo 撤销最近一次编辑单元,无可撤销时返回false。
func (pt *PieceTable) Undo() bool {
	r := pt.undoStack.pop()
	if r == nil {
		return false
	}
	pt.restore(r)
	pt.redoStack.push(r)
	pt.lastAction = actionNone
	return true
}

// Redo 重做最近一次被撤销的编辑,无可重做时返回false。
func (pt *PieceTable) Redo() bool {
	r := pt.redoStack.pop()
	if r == nil {
		return false
	}
	pt.restore(r)
	pt.undoStack.push(r)
	pt.lastAction = actionNone
	return true
}

// clearRedo 新的编辑发生时清空redo栈并回收其独占的piece
func (pt *PieceTable) clearRedo() {
	pt.redoStack.clear()
}

// Bytes 拼接所有piece,返回完整文档内容
func (pt *PieceTable) Bytes() []byte {
	p := make([]byte, pt.seqLength)
	n := 0
	for q := pt.head.next; q != pt.tail; q = q.next {
		n += copy(p[n:], pt.bufFor(q.which).Peek(q.offset, q.length))
	}
	return p[:n]
}

// WriteTo 按序写出所有piece引用的字节,实现io.WriterTo
func (pt *PieceTable) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for p := pt.head.next; p != pt.tail; p = p.next {
		n, err := w.Write(pt.bufFor(p.which).Peek(p.offset, p.length))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Print 写出完整文档并追加换行
func (pt *PieceTable) Print(w io.Writer) error {
	if _, err := pt.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// Release 回收全部piece与缓冲区内存,之后table不可再使用
func (pt *PieceTable) Release() {
	pt.undoStack.clear()
	pt.redoStack.clear()
	for p := pt.head; p != nil; {
		next := p.next
		recycle(p)
		p = next
	}
	pt.head, pt.tail = nil, nil
	pt.seqLength = 0
	pt.original.Release()
	pt.add.Release()
}

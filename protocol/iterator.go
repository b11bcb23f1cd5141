package protocol

// Iterator is a read cursor over one message buffer.
type Iterator struct {
	buf []byte
	off int
}

func NewIterator(buf []byte, offset int) *Iterator {
	return &Iterator{buf: buf, off: offset}
}

func (it *Iterator) Offset() int {
	return it.off
}

// Seek moves the cursor to an absolute offset.
func (it *Iterator) Seek(off int) {
	it.off = off
}

// Len is the total buffer length.
func (it *Iterator) Len() int {
	return len(it.buf)
}

// Remaining is the number of unread bytes.
func (it *Iterator) Remaining() int {
	if it.off >= len(it.buf) {
		return 0
	}
	return len(it.buf) - it.off
}

func (it *Iterator) Done() bool {
	return it.off >= len(it.buf)
}

// Peek returns the next byte without consuming it.
func (it *Iterator) Peek() (byte, bool) {
	if it.off >= len(it.buf) || it.off < 0 {
		return 0, false
	}
	return it.buf[it.off], true
}

func (it *Iterator) ReadByte() (byte, error) {
	if it.off >= len(it.buf) || it.off < 0 {
		return 0, ErrIncomplete
	}
	b := it.buf[it.off]
	it.off++
	return b, nil
}

// Take consumes n bytes; the returned slice aliases the buffer.
func (it *Iterator) Take(n int) ([]byte, error) {
	if n < 0 || it.off < 0 || it.off+n > len(it.buf) {
		return nil, ErrIncomplete
	}
	body := it.buf[it.off : it.off+n]
	it.off += n
	return body, nil
}

// Clone returns an independent cursor at the same offset.
func (it *Iterator) Clone() *Iterator {
	return &Iterator{buf: it.buf, off: it.off}
}

// IsSwitch reports whether the next byte is a SWITCH marker.
func IsSwitch(it *Iterator) bool {
	b, ok := it.Peek()
	return ok && b == SwitchToStructure
}

// IsTypeID reports whether the next byte is an explicit type id marker.
func IsTypeID(it *Iterator) bool {
	b, ok := it.Peek()
	return ok && b == TypeID
}

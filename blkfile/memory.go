package blkfile

import (
	"fmt"
	"io"
	"sync"
)

// Memory is a growable in-memory ReadWriterAt. Writes past the end extend
// the buffer; reads past the end return io.EOF.
type Memory struct {
	l   sync.Mutex
	buf []byte
}

// NewMemory returns a zeroed Memory of n bytes.
func NewMemory(n int) *Memory {
	return &Memory{buf: make([]byte, n)}
}

// Bytes returns the current contents. The slice aliases the buffer.
func (m *Memory) Bytes() []byte {
	m.l.Lock()
	defer m.l.Unlock()

	return m.buf
}

// ReadAt copies from the buffer at off. A read that runs past the end is
// cut short and reports io.EOF, like a file would.
func (m *Memory) ReadAt(buf []byte, off int64) (int, error) {
	m.l.Lock()
	defer m.l.Unlock()

	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}

	n := copy(buf, m.buf[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies data into the buffer at off, zero-filling any gap and
// growing the buffer as needed.
func (m *Memory) WriteAt(data []byte, off int64) (int, error) {
	m.l.Lock()
	defer m.l.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("writing memory at `%d`: negative offset", off)
	}

	if end := off + int64(len(data)); end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}

	return copy(m.buf[off:], data), nil
}

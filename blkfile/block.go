package blkfile

import (
	"io"

	"github.com/keks/tinyfs"
)

// block is a window of size bytes at offset off into lower. Reads and writes
// never cross the window boundary, so callers of a block can not touch the
// bytes of its neighbours.
type block struct {
	off  int64
	size int

	lower tinyfs.ReadWriterAt
}

func (blk *block) ReadAt(dst []byte, off int64) (int, error) {
	if off >= int64(blk.size) {
		return 0, io.EOF
	}

	max := blk.size - int(off)
	var retEOF bool
	if max < len(dst) {
		dst = dst[:max]
		retEOF = true
	}

	n, err := blk.lower.ReadAt(dst, off+blk.off)
	if err != nil {
		return n, err
	}

	// return EOF if the caller wanted to read beyond the end of the block
	if retEOF {
		return n, io.EOF
	}

	return n, nil
}

func (blk *block) WriteAt(data []byte, off int64) (int, error) {
	if off >= int64(blk.size) {
		return 0, io.ErrShortWrite
	}

	max := blk.size - int(off)
	var retErr bool
	if max < len(data) {
		data = data[:max]
		retErr = true
	}

	n, err := blk.lower.WriteAt(data, off+blk.off)
	if err != nil {
		// NOTE: this is only expected if the lower layer has failures,
		//       like e.g. running out of disk space.
		return n, err
	}

	if retErr {
		return n, io.ErrShortWrite
	}

	return n, nil
}

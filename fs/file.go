package fs

import (
	"errors"
	"fmt"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfmt"
)

// writableInode returns the inode of the open file fd, failing if the file
// is read-only.
func (s *Session) writableInode(fd FD) (*openFile, *blkfmt.Inode, error) {
	f, err := s.file(fd)
	if err != nil {
		return nil, nil, err
	}
	ino, err := s.readInode(tinyfs.BlockNum(fd))
	if err != nil {
		return nil, nil, err
	}
	if !ino.Writable() {
		return nil, nil, fmt.Errorf("file `%s`: %w", ino.Name, tinyfs.ErrReadOnly)
	}
	return f, ino, nil
}

// WriteFile replaces the whole content of fd with data and rewinds the
// cursor. data must fit in the free blocks alone; the blocks of the old
// content are not counted. The check happens before anything is written, so
// a write that does not fit leaves the old content in place. If a device
// write fails later the file is left empty and the new blocks are freed.
func (s *Session) WriteFile(fd FD, data []byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	f, ino, err := s.writableInode(fd)
	if err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	payload := blkfmt.PayloadSize(s.blksize)
	required := (len(data) + payload - 1) / payload
	if required > s.freeBlocks {
		return fmt.Errorf(
			"writing `%d` bytes to `%s`: need `%d` blocks, `%d` free: %w",
			len(data),
			ino.Name,
			required,
			s.freeBlocks,
			tinyfs.ErrOutOfSpace,
		)
	}

	// detach the old chain before releasing it
	old := ino.FirstExtent
	now := s.now()
	ino.FirstExtent = tinyfs.NoBlock
	ino.SizeInBlocks = 0
	ino.Modified = now
	ino.Accessed = now
	if err := s.writeBlock(tinyfs.BlockNum(fd), ino); err != nil {
		return fmt.Errorf("writing file `%s`: %w", ino.Name, err)
	}
	if err := s.releaseChain(old); err != nil {
		return fmt.Errorf("writing file `%s`: %w", ino.Name, err)
	}

	blocks, err := s.allocateN(required)
	if err != nil {
		return fmt.Errorf("writing file `%s`: %w", ino.Name, err)
	}

	// write back to front, so every extent exists before it is linked
	next := tinyfs.NoBlock
	for i := len(blocks) - 1; i >= 0; i-- {
		end := (i + 1) * payload
		if end > len(data) {
			end = len(data)
		}
		ext := &blkfmt.Extent{Next: next, Data: data[i*payload : end]}
		if err := s.writeBlock(blocks[i], ext); err != nil {
			s.releaseAll(blocks)
			return fmt.Errorf("writing file `%s`: %w", ino.Name, err)
		}
		next = blocks[i]
	}

	ino.FirstExtent = next
	ino.SizeInBlocks = uint8(required)
	if err := s.writeBlock(tinyfs.BlockNum(fd), ino); err != nil {
		s.releaseAll(blocks)
		return fmt.Errorf("writing file `%s`: %w", ino.Name, err)
	}

	f.cursor = 0
	return nil
}

// Truncate drops the content of fd and rewinds the cursor.
func (s *Session) Truncate(fd FD) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("truncating file: %w", err)
	}
	f, ino, err := s.writableInode(fd)
	if err != nil {
		return fmt.Errorf("truncating file: %w", err)
	}

	old := ino.FirstExtent
	now := s.now()
	ino.FirstExtent = tinyfs.NoBlock
	ino.SizeInBlocks = 0
	ino.Modified = now
	ino.Accessed = now
	if err := s.writeBlock(tinyfs.BlockNum(fd), ino); err != nil {
		return fmt.Errorf("truncating file `%s`: %w", ino.Name, err)
	}
	if err := s.releaseChain(old); err != nil {
		return fmt.Errorf("truncating file `%s`: %w", ino.Name, err)
	}

	f.cursor = 0
	return nil
}

// DeleteFile releases the content and the inode of fd and closes it.
func (s *Session) DeleteFile(fd FD) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	f, ino, err := s.writableInode(fd)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}

	if err := s.releaseChain(ino.FirstExtent); err != nil {
		return fmt.Errorf("deleting file `%s`: %w", ino.Name, err)
	}
	if err := s.release(tinyfs.BlockNum(fd)); err != nil {
		return fmt.Errorf("deleting file `%s`: %w", ino.Name, err)
	}
	*f = openFile{}

	if tinyfs.BlockNum(fd) == s.super.FirstInode {
		if err := s.refreshFirstInode(); err != nil {
			return fmt.Errorf("deleting file `%s`: %w", ino.Name, err)
		}
	}
	return nil
}

// locate walks the extent chain of ino to the byte at off. It returns the
// extent's block, the extent and the index of the byte within its data.
func (s *Session) locate(
	ino *blkfmt.Inode,
	off int,
) (tinyfs.BlockNum, *blkfmt.Extent, int, error) {
	payload := blkfmt.PayloadSize(s.blksize)
	n := ino.FirstExtent
	for steps := 0; n != tinyfs.NoBlock; steps++ {
		if steps >= s.super.TotalBlocks {
			return 0, nil, 0, fmt.Errorf(
				"extent chain of `%s`: cycle: %w",
				ino.Name,
				tinyfs.ErrCorruptBlock,
			)
		}
		if err := s.checkLink(n); err != nil {
			return 0, nil, 0, fmt.Errorf("extent chain of `%s`: %w", ino.Name, err)
		}

		ext, err := s.readExtent(n)
		if err != nil {
			return 0, nil, 0, err
		}
		if off < payload {
			if ext.Data[off] == 0 {
				return 0, nil, 0, tinyfs.ErrEndOfFile
			}
			return n, ext, off, nil
		}
		off -= payload
		n = ext.Next
	}
	return 0, nil, 0, tinyfs.ErrEndOfFile
}

// ReadFileByte returns the byte under the cursor of fd and advances the
// cursor. A zero byte marks the end of the file's content, so it is reported
// as tinyfs.ErrEndOfFile and the cursor stays put.
func (s *Session) ReadFileByte(fd FD) (byte, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return 0, fmt.Errorf("reading byte: %w", err)
	}
	f, err := s.file(fd)
	if err != nil {
		return 0, fmt.Errorf("reading byte: %w", err)
	}
	ino, err := s.readInode(tinyfs.BlockNum(fd))
	if err != nil {
		return 0, fmt.Errorf("reading byte: %w", err)
	}

	_, ext, idx, err := s.locate(ino, f.cursor)
	if err != nil {
		return 0, fmt.Errorf(
			"reading byte `%d` of `%s`: %w",
			f.cursor,
			ino.Name,
			err,
		)
	}

	ino.Accessed = s.now()
	if err := s.writeBlock(tinyfs.BlockNum(fd), ino); err != nil {
		return 0, fmt.Errorf("reading byte of `%s`: %w", ino.Name, err)
	}

	f.cursor++
	return ext.Data[idx], nil
}

// WriteFileByte overwrites the byte under the cursor of fd and advances the
// cursor. Only existing content can be patched; the file never grows. Only
// the extent holding the byte is written.
func (s *Session) WriteFileByte(fd FD, b byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	return s.writeFileByte(fd, b)
}

// WriteByteAt seeks fd to off and overwrites the byte there.
func (s *Session) WriteByteAt(fd FD, off int, b byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.seek(fd, off); err != nil {
		return err
	}
	return s.writeFileByte(fd, b)
}

func (s *Session) writeFileByte(fd FD, b byte) error {
	if err := s.mounted(); err != nil {
		return fmt.Errorf("writing byte: %w", err)
	}
	f, ino, err := s.writableInode(fd)
	if err != nil {
		return fmt.Errorf("writing byte: %w", err)
	}

	n, ext, idx, err := s.locate(ino, f.cursor)
	if err != nil {
		return fmt.Errorf(
			"writing byte `%d` of `%s`: %w",
			f.cursor,
			ino.Name,
			err,
		)
	}

	ext.Data[idx] = b
	if err := s.writeBlock(n, ext); err != nil {
		return fmt.Errorf("writing byte of `%s`: %w", ino.Name, err)
	}

	f.cursor++
	return nil
}

// Seek moves the cursor of fd to off. Seeking past the end of the file is
// allowed; the next read reports tinyfs.ErrEndOfFile.
func (s *Session) Seek(fd FD, off int) error {
	s.l.Lock()
	defer s.l.Unlock()

	return s.seek(fd, off)
}

func (s *Session) seek(fd FD, off int) error {
	if err := s.mounted(); err != nil {
		return fmt.Errorf("seeking: %w", err)
	}
	f, err := s.file(fd)
	if err != nil {
		return fmt.Errorf("seeking: %w", err)
	}
	if off < 0 {
		return fmt.Errorf("seeking to `%d`: %w", off, tinyfs.ErrNegativeOffset)
	}

	f.cursor = off
	return nil
}

// ReadAll reads fd from the start until the end of its content. The cursor
// is left at the end.
func (s *Session) ReadAll(fd FD) ([]byte, error) {
	if err := s.Seek(fd, 0); err != nil {
		return nil, err
	}

	var data []byte
	for {
		b, err := s.ReadFileByte(fd)
		if err == nil {
			data = append(data, b)
			continue
		}
		if errors.Is(err, tinyfs.ErrEndOfFile) {
			return data, nil
		}
		return data, err
	}
}

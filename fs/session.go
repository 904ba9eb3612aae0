// Package fs implements a flat file system inside a single block device.
//
// Block 0 holds the superblock. Every other block is either an inode (one
// per file), an extent (a slice of a file's content) or free. Free blocks
// form a singly linked list rooted in the superblock; extents form one
// singly linked list per file rooted in the file's inode. A file's handle is
// the block number of its inode.
package fs

import (
	"fmt"
	"io/ioutil"
	"log"
	"sync"
	"time"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfile"
	"github.com/keks/tinyfs/blkfmt"
)

// FD is an open file handle. It equals the block number of the file's inode.
type FD tinyfs.BlockNum

// openFile is a slot in the open file table. A slot with an empty name is
// closed; closing clears the name, so a stale handle must be reopened.
type openFile struct {
	name   string
	cursor int
}

var discard = log.New(ioutil.Discard, "", 0)

// Session is a mounted disk. The zero value is unmounted. A Session is safe
// to share between goroutines, but two Sessions must not mount the same
// device.
type Session struct {
	// Now stamps inode times. Defaults to time.Now.
	Now func() time.Time

	// Log receives diagnostics. Defaults to discarding them.
	Log *log.Logger

	l sync.Mutex

	dev        tinyfs.Device
	blksize    int
	super      blkfmt.Superblock
	freeBlocks int
	files      []openFile
}

// Format writes an empty file system of nBytes, rounded down to whole
// blocks, onto dev.
func Format(dev tinyfs.Device, nBytes int) error {
	blksize := dev.BlockSize()
	if nBytes < blksize {
		return fmt.Errorf(
			"formatting: size `%d` is less than one block of `%d`: %w",
			nBytes,
			blksize,
			tinyfs.ErrFormatFailure,
		)
	}

	total := nBytes / blksize
	if total > tinyfs.MaxBlocks {
		return fmt.Errorf(
			"formatting: `%d` blocks exceed the maximum of `%d`: %w",
			total,
			tinyfs.MaxBlocks,
			tinyfs.ErrFormatFailure,
		)
	}

	buf := make([]byte, blksize)
	for n := 1; n < total; n++ {
		next := tinyfs.BlockNum(n + 1)
		if n+1 == total {
			next = tinyfs.NoBlock
		}
		blkfmt.Encode(&blkfmt.Free{Next: next}, buf)
		if err := dev.WriteBlock(tinyfs.BlockNum(n), buf); err != nil {
			return fmt.Errorf("formatting: %w", err)
		}
	}

	// the superblock goes last so it never points at unwritten blocks
	sb := blkfmt.Superblock{TotalBlocks: total}
	if total > 1 {
		sb.FirstFree = 1
	}
	blkfmt.Encode(&sb, buf)
	if err := dev.WriteBlock(0, buf); err != nil {
		return fmt.Errorf("formatting: %w", err)
	}

	return nil
}

// Mkfs creates or overwrites the host file at path and formats it.
func Mkfs(path string, nBytes, blksize int) error {
	if blksize >= tinyfs.MinBlockSize && nBytes/blksize > tinyfs.MaxBlocks {
		return fmt.Errorf(
			"making file system `%s`: `%d` blocks exceed the maximum of `%d`: %w",
			path,
			nBytes/blksize,
			tinyfs.MaxBlocks,
			tinyfs.ErrFormatFailure,
		)
	}

	dev, err := blkfile.Open(path, nBytes, blksize)
	if err != nil {
		return fmt.Errorf("making file system `%s`: %w", path, err)
	}
	defer dev.Close()

	if err := Format(dev, nBytes); err != nil {
		return fmt.Errorf("making file system `%s`: %w", path, err)
	}
	return nil
}

// Mount returns a new Session bound to dev.
func Mount(dev tinyfs.Device) (*Session, error) {
	s := &Session{}
	if err := s.Mount(dev); err != nil {
		return nil, err
	}
	return s, nil
}

// Mount binds the session to dev. It fails if the session is already
// mounted or block 0 of dev is not a valid superblock.
func (s *Session) Mount(dev tinyfs.Device) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.dev != nil {
		return fmt.Errorf("mounting filesystem: %w", tinyfs.ErrAlreadyMounted)
	}

	blksize := dev.BlockSize()
	buf := make([]byte, blksize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	sb, err := blkfmt.DecodeSuperblock(buf)
	if err != nil {
		return fmt.Errorf(
			"mounting filesystem: %w: %v",
			tinyfs.ErrInvalidFilesystem,
			err,
		)
	}

	tmp := Session{
		dev:     dev,
		blksize: blksize,
		super:   *sb,
	}
	free, err := tmp.countFree()
	if err != nil {
		return fmt.Errorf("mounting filesystem: %w", err)
	}

	s.dev = dev
	s.blksize = blksize
	s.super = *sb
	s.freeBlocks = free
	s.files = make([]openFile, sb.TotalBlocks)

	s.logger().Printf(
		"mounted: %d blocks of %d bytes, %d free",
		sb.TotalBlocks,
		blksize,
		free,
	)
	return nil
}

// Unmount drops all session state. Open handles become invalid.
func (s *Session) Unmount() error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.dev == nil {
		return fmt.Errorf("unmounting filesystem: %w", tinyfs.ErrNotMounted)
	}

	s.dev = nil
	s.blksize = 0
	s.super = blkfmt.Superblock{}
	s.freeBlocks = 0
	s.files = nil

	s.logger().Print("unmounted")
	return nil
}

// TotalBlocks returns the number of blocks on the mounted disk, superblock
// included.
func (s *Session) TotalBlocks() (int, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return 0, err
	}
	return s.super.TotalBlocks, nil
}

// FreeBlocks returns the number of blocks on the free list.
func (s *Session) FreeBlocks() (int, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return 0, err
	}
	return s.freeBlocks, nil
}

// BlockSize returns the block size of the mounted disk.
func (s *Session) BlockSize() (int, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return 0, err
	}
	return s.blksize, nil
}

func (s *Session) mounted() error {
	if s.dev == nil {
		return tinyfs.ErrNotMounted
	}
	return nil
}

func (s *Session) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Session) logger() *log.Logger {
	if s.Log != nil {
		return s.Log
	}
	return discard
}

// file returns the open file table slot of fd.
func (s *Session) file(fd FD) (*openFile, error) {
	if fd == FD(tinyfs.NoBlock) || int(fd) >= len(s.files) {
		return nil, fmt.Errorf("handle `%d`: %w", fd, tinyfs.ErrNotOpen)
	}
	f := &s.files[fd]
	if f.name == "" {
		return nil, fmt.Errorf("handle `%d`: %w", fd, tinyfs.ErrNotOpen)
	}
	return f, nil
}

// checkLink rejects chain pointers that can not name a data block.
func (s *Session) checkLink(n tinyfs.BlockNum) error {
	if n == tinyfs.NoBlock || int(n) >= s.super.TotalBlocks {
		return fmt.Errorf(
			"link to block `%d` outside `1..%d`: %w",
			n,
			s.super.TotalBlocks-1,
			tinyfs.ErrCorruptBlock,
		)
	}
	return nil
}

func (s *Session) readRaw(n tinyfs.BlockNum) ([]byte, error) {
	buf := make([]byte, s.blksize)
	if err := s.dev.ReadBlock(n, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Session) readBlock(n tinyfs.BlockNum) (blkfmt.Block, error) {
	buf, err := s.readRaw(n)
	if err != nil {
		return nil, err
	}
	blk, err := blkfmt.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("block `%d`: %w", n, err)
	}
	return blk, nil
}

func (s *Session) kind(n tinyfs.BlockNum) (blkfmt.Kind, error) {
	buf, err := s.readRaw(n)
	if err != nil {
		return 0, err
	}
	kind, err := blkfmt.PeekKind(buf)
	if err != nil {
		return 0, fmt.Errorf("block `%d`: %w", n, err)
	}
	return kind, nil
}

func (s *Session) readInode(n tinyfs.BlockNum) (*blkfmt.Inode, error) {
	buf, err := s.readRaw(n)
	if err != nil {
		return nil, err
	}
	ino, err := blkfmt.DecodeInode(buf)
	if err != nil {
		return nil, fmt.Errorf("block `%d`: %w", n, err)
	}
	return ino, nil
}

func (s *Session) readExtent(n tinyfs.BlockNum) (*blkfmt.Extent, error) {
	buf, err := s.readRaw(n)
	if err != nil {
		return nil, err
	}
	ext, err := blkfmt.DecodeExtent(buf)
	if err != nil {
		return nil, fmt.Errorf("block `%d`: %w", n, err)
	}
	return ext, nil
}

func (s *Session) readFree(n tinyfs.BlockNum) (*blkfmt.Free, error) {
	buf, err := s.readRaw(n)
	if err != nil {
		return nil, err
	}
	free, err := blkfmt.DecodeFree(buf)
	if err != nil {
		return nil, fmt.Errorf("block `%d`: %w", n, err)
	}
	return free, nil
}

func (s *Session) writeBlock(n tinyfs.BlockNum, blk blkfmt.Block) error {
	buf := make([]byte, s.blksize)
	blkfmt.Encode(blk, buf)
	return s.dev.WriteBlock(n, buf)
}

func (s *Session) writeSuper() error {
	if err := s.writeBlock(0, &s.super); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

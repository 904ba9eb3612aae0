package fs

import (
	"fmt"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfmt"
)

func (s *Session) kinds() ([]blkfmt.Kind, error) {
	kinds := make([]blkfmt.Kind, s.super.TotalBlocks)
	for i := range kinds {
		kind, err := s.kind(tinyfs.BlockNum(i))
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}
	return kinds, nil
}

// Fragments returns the kind of every block in address order.
func (s *Session) Fragments() ([]blkfmt.Kind, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return nil, fmt.Errorf("reading fragments: %w", err)
	}
	kinds, err := s.kinds()
	if err != nil {
		return nil, fmt.Errorf("reading fragments: %w", err)
	}
	return kinds, nil
}

// FragmentMap renders Fragments as one letter per block, e.g. "SIEEFIEF".
func (s *Session) FragmentMap() (string, error) {
	kinds, err := s.Fragments()
	if err != nil {
		return "", err
	}
	m := make([]byte, len(kinds))
	for i, k := range kinds {
		m[i] = k.Letter()
	}
	return string(m), nil
}

// Defragment moves used blocks toward the start of the disk so the free
// blocks end up contiguous at the end, then rethreads the free list in
// ascending order. Inodes of open files stay where they are because their
// block numbers are live handles.
//
// Blocks are moved one at a time and every move is complete on disk before
// the next begins: the target is taken off the free list, the block is
// copied, the one pointer referring to it is redirected, and the old
// location is released.
func (s *Session) Defragment() error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("defragmenting: %w", err)
	}

	kinds, err := s.kinds()
	if err != nil {
		return fmt.Errorf("defragmenting: %w", err)
	}

	movable := func(n int) bool {
		switch kinds[n] {
		case blkfmt.KindExtent:
			return true
		case blkfmt.KindInode:
			return s.files[n].name == ""
		default:
			return false
		}
	}

	movedInode := false
	for {
		to := -1
		for i := 1; i < len(kinds); i++ {
			if kinds[i] == blkfmt.KindFree {
				to = i
				break
			}
		}
		if to < 0 {
			break
		}

		from := -1
		for i := len(kinds) - 1; i > to; i-- {
			if movable(i) {
				from = i
				break
			}
		}
		if from < 0 {
			break
		}

		if err := s.move(kinds, tinyfs.BlockNum(from), tinyfs.BlockNum(to)); err != nil {
			return fmt.Errorf("defragmenting: %w", err)
		}
		if kinds[from] == blkfmt.KindInode {
			movedInode = true
		}
		kinds[to], kinds[from] = kinds[from], blkfmt.KindFree
	}

	if movedInode {
		if err := s.refreshFirstInode(); err != nil {
			return fmt.Errorf("defragmenting: %w", err)
		}
	}
	if err := s.rethreadFreeList(kinds); err != nil {
		return fmt.Errorf("defragmenting: %w", err)
	}
	return nil
}

// move relocates the used block from into the free block to. If the move
// stops halfway the disk still holds a readable copy at from.
func (s *Session) move(kinds []blkfmt.Kind, from, to tinyfs.BlockNum) error {
	if err := s.claim(to); err != nil {
		return fmt.Errorf("moving block `%d` to `%d`: %w", from, to, err)
	}

	if err := s.copyBlock(kinds, from, to); err != nil {
		if rerr := s.release(to); rerr != nil {
			s.logger().Printf("defragment: returning block %d: %v", to, rerr)
		}
		return fmt.Errorf("moving block `%d` to `%d`: %w", from, to, err)
	}

	if err := s.release(from); err != nil {
		return fmt.Errorf("moving block `%d` to `%d`: %w", from, to, err)
	}

	s.logger().Printf("defragment: moved %s block %d to %d", kinds[from], from, to)
	return nil
}

// copyBlock writes a copy of from into to and points the file system at the
// copy. Until it returns nil the copy is unreachable.
func (s *Session) copyBlock(kinds []blkfmt.Kind, from, to tinyfs.BlockNum) error {
	buf, err := s.readRaw(from)
	if err != nil {
		return err
	}
	if err := s.dev.WriteBlock(to, buf); err != nil {
		return err
	}

	switch kinds[from] {
	case blkfmt.KindExtent:
		return s.redirect(kinds, from, to)
	case blkfmt.KindInode:
		// directory scans start at the hint, so it must cover the copy
		// before the old inode is released
		if s.super.FirstInode == tinyfs.NoBlock || to < s.super.FirstInode {
			return s.setFirstInode(to)
		}
	}
	return nil
}

// redirect rewrites the inode or extent that links to the extent from so it
// links to to instead. An extent nothing links to is left alone.
func (s *Session) redirect(kinds []blkfmt.Kind, from, to tinyfs.BlockNum) error {
	for i, kind := range kinds {
		n := tinyfs.BlockNum(i)
		switch kind {
		case blkfmt.KindInode:
			ino, err := s.readInode(n)
			if err != nil {
				return err
			}
			if ino.FirstExtent == from {
				ino.FirstExtent = to
				return s.writeBlock(n, ino)
			}
		case blkfmt.KindExtent:
			if n == from {
				continue
			}
			ext, err := s.readExtent(n)
			if err != nil {
				return err
			}
			if ext.Next == from {
				ext.Next = to
				return s.writeBlock(n, ext)
			}
		}
	}

	s.logger().Printf("defragment: extent %d is not linked from anywhere", from)
	return nil
}

// rethreadFreeList links the free blocks in ascending order. Free blocks
// that had fallen off the list are picked up again.
func (s *Session) rethreadFreeList(kinds []blkfmt.Kind) error {
	next := tinyfs.NoBlock
	count := 0
	for i := len(kinds) - 1; i > 0; i-- {
		if kinds[i] != blkfmt.KindFree {
			continue
		}
		n := tinyfs.BlockNum(i)
		if err := s.writeBlock(n, &blkfmt.Free{Next: next}); err != nil {
			return fmt.Errorf("rethreading free list: %w", err)
		}
		next = n
		count++
	}

	s.super.FirstFree = next
	if err := s.writeSuper(); err != nil {
		return fmt.Errorf("rethreading free list: %w", err)
	}

	if count != s.freeBlocks {
		s.logger().Printf(
			"defragment: free list held %d blocks, disk has %d",
			s.freeBlocks,
			count,
		)
		s.freeBlocks = count
	}
	return nil
}

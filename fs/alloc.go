package fs

import (
	"fmt"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfmt"
)

// allocate pops the head of the free list. The popped block still carries
// its free header; the caller owns it and must overwrite it.
func (s *Session) allocate() (tinyfs.BlockNum, error) {
	head := s.super.FirstFree
	if head == tinyfs.NoBlock {
		return 0, fmt.Errorf("allocating block: %w", tinyfs.ErrOutOfSpace)
	}
	if err := s.checkLink(head); err != nil {
		return 0, fmt.Errorf("allocating block: %w", err)
	}

	free, err := s.readFree(head)
	if err != nil {
		return 0, fmt.Errorf("allocating block: %w", err)
	}

	s.super.FirstFree = free.Next
	if err := s.writeSuper(); err != nil {
		s.super.FirstFree = head
		return 0, fmt.Errorf("allocating block: %w", err)
	}
	s.freeBlocks--

	return head, nil
}

// allocateN allocates n blocks or none at all.
func (s *Session) allocateN(n int) ([]tinyfs.BlockNum, error) {
	if n > s.freeBlocks {
		return nil, fmt.Errorf(
			"allocating `%d` blocks with `%d` free: %w",
			n,
			s.freeBlocks,
			tinyfs.ErrOutOfSpace,
		)
	}

	blocks := make([]tinyfs.BlockNum, 0, n)
	for len(blocks) < n {
		b, err := s.allocate()
		if err != nil {
			s.releaseAll(blocks)
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// release pushes n onto the head of the free list.
func (s *Session) release(n tinyfs.BlockNum) error {
	if err := s.writeBlock(n, &blkfmt.Free{Next: s.super.FirstFree}); err != nil {
		return fmt.Errorf("releasing block `%d`: %w", n, err)
	}

	prev := s.super.FirstFree
	s.super.FirstFree = n
	if err := s.writeSuper(); err != nil {
		s.super.FirstFree = prev
		return fmt.Errorf("releasing block `%d`: %w", n, err)
	}
	s.freeBlocks++

	return nil
}

// releaseAll hands blocks from allocateN back in reverse order, which
// restores the free list they were taken from. Failures are only logged.
func (s *Session) releaseAll(blocks []tinyfs.BlockNum) {
	for i := len(blocks) - 1; i >= 0; i-- {
		if err := s.release(blocks[i]); err != nil {
			s.logger().Printf("returning block %d: %v", blocks[i], err)
		}
	}
}

// releaseChain releases every block of the chain starting at start,
// following each block's link. A start of NoBlock is an empty chain.
func (s *Session) releaseChain(start tinyfs.BlockNum) error {
	n := start
	for steps := 0; n != tinyfs.NoBlock; steps++ {
		if steps >= s.super.TotalBlocks {
			return fmt.Errorf(
				"releasing chain at `%d`: cycle: %w",
				start,
				tinyfs.ErrCorruptBlock,
			)
		}
		if err := s.checkLink(n); err != nil {
			return fmt.Errorf("releasing chain at `%d`: %w", start, err)
		}

		blk, err := s.readBlock(n)
		if err != nil {
			return fmt.Errorf("releasing chain at `%d`: %w", start, err)
		}
		next := blk.Link()

		if err := s.release(n); err != nil {
			return fmt.Errorf("releasing chain at `%d`: %w", start, err)
		}
		n = next
	}
	return nil
}

// claim removes the free block n from wherever it is on the free list.
func (s *Session) claim(n tinyfs.BlockNum) error {
	free, err := s.readFree(n)
	if err != nil {
		return fmt.Errorf("claiming block `%d`: %w", n, err)
	}

	if s.super.FirstFree == n {
		s.super.FirstFree = free.Next
		if err := s.writeSuper(); err != nil {
			s.super.FirstFree = n
			return fmt.Errorf("claiming block `%d`: %w", n, err)
		}
		s.freeBlocks--
		return nil
	}

	prev := s.super.FirstFree
	for steps := 0; prev != tinyfs.NoBlock; steps++ {
		if steps >= s.super.TotalBlocks {
			return fmt.Errorf(
				"claiming block `%d`: free list cycle: %w",
				n,
				tinyfs.ErrCorruptBlock,
			)
		}
		if err := s.checkLink(prev); err != nil {
			return fmt.Errorf("claiming block `%d`: %w", n, err)
		}

		pf, err := s.readFree(prev)
		if err != nil {
			return fmt.Errorf("claiming block `%d`: %w", n, err)
		}
		if pf.Next == n {
			pf.Next = free.Next
			if err := s.writeBlock(prev, pf); err != nil {
				return fmt.Errorf("claiming block `%d`: %w", n, err)
			}
			s.freeBlocks--
			return nil
		}
		prev = pf.Next
	}

	return fmt.Errorf(
		"claiming block `%d`: not on the free list: %w",
		n,
		tinyfs.ErrCorruptBlock,
	)
}

// countFree walks the free list.
func (s *Session) countFree() (int, error) {
	count := 0
	for n := s.super.FirstFree; n != tinyfs.NoBlock; count++ {
		if count >= s.super.TotalBlocks {
			return 0, fmt.Errorf(
				"counting free blocks: cycle: %w",
				tinyfs.ErrCorruptBlock,
			)
		}
		if err := s.checkLink(n); err != nil {
			return 0, fmt.Errorf("counting free blocks: %w", err)
		}
		free, err := s.readFree(n)
		if err != nil {
			return 0, fmt.Errorf("counting free blocks: %w", err)
		}
		n = free.Next
	}
	return count, nil
}

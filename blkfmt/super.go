package blkfmt

import "github.com/keks/tinyfs"

const (
	offSuperTotal      = 0
	offSuperFirstInode = 1
)

// Superblock lives in block 0.
type Superblock struct {
	// FirstFree is the head of the free list, NoBlock if the disk is full.
	FirstFree tinyfs.BlockNum

	// FirstInode is the lowest numbered inode block, NoBlock if there are
	// no files.
	FirstInode tinyfs.BlockNum

	// TotalBlocks includes the superblock. It is stored in one byte, and
	// tinyfs.MaxBlocks is stored as zero.
	TotalBlocks int
}

func (sb *Superblock) Kind() Kind { return KindSuper }
func (sb *Superblock) Link() tinyfs.BlockNum { return sb.FirstFree }

func (sb *Superblock) encodePayload(p []byte) {
	p[offSuperTotal] = uint8(sb.TotalBlocks % tinyfs.MaxBlocks)
	p[offSuperFirstInode] = uint8(sb.FirstInode)
}

func (sb *Superblock) decodePayload(p []byte) {
	sb.TotalBlocks = int(p[offSuperTotal])
	if sb.TotalBlocks == 0 {
		sb.TotalBlocks = tinyfs.MaxBlocks
	}
	sb.FirstInode = tinyfs.BlockNum(p[offSuperFirstInode])
}

func DecodeSuperblock(buf []byte) (*Superblock, error) {
	blk, err := decodeAs(buf, KindSuper)
	if err != nil {
		return nil, err
	}
	return blk.(*Superblock), nil
}

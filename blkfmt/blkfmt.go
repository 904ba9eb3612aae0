// Package blkfmt encodes and decodes the four kinds of blocks stored on a
// disk. Every block starts with the same four byte header
//
//	[kind][magic][link][reserved]
//
// followed by a payload that depends on the kind. The link byte is the chain
// pointer of the chain the block is part of: the free list for the
// superblock and free blocks, the extent chain for extents.
package blkfmt

import (
	"fmt"

	"github.com/keks/tinyfs"
)

// Kind is the type tag in the first byte of every block.
type Kind uint8

const (
	KindSuper  Kind = 1
	KindInode  Kind = 2
	KindExtent Kind = 3
	KindFree   Kind = 4
)

const (
	// Magic is shared by every block so any block can be validated on its
	// own.
	Magic uint8 = 0x44

	// HeaderSize is the size of the common block header in bytes.
	HeaderSize = 4

	// NameSize is the width of the inode name field.
	NameSize = 8
)

const (
	offKind     = 0
	offMagic    = 1
	offLink     = 2
	offReserved = 3
)

func (k Kind) String() string {
	switch k {
	case KindSuper:
		return "super"
	case KindInode:
		return "inode"
	case KindExtent:
		return "extent"
	case KindFree:
		return "free"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Letter is the one character tag used in fragmentation maps.
func (k Kind) Letter() byte {
	switch k {
	case KindSuper:
		return 'S'
	case KindInode:
		return 'I'
	case KindExtent:
		return 'E'
	case KindFree:
		return 'F'
	default:
		return '?'
	}
}

// Block is one of *Superblock, *Inode, *Extent or *Free.
type Block interface {
	Kind() Kind
	Link() tinyfs.BlockNum

	encodePayload(payload []byte)
	decodePayload(payload []byte)
}

type ErrBadMagic struct {
	Found uint8
}

func (err ErrBadMagic) Error() string {
	return fmt.Sprintf(
		"bad magic: wanted `%#02x`; found `%#02x`",
		Magic,
		err.Found,
	)
}

func (err ErrBadMagic) Is(target error) bool {
	return target == tinyfs.ErrCorruptBlock
}

type ErrKindMismatch struct {
	Wanted Kind
	Found  Kind
}

func (err ErrKindMismatch) Error() string {
	return fmt.Sprintf(
		"wrong block kind: wanted `%s`; found `%s`",
		err.Wanted,
		err.Found,
	)
}

func (err ErrKindMismatch) Is(target error) bool {
	return target == tinyfs.ErrCorruptBlock
}

// Encode serializes blk into buf, which must be a whole block. Bytes not
// covered by the payload are zeroed.
func Encode(blk Block, buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	buf[offKind] = uint8(blk.Kind())
	buf[offMagic] = Magic
	buf[offLink] = uint8(blk.Link())
	buf[offReserved] = 0
	blk.encodePayload(buf[HeaderSize:])
}

// PeekKind validates the header of buf and returns its kind without
// decoding the payload.
func PeekKind(buf []byte) (Kind, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf(
			"decoding block header: buffer of `%d` bytes: %w",
			len(buf),
			tinyfs.ErrCorruptBlock,
		)
	}
	if buf[offMagic] != Magic {
		return 0, fmt.Errorf(
			"decoding block header: %w",
			ErrBadMagic{buf[offMagic]},
		)
	}
	return Kind(buf[offKind]), nil
}

// Decode parses any block.
func Decode(buf []byte) (Block, error) {
	kind, err := PeekKind(buf)
	if err != nil {
		return nil, err
	}

	var blk Block
	switch kind {
	case KindSuper:
		blk = &Superblock{}
	case KindInode:
		blk = &Inode{}
	case KindExtent:
		blk = &Extent{}
	case KindFree:
		blk = &Free{}
	default:
		return nil, fmt.Errorf(
			"decoding block: unknown kind `%d`: %w",
			kind,
			tinyfs.ErrCorruptBlock,
		)
	}

	setLink(blk, tinyfs.BlockNum(buf[offLink]))
	blk.decodePayload(buf[HeaderSize:])
	return blk, nil
}

func decodeAs(buf []byte, wanted Kind) (Block, error) {
	kind, err := PeekKind(buf)
	if err != nil {
		return nil, err
	}
	if kind != wanted {
		return nil, fmt.Errorf(
			"decoding %s block: %w",
			wanted,
			ErrKindMismatch{Wanted: wanted, Found: kind},
		)
	}
	return Decode(buf)
}

func setLink(blk Block, link tinyfs.BlockNum) {
	switch b := blk.(type) {
	case *Superblock:
		b.FirstFree = link
	case *Extent:
		b.Next = link
	case *Free:
		b.Next = link
	}
}

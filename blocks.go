package tinyfs // import "github.com/keks/tinyfs"

import (
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Block Layer

// BlockNum identifies blocks. Links between blocks are single bytes, so a
// disk can address at most MaxBlocks blocks.
type BlockNum uint8

const (
	// DefaultBlockSize is the block size used when none is configured.
	DefaultBlockSize = 256

	// MinBlockSize is the smallest block that can hold an inode.
	MinBlockSize = 64

	// MaxBlocks is the address space of a one-byte block link.
	MaxBlocks = 256

	// NoBlock terminates every chain. Block 0 is always the superblock, so
	// no chain can legitimately point at it.
	NoBlock BlockNum = 0
)

// Device is a fixed-size array of opaque fixed-length blocks.
type Device interface {
	BlockSize() int
	ReadBlock(n BlockNum, buf []byte) error
	WriteBlock(n BlockNum, buf []byte) error
}

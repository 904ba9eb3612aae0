package blkfmt

import "github.com/keks/tinyfs"

// Extent holds one slice of a file's content.
type Extent struct {
	Next tinyfs.BlockNum
	Data []byte
}

// PayloadSize is the number of data bytes an extent holds on a disk with
// the given block size.
func PayloadSize(blockSize int) int {
	return blockSize - HeaderSize
}

func (ext *Extent) Kind() Kind { return KindExtent }
func (ext *Extent) Link() tinyfs.BlockNum { return ext.Next }

func (ext *Extent) encodePayload(p []byte) {
	copy(p, ext.Data)
}

func (ext *Extent) decodePayload(p []byte) {
	ext.Data = append([]byte(nil), p...)
}

func DecodeExtent(buf []byte) (*Extent, error) {
	blk, err := decodeAs(buf, KindExtent)
	if err != nil {
		return nil, err
	}
	return blk.(*Extent), nil
}

// Free is an unallocated block on the free list.
type Free struct {
	Next tinyfs.BlockNum
}

func (f *Free) Kind() Kind { return KindFree }
func (f *Free) Link() tinyfs.BlockNum { return f.Next }

func (f *Free) encodePayload(p []byte) {}
func (f *Free) decodePayload(p []byte) {}

func DecodeFree(buf []byte) (*Free, error) {
	blk, err := decodeAs(buf, KindFree)
	if err != nil {
		return nil, err
	}
	return blk.(*Free), nil
}

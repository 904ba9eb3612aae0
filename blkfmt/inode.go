package blkfmt

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/keks/tinyfs"
)

// Permission is the access mode of a file.
type Permission uint8

const (
	ReadOnly  Permission = 0
	ReadWrite Permission = 1
)

func (p Permission) String() string {
	if p == ReadOnly {
		return "ro"
	}
	return "rw"
}

const (
	offInodePerm     = 0
	offInodeExtent   = 1
	offInodeSize     = 2
	offInodeName     = 3
	offInodeCreated  = offInodeName + NameSize
	offInodeModified = offInodeCreated + 8
	offInodeAccessed = offInodeModified + 8

	// InodeSize is the number of bytes an inode occupies including the
	// header.
	InodeSize = HeaderSize + offInodeAccessed + 8
)

// Inode holds the metadata of one file. Its block number is the file's
// handle.
type Inode struct {
	Permission   Permission
	FirstExtent  tinyfs.BlockNum
	SizeInBlocks uint8
	Name         string

	Created  time.Time
	Modified time.Time
	Accessed time.Time
}

func (ino *Inode) Kind() Kind { return KindInode }
func (ino *Inode) Link() tinyfs.BlockNum { return tinyfs.NoBlock }

// Writable reports whether the file may be written or deleted.
func (ino *Inode) Writable() bool { return ino.Permission != ReadOnly }

func (ino *Inode) encodePayload(p []byte) {
	p[offInodePerm] = uint8(ino.Permission)
	p[offInodeExtent] = uint8(ino.FirstExtent)
	p[offInodeSize] = ino.SizeInBlocks
	copy(p[offInodeName:offInodeName+NameSize], ino.Name)
	putTime(p[offInodeCreated:], ino.Created)
	putTime(p[offInodeModified:], ino.Modified)
	putTime(p[offInodeAccessed:], ino.Accessed)
}

func (ino *Inode) decodePayload(p []byte) {
	ino.Permission = Permission(p[offInodePerm])
	ino.FirstExtent = tinyfs.BlockNum(p[offInodeExtent])
	ino.SizeInBlocks = p[offInodeSize]

	name := p[offInodeName : offInodeName+NameSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	ino.Name = string(name)

	ino.Created = getTime(p[offInodeCreated:])
	ino.Modified = getTime(p[offInodeModified:])
	ino.Accessed = getTime(p[offInodeAccessed:])
}

// timestamps are little-endian Unix nanoseconds; zero is the zero time.
func putTime(p []byte, t time.Time) {
	var ns int64
	if !t.IsZero() {
		ns = t.UnixNano()
	}
	binary.LittleEndian.PutUint64(p, uint64(ns))
}

func getTime(p []byte) time.Time {
	ns := int64(binary.LittleEndian.Uint64(p))
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func DecodeInode(buf []byte) (*Inode, error) {
	blk, err := decodeAs(buf, KindInode)
	if err != nil {
		return nil, err
	}
	return blk.(*Inode), nil
}

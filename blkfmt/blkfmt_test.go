package blkfmt

import (
	"testing"
	"time"

	"github.com/keks/tinyfs"
	"github.com/stretchr/testify/require"
)

func TestSuperblockLayout(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xff
	}
	Encode(&Superblock{FirstFree: 1, FirstInode: 7, TotalBlocks: 40}, buf)

	r.Equal([]byte{1, 0x44, 1, 0, 40, 7}, buf[:6])
	for i, b := range buf[6:] {
		r.Zero(b, "byte %d not cleared", i+6)
	}

	sb, err := DecodeSuperblock(buf)
	r.NoError(err)
	r.Equal(&Superblock{FirstFree: 1, FirstInode: 7, TotalBlocks: 40}, sb)
}

func TestSuperblockMaxBlocks(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 64)
	Encode(&Superblock{TotalBlocks: tinyfs.MaxBlocks}, buf)
	r.Zero(buf[HeaderSize])

	sb, err := DecodeSuperblock(buf)
	r.NoError(err)
	r.Equal(tinyfs.MaxBlocks, sb.TotalBlocks)
}

func TestInodeLayout(t *testing.T) {
	r := require.New(t)

	created := time.Unix(1489900000, 12345)
	modified := created.Add(time.Minute)
	accessed := created.Add(time.Hour)

	buf := make([]byte, 64)
	Encode(&Inode{
		Permission:   ReadWrite,
		FirstExtent:  9,
		SizeInBlocks: 3,
		Name:         "abcdefgh",
		Created:      created,
		Modified:     modified,
		Accessed:     accessed,
	}, buf)

	r.Equal([]byte{2, 0x44, 0, 0, 1, 9, 3}, buf[:7])
	r.Equal("abcdefgh", string(buf[7:15]))
	r.Equal(byte(0), buf[InodeSize], "nothing written past the inode")

	ino, err := DecodeInode(buf)
	r.NoError(err)
	r.Equal("abcdefgh", ino.Name)
	r.Equal(ReadWrite, ino.Permission)
	r.True(ino.Writable())
	r.Equal(tinyfs.BlockNum(9), ino.FirstExtent)
	r.Equal(uint8(3), ino.SizeInBlocks)
	r.True(created.Equal(ino.Created))
	r.True(modified.Equal(ino.Modified))
	r.True(accessed.Equal(ino.Accessed))
}

func TestInodeShortName(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 64)
	Encode(&Inode{Name: "a"}, buf)

	ino, err := DecodeInode(buf)
	r.NoError(err)
	r.Equal("a", ino.Name)
	r.Equal(ReadOnly, ino.Permission)
	r.False(ino.Writable())
	r.True(ino.Created.IsZero())
}

func TestExtentLayout(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 64)
	Encode(&Extent{Next: 5, Data: []byte("hello")}, buf)
	r.Equal([]byte{3, 0x44, 5, 0, 'h', 'e', 'l', 'l', 'o', 0}, buf[:10])

	ext, err := DecodeExtent(buf)
	r.NoError(err)
	r.Equal(tinyfs.BlockNum(5), ext.Next)
	r.Len(ext.Data, PayloadSize(64))
	r.Equal([]byte("hello"), ext.Data[:5])
	r.Equal(60, PayloadSize(64))
}

func TestFreeLayout(t *testing.T) {
	r := require.New(t)

	buf := make([]byte, 64)
	Encode(&Free{Next: 3}, buf)
	r.Equal([]byte{4, 0x44, 3, 0}, buf[:4])

	blk, err := Decode(buf)
	r.NoError(err)
	r.Equal(&Free{Next: 3}, blk)
	r.Equal(KindFree, blk.Kind())
	r.Equal(tinyfs.BlockNum(3), blk.Link())
}

func TestDecodeErrors(t *testing.T) {
	type testcase struct {
		name   string
		buf    []byte
		decode func([]byte) error
		expErr error
	}

	decodeAny := func(buf []byte) error {
		_, err := Decode(buf)
		return err
	}
	decodeInode := func(buf []byte) error {
		_, err := DecodeInode(buf)
		return err
	}

	var tcs = []testcase{
		{
			name:   "bad magic",
			buf:    []byte{4, 0x45, 0, 0},
			decode: decodeAny,
			expErr: ErrBadMagic{0x45},
		},
		{
			name:   "zeroed block",
			buf:    make([]byte, 64),
			decode: decodeAny,
			expErr: tinyfs.ErrCorruptBlock,
		},
		{
			name:   "unknown kind",
			buf:    []byte{9, 0x44, 0, 0},
			decode: decodeAny,
			expErr: tinyfs.ErrCorruptBlock,
		},
		{
			name:   "short buffer",
			buf:    []byte{4, 0x44},
			decode: decodeAny,
			expErr: tinyfs.ErrCorruptBlock,
		},
		{
			name:   "free block read as inode",
			buf:    []byte{4, 0x44, 0, 0},
			decode: decodeInode,
			expErr: ErrKindMismatch{Wanted: KindInode, Found: KindFree},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode(tc.buf)
			require.ErrorIs(t, err, tc.expErr)
			require.ErrorIs(t, err, tinyfs.ErrCorruptBlock)
		})
	}
}

func TestKindLetters(t *testing.T) {
	var letters []byte
	for _, k := range []Kind{KindSuper, KindInode, KindExtent, KindFree, 0} {
		letters = append(letters, k.Letter())
	}
	require.Equal(t, "SIEF?", string(letters))
	require.Equal(t, "extent", KindExtent.String())
}

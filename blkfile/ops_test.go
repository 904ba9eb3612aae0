package blkfile

import (
	"bytes"
	"testing"

	"github.com/keks/tinyfs"
	"github.com/stretchr/testify/require"
)

type op interface {
	Do(*testing.T, tinyfs.ReadWriterAt)
}

type blkWriteOp struct {
	data []byte
	off  int64

	blkOff  int64
	blkSize int

	expN   int
	expErr string
}

func (op blkWriteOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	r := require.New(t)

	blk := &block{
		lower: rwa,
		off:   op.blkOff,
		size:  op.blkSize,
	}

	n, err := blk.WriteAt(op.data, op.off)

	t.Logf("writeOp, n: %d, err: %v", n, err)

	r.Equal(op.expN, n)
	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
}

type blkReadOp struct {
	off     int64
	readlen int

	blkOff  int64
	blkSize int

	exp    []byte
	expN   int
	expErr string
}

func (op blkReadOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	blk := &block{
		lower: rwa,
		off:   op.blkOff,
		size:  op.blkSize,
	}

	buf := make([]byte, op.readlen)
	n, err := blk.ReadAt(buf, op.off)

	t.Logf("readOp, n: %d, err: %v", n, err)

	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
	r.Equal(op.expN, n)
	t.Logf("buffer contents %q | 0x%x", buf[:op.expN], buf[:op.expN])
	r.True(bytes.Equal(buf[:op.expN], op.exp))
}

type devWriteOp struct {
	dev  **Device
	n    tinyfs.BlockNum
	fill byte

	expErr error
}

func (op devWriteOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	dev := *op.dev
	buf := bytes.Repeat([]byte{op.fill}, dev.BlockSize())
	err := dev.WriteBlock(op.n, buf)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type devReadOp struct {
	dev  **Device
	n    tinyfs.BlockNum
	fill byte

	expErr error
}

func (op devReadOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	dev := *op.dev
	buf := make([]byte, dev.BlockSize())
	err := dev.ReadBlock(op.n, buf)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{op.fill}, dev.BlockSize()), buf)
}

type devNewOp struct {
	dev     **Device
	nblocks int
	blksize int

	expErr error
}

func (op devNewOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	dev, err := New(rwa, op.nblocks, op.blksize)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	*op.dev = dev
}

type dumpOp struct {
	name string
	v    interface{}
}

func (op dumpOp) Do(t *testing.T, rwa tinyfs.ReadWriterAt) {
	t.Logf("%s: %#v", op.name, op.v)
}

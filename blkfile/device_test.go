package blkfile

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/keks/tinyfs"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	r := require.New(t)

	dir, err := ioutil.TempDir("", "TestOpen-*")
	r.NoError(err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "disk")

	_, err = Open(path, 0, 64)
	r.ErrorIs(err, tinyfs.ErrDeviceUnavailable, "opening a missing disk")

	_, err = Open(path, 63, 64)
	r.ErrorIs(err, tinyfs.ErrFormatFailure, "size below one block")

	dev, err := Open(path, 64*5+10, 64)
	r.NoError(err)
	r.Equal(5, dev.Blocks())
	r.Equal(64, dev.BlockSize())

	data := bytes.Repeat([]byte{0xab}, 64)
	r.NoError(dev.WriteBlock(4, data))
	r.NoError(dev.Close())

	info, err := os.Stat(path)
	r.NoError(err)
	r.EqualValues(64*5, info.Size())

	dev, err = Open(path, 0, 64)
	r.NoError(err)
	defer dev.Close()
	r.Equal(5, dev.Blocks())

	buf := make([]byte, 64)
	r.NoError(dev.ReadBlock(4, buf))
	r.Equal(data, buf)

	err = dev.ReadBlock(1, make([]byte, 10))
	r.ErrorIs(err, tinyfs.ErrDeviceUnavailable, "short buffer")
}

func TestMemory(t *testing.T) {
	r := require.New(t)

	m := NewMemory(8)
	n, err := m.WriteAt([]byte("hello"), 6)
	r.NoError(err)
	r.Equal(5, n)
	r.Len(m.Bytes(), 11)

	buf := make([]byte, 8)
	n, err = m.ReadAt(buf, 6)
	r.EqualError(err, "EOF")
	r.Equal(5, n)
	r.Equal([]byte("hello"), buf[:n])

	n, err = m.ReadAt(buf, 11)
	r.ErrorIs(err, io.EOF)
	r.Zero(n)

	_, err = m.WriteAt([]byte("x"), -1)
	r.Error(err)

	// a write past the end zero-fills the gap
	_, err = m.WriteAt([]byte("!"), 13)
	r.NoError(err)
	r.Equal([]byte("\x00\x00!"), m.Bytes()[11:])
}

package blkfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/keks/tinyfs"
)

// ErrBlockOutOfRange is returned for block numbers beyond the end of the
// device.
var ErrBlockOutOfRange = errors.New("block out of range")

// DeviceError records a failed block operation. It matches
// tinyfs.ErrDeviceUnavailable and unwraps to the underlying error.
type DeviceError struct {
	Op    string
	Block tinyfs.BlockNum
	Err   error
}

func (err *DeviceError) Error() string {
	return fmt.Sprintf("%s block `%d`: %v", err.Op, err.Block, err.Err)
}

func (err *DeviceError) Unwrap() error { return err.Err }

func (err *DeviceError) Is(target error) bool {
	return target == tinyfs.ErrDeviceUnavailable
}

// Device is a fixed number of fixed-size blocks backed by a ReadWriterAt.
// Logical block n starts at byte offset n*BlockSize().
type Device struct {
	l sync.Mutex

	lower  tinyfs.ReadWriterAt
	closer io.Closer

	blksize int
	nblocks int
}

// New returns a Device of nblocks blocks of blksize bytes on top of lower.
func New(lower tinyfs.ReadWriterAt, nblocks, blksize int) (*Device, error) {
	if blksize < tinyfs.MinBlockSize {
		return nil, fmt.Errorf(
			"creating device: block size `%d` below minimum `%d`: %w",
			blksize,
			tinyfs.MinBlockSize,
			tinyfs.ErrDeviceUnavailable,
		)
	}
	if nblocks < 1 {
		return nil, fmt.Errorf(
			"creating device: need at least one block: %w",
			tinyfs.ErrDeviceUnavailable,
		)
	}

	return &Device{
		lower:   lower,
		blksize: blksize,
		nblocks: nblocks,
	}, nil
}

// Open opens the host file at path as a device. If nBytes is zero the file
// must already exist and is opened as is. Otherwise the file is created or
// truncated to nBytes rounded down to a multiple of blksize, and nBytes
// below one block is an error.
func Open(path string, nBytes, blksize int) (*Device, error) {
	if blksize < tinyfs.MinBlockSize {
		return nil, fmt.Errorf(
			"opening device `%s`: block size `%d` below minimum `%d`: %w",
			path,
			blksize,
			tinyfs.MinBlockSize,
			tinyfs.ErrDeviceUnavailable,
		)
	}

	if nBytes == 0 {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf(
				"opening device `%s`: %w",
				path,
				&DeviceError{Op: "open", Err: err},
			)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf(
				"opening device `%s`: %w",
				path,
				&DeviceError{Op: "stat", Err: err},
			)
		}

		dev, err := New(f, int(info.Size())/blksize, blksize)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening device `%s`: %w", path, err)
		}
		dev.closer = f
		return dev, nil
	}

	if nBytes < blksize {
		return nil, fmt.Errorf(
			"opening device `%s`: size `%d` below one block: %w",
			path,
			nBytes,
			tinyfs.ErrFormatFailure,
		)
	}

	nblocks := nBytes / blksize
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf(
			"opening device `%s`: %w",
			path,
			&DeviceError{Op: "create", Err: err},
		)
	}
	if err := f.Truncate(int64(nblocks * blksize)); err != nil {
		f.Close()
		return nil, fmt.Errorf(
			"opening device `%s`: %w",
			path,
			&DeviceError{Op: "truncate", Err: err},
		)
	}

	dev, err := New(f, nblocks, blksize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening device `%s`: %w", path, err)
	}
	dev.closer = f
	return dev, nil
}

// BlockSize returns the size of every block in bytes.
func (dev *Device) BlockSize() int { return dev.blksize }

// Blocks returns the number of blocks on the device.
func (dev *Device) Blocks() int { return dev.nblocks }

func (dev *Device) get(n tinyfs.BlockNum) *block {
	return &block{
		off:   int64(n) * int64(dev.blksize),
		size:  dev.blksize,
		lower: dev.lower,
	}
}

func (dev *Device) check(op string, n tinyfs.BlockNum, buf []byte) error {
	if int(n) >= dev.nblocks {
		return &DeviceError{Op: op, Block: n, Err: ErrBlockOutOfRange}
	}
	if len(buf) != dev.blksize {
		return &DeviceError{
			Op:    op,
			Block: n,
			Err: fmt.Errorf(
				"buffer length `%d` does not match block size `%d`",
				len(buf),
				dev.blksize,
			),
		}
	}
	return nil
}

// ReadBlock copies block n into buf, which must be exactly one block long.
func (dev *Device) ReadBlock(n tinyfs.BlockNum, buf []byte) error {
	if err := dev.check("read", n, buf); err != nil {
		return err
	}

	dev.l.Lock()
	defer dev.l.Unlock()

	if _, err := io.ReadFull(readerFromReaderAt(dev.get(n), 0), buf); err != nil {
		return &DeviceError{Op: "read", Block: n, Err: err}
	}
	return nil
}

// WriteBlock writes buf, which must be exactly one block long, to block n.
func (dev *Device) WriteBlock(n tinyfs.BlockNum, buf []byte) error {
	if err := dev.check("write", n, buf); err != nil {
		return err
	}

	dev.l.Lock()
	defer dev.l.Unlock()

	if _, err := writerFromWriterAt(dev.get(n), 0).Write(buf); err != nil {
		return &DeviceError{Op: "write", Block: n, Err: err}
	}
	return nil
}

// Close closes the host file, if the device was opened from one.
func (dev *Device) Close() error {
	if dev.closer == nil {
		return nil
	}
	if err := dev.closer.Close(); err != nil {
		return &DeviceError{Op: "close", Err: err}
	}
	return nil
}

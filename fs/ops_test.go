package fs

import (
	"errors"
	"testing"
	"time"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfile"
	"github.com/stretchr/testify/require"
)

// env is a mounted in-memory disk plus the handles opened so far, keyed by
// the name they were opened under. The session writes through faults; dev
// is the disk underneath.
type env struct {
	s      *Session
	dev    *blkfile.Device
	faults *faultyDevice
	fds    map[string]FD
}

var errDeviceDown = errors.New("device down")

// faultyDevice fails the writes fail picks. A nil fail lets everything
// through.
type faultyDevice struct {
	tinyfs.Device

	fail func(n tinyfs.BlockNum, buf []byte) bool
}

func (dev *faultyDevice) WriteBlock(n tinyfs.BlockNum, buf []byte) error {
	if dev.fail != nil && dev.fail(n, buf) {
		return &blkfile.DeviceError{Op: "write", Block: n, Err: errDeviceDown}
	}
	return dev.Device.WriteBlock(n, buf)
}

// failOnce fails the first write match picks.
func failOnce(match func(tinyfs.BlockNum, []byte) bool) func(tinyfs.BlockNum, []byte) bool {
	done := false
	return func(n tinyfs.BlockNum, buf []byte) bool {
		if done || !match(n, buf) {
			return false
		}
		done = true
		return true
	}
}

// crashAfter lets the first write last picks through and fails every
// write after it.
func crashAfter(last func(tinyfs.BlockNum, []byte) bool) func(tinyfs.BlockNum, []byte) bool {
	down := false
	return func(n tinyfs.BlockNum, buf []byte) bool {
		if down {
			return true
		}
		down = last(n, buf)
		return false
	}
}

type op interface {
	Do(*testing.T, *env)
}

// newEnv formats and mounts an in-memory disk of nblocks blocks.
func newEnv(t *testing.T, nblocks, blksize int) *env {
	r := require.New(t)

	dev, err := blkfile.New(blkfile.NewMemory(nblocks*blksize), nblocks, blksize)
	r.NoError(err)
	r.NoError(Format(dev, nblocks*blksize))

	faults := &faultyDevice{Device: dev}
	s, err := Mount(faults)
	r.NoError(err)
	s.Now = tick(time.Unix(1489900000, 0))

	return &env{s: s, dev: dev, faults: faults, fds: map[string]FD{}}
}

// tick returns a clock that advances one second per call.
func tick(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func checkErr(t *testing.T, expErr, err error) {
	t.Helper()
	if expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, expErr)
	}
}

type openOp struct {
	name      string
	mustExist bool

	expFD  FD
	expErr error
}

func (op openOp) Do(t *testing.T, e *env) {
	open := e.s.Open
	if op.mustExist {
		open = e.s.OpenExisting
	}
	fd, err := open(op.name)
	checkErr(t, op.expErr, err)
	if err != nil {
		return
	}
	if op.expFD != 0 {
		require.Equal(t, op.expFD, fd, "handle of %q", op.name)
	}
	e.fds[op.name] = fd
}

type closeOp struct {
	name string

	expErr error
}

func (op closeOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.Close(e.fds[op.name]))
}

type writeOp struct {
	name string
	data []byte

	expErr error
}

func (op writeOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.WriteFile(e.fds[op.name], op.data))
}

type readAllOp struct {
	name string

	exp []byte
}

func (op readAllOp) Do(t *testing.T, e *env) {
	data, err := e.s.ReadAll(e.fds[op.name])
	require.NoError(t, err)
	require.Equal(t, op.exp, data)
}

type readByteOp struct {
	name string

	exp    byte
	expErr error
}

func (op readByteOp) Do(t *testing.T, e *env) {
	b, err := e.s.ReadFileByte(e.fds[op.name])
	checkErr(t, op.expErr, err)
	if err == nil {
		require.Equal(t, op.exp, b)
	}
}

type writeByteOp struct {
	name string
	b    byte

	expErr error
}

func (op writeByteOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.WriteFileByte(e.fds[op.name], op.b))
}

type seekOp struct {
	name string
	off  int

	expErr error
}

func (op seekOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.Seek(e.fds[op.name], op.off))
}

type deleteOp struct {
	name string

	expErr error
}

func (op deleteOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.DeleteFile(e.fds[op.name]))
}

type truncateOp struct {
	name string

	expErr error
}

func (op truncateOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.Truncate(e.fds[op.name]))
}

type renameOp struct {
	name    string
	newName string

	expErr error
}

func (op renameOp) Do(t *testing.T, e *env) {
	fd := e.fds[op.name]
	err := e.s.Rename(fd, op.newName)
	checkErr(t, op.expErr, err)
	if err == nil {
		delete(e.fds, op.name)
		e.fds[op.newName] = fd
	}
}

type chmodOp struct {
	name     string
	readOnly bool

	expErr error
}

func (op chmodOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.SetPermission(op.name, op.readOnly))
}

type freeOp struct {
	exp int
}

func (op freeOp) Do(t *testing.T, e *env) {
	free, err := e.s.FreeBlocks()
	require.NoError(t, err)
	require.Equal(t, op.exp, free, "free blocks")

	// the incremental count must match the disk
	kinds, err := e.s.Fragments()
	require.NoError(t, err)
	count := 0
	for _, k := range kinds {
		if k.Letter() == 'F' {
			count++
		}
	}
	require.Equal(t, op.exp, count, "free blocks on disk")
}

type fragOp struct {
	exp string
}

func (op fragOp) Do(t *testing.T, e *env) {
	m, err := e.s.FragmentMap()
	require.NoError(t, err)
	require.Equal(t, op.exp, m)
}

type defragOp struct {
	expErr error
}

func (op defragOp) Do(t *testing.T, e *env) {
	checkErr(t, op.expErr, e.s.Defragment())
}

type failOp struct {
	fail func(tinyfs.BlockNum, []byte) bool
}

func (op failOp) Do(t *testing.T, e *env) {
	e.faults.fail = op.fail
}

// remountOp drops the session without writing anything and mounts what is
// on the disk in a fresh one.
type remountOp struct{}

func (op remountOp) Do(t *testing.T, e *env) {
	require.NoError(t, e.s.Unmount())
	s, err := Mount(e.dev)
	require.NoError(t, err)
	s.Now = tick(time.Unix(1489900000, 0))
	e.s = s
	e.fds = map[string]FD{}
}

type lsOp struct {
	exp []DirEntry
}

func (op lsOp) Do(t *testing.T, e *env) {
	entries, err := e.s.Readdir()
	require.NoError(t, err)
	require.Equal(t, op.exp, entries)
}

func runOps(t *testing.T, e *env, ops []op) {
	for _, op := range ops {
		op.Do(t, e)
		t.Logf("ok: %#v", op)
	}
}

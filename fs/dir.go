package fs

import (
	"fmt"
	"time"

	"github.com/keks/tinyfs"
	"github.com/keks/tinyfs/blkfmt"
)

// DirEntry describes one file in a listing.
type DirEntry struct {
	Name         string
	Block        tinyfs.BlockNum
	SizeInBlocks int
	Permission   blkfmt.Permission
}

// FileInfo is the full metadata of an open file.
type FileInfo struct {
	Name         string
	Permission   blkfmt.Permission
	SizeInBlocks int
	Created      time.Time
	Modified     time.Time
	Accessed     time.Time
}

func validName(name string) error {
	if name == "" {
		return tinyfs.ErrEmptyName
	}
	if len(name) > blkfmt.NameSize {
		return tinyfs.ErrNameTooLong
	}
	return nil
}

// eachInode calls fn for every inode block in ascending block order until
// fn returns false.
func (s *Session) eachInode(fn func(tinyfs.BlockNum, *blkfmt.Inode) bool) error {
	return s.eachInodeFrom(0, fn)
}

// eachInodeFrom is eachInode starting at block from.
func (s *Session) eachInodeFrom(from int, fn func(tinyfs.BlockNum, *blkfmt.Inode) bool) error {
	if s.super.FirstInode == tinyfs.NoBlock {
		return nil
	}
	if from < int(s.super.FirstInode) {
		from = int(s.super.FirstInode)
	}

	for i := from; i < s.super.TotalBlocks; i++ {
		n := tinyfs.BlockNum(i)
		kind, err := s.kind(n)
		if err != nil {
			return err
		}
		if kind != blkfmt.KindInode {
			continue
		}

		ino, err := s.readInode(n)
		if err != nil {
			return err
		}
		if !fn(n, ino) {
			return nil
		}
	}
	return nil
}

// lookup scans the inodes for name.
func (s *Session) lookup(name string) (tinyfs.BlockNum, bool, error) {
	var (
		found tinyfs.BlockNum
		ok    bool
	)
	err := s.eachInode(func(n tinyfs.BlockNum, ino *blkfmt.Inode) bool {
		if ino.Name == name {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok, err
}

// refreshFirstInode recomputes the superblock's first inode hint from
// scratch.
func (s *Session) refreshFirstInode() error {
	first := tinyfs.NoBlock
	for i := 1; i < s.super.TotalBlocks; i++ {
		kind, err := s.kind(tinyfs.BlockNum(i))
		if err != nil {
			return err
		}
		if kind == blkfmt.KindInode {
			first = tinyfs.BlockNum(i)
			break
		}
	}

	if first == s.super.FirstInode {
		return nil
	}
	return s.setFirstInode(first)
}

// setFirstInode persists a new first inode hint. The session keeps the old
// hint if the superblock can not be written.
func (s *Session) setFirstInode(n tinyfs.BlockNum) error {
	prev := s.super.FirstInode
	s.super.FirstInode = n
	if err := s.writeSuper(); err != nil {
		s.super.FirstInode = prev
		return err
	}
	return nil
}

// Open returns the handle of the file called name, creating it if it does
// not exist. Opening a file that is already open returns the same handle.
// A new file is empty and writable.
func (s *Session) Open(name string) (FD, error) {
	return s.open(name, true)
}

// OpenExisting is Open without the creation: a missing name fails with
// tinyfs.ErrNotFound and leaves the disk untouched.
func (s *Session) OpenExisting(name string) (FD, error) {
	return s.open(name, false)
}

func (s *Session) open(name string, create bool) (FD, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return 0, fmt.Errorf("opening file `%s`: %w", name, err)
	}
	if err := validName(name); err != nil {
		return 0, fmt.Errorf("opening file `%s`: %w", name, err)
	}

	for i := range s.files {
		if s.files[i].name == name {
			return FD(i), nil
		}
	}

	n, found, err := s.lookup(name)
	if err != nil {
		return 0, fmt.Errorf("opening file `%s`: %w", name, err)
	}
	if found {
		s.files[n] = openFile{name: name}
		return FD(n), nil
	}
	if !create {
		return 0, fmt.Errorf("opening file `%s`: %w", name, tinyfs.ErrNotFound)
	}

	n, err = s.allocate()
	if err != nil {
		return 0, fmt.Errorf("creating file `%s`: %w", name, err)
	}

	now := s.now()
	ino := &blkfmt.Inode{
		Permission: blkfmt.ReadWrite,
		Name:       name,
		Created:    now,
		Modified:   now,
		Accessed:   now,
	}
	if err := s.writeBlock(n, ino); err != nil {
		if rerr := s.release(n); rerr != nil {
			s.logger().Printf("returning block %d: %v", n, rerr)
		}
		return 0, fmt.Errorf("creating file `%s`: %w", name, err)
	}

	if s.super.FirstInode == tinyfs.NoBlock || n < s.super.FirstInode {
		if err := s.setFirstInode(n); err != nil {
			if rerr := s.release(n); rerr != nil {
				s.logger().Printf("returning block %d: %v", n, rerr)
			}
			return 0, fmt.Errorf("creating file `%s`: %w", name, err)
		}
	}

	s.files[n] = openFile{name: name}
	s.logger().Printf("created file %q in block %d", name, n)
	return FD(n), nil
}

// Close removes fd from the open file table.
func (s *Session) Close(fd FD) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	f, err := s.file(fd)
	if err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	*f = openFile{}
	return nil
}

// Rename changes the name of an open file. Another file may already carry
// newName.
func (s *Session) Rename(fd FD, newName string) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	if err := validName(newName); err != nil {
		return fmt.Errorf("renaming file to `%s`: %w", newName, err)
	}
	f, err := s.file(fd)
	if err != nil {
		return fmt.Errorf("renaming file to `%s`: %w", newName, err)
	}

	ino, err := s.readInode(tinyfs.BlockNum(fd))
	if err != nil {
		return fmt.Errorf("renaming `%s` to `%s`: %w", f.name, newName, err)
	}

	now := s.now()
	ino.Name = newName
	ino.Modified = now
	ino.Accessed = now
	if err := s.writeBlock(tinyfs.BlockNum(fd), ino); err != nil {
		return fmt.Errorf("renaming `%s` to `%s`: %w", f.name, newName, err)
	}

	f.name = newName
	return nil
}

// SetPermission makes every file called name read-only or read-write. The
// file does not have to be open.
func (s *Session) SetPermission(name string, readOnly bool) error {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return fmt.Errorf("setting permission of `%s`: %w", name, err)
	}

	perm := blkfmt.ReadWrite
	if readOnly {
		perm = blkfmt.ReadOnly
	}

	var (
		matches []tinyfs.BlockNum
		inodes  []*blkfmt.Inode
	)
	if err := s.eachInode(func(n tinyfs.BlockNum, ino *blkfmt.Inode) bool {
		if ino.Name == name {
			matches = append(matches, n)
			inodes = append(inodes, ino)
		}
		return true
	}); err != nil {
		return fmt.Errorf("setting permission of `%s`: %w", name, err)
	}

	if len(matches) == 0 {
		s.logger().Printf("set permission %s: no file %q", perm, name)
		return fmt.Errorf(
			"setting permission of `%s`: %w",
			name,
			tinyfs.ErrNotFound,
		)
	}

	for i, n := range matches {
		inodes[i].Permission = perm
		if err := s.writeBlock(n, inodes[i]); err != nil {
			return fmt.Errorf("setting permission of `%s`: %w", name, err)
		}
	}
	return nil
}

// MakeReadOnly forbids writing and deleting the file called name.
func (s *Session) MakeReadOnly(name string) error {
	return s.SetPermission(name, true)
}

// MakeReadWrite allows writing and deleting the file called name.
func (s *Session) MakeReadWrite(name string) error {
	return s.SetPermission(name, false)
}

// Walk calls fn for every file in ascending inode block order. The disk
// is read as Walk goes; nothing is cached between calls. The session is
// not locked while fn runs, so fn may call other Session methods. Files
// created or deleted by fn are seen if they lie beyond the current one.
func (s *Session) Walk(fn func(DirEntry) error) error {
	from := 0
	for {
		e, ok, err := s.nextEntry(from)
		if err != nil {
			return fmt.Errorf("listing files: %w", err)
		}
		if !ok {
			return nil
		}
		if err := fn(e); err != nil {
			return err
		}
		from = int(e.Block) + 1
	}
}

// nextEntry returns the first file whose inode is at block from or later.
func (s *Session) nextEntry(from int) (DirEntry, bool, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return DirEntry{}, false, err
	}

	var (
		e  DirEntry
		ok bool
	)
	err := s.eachInodeFrom(from, func(n tinyfs.BlockNum, ino *blkfmt.Inode) bool {
		e = DirEntry{
			Name:         ino.Name,
			Block:        n,
			SizeInBlocks: int(ino.SizeInBlocks),
			Permission:   ino.Permission,
		}
		ok = true
		return false
	})
	return e, ok, err
}

// Readdir lists every file in ascending inode block order.
func (s *Session) Readdir() ([]DirEntry, error) {
	var entries []DirEntry
	err := s.Walk(func(e DirEntry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Stat returns the metadata of an open file.
func (s *Session) Stat(fd FD) (FileInfo, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if err := s.mounted(); err != nil {
		return FileInfo{}, fmt.Errorf("reading file info: %w", err)
	}
	if _, err := s.file(fd); err != nil {
		return FileInfo{}, fmt.Errorf("reading file info: %w", err)
	}

	ino, err := s.readInode(tinyfs.BlockNum(fd))
	if err != nil {
		return FileInfo{}, fmt.Errorf("reading file info: %w", err)
	}

	return FileInfo{
		Name:         ino.Name,
		Permission:   ino.Permission,
		SizeInBlocks: int(ino.SizeInBlocks),
		Created:      ino.Created,
		Modified:     ino.Modified,
		Accessed:     ino.Accessed,
	}, nil
}

// CreationTime returns when the file was created.
func (s *Session) CreationTime(fd FD) (time.Time, error) {
	info, err := s.Stat(fd)
	return info.Created, err
}

// ModifiedTime returns when the file was last written or renamed.
func (s *Session) ModifiedTime(fd FD) (time.Time, error) {
	info, err := s.Stat(fd)
	return info.Modified, err
}

// AccessTime returns when the file was last read, written or renamed.
func (s *Session) AccessTime(fd FD) (time.Time, error) {
	info, err := s.Stat(fd)
	return info.Accessed, err
}

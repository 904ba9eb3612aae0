package tinyfs

import "errors"

// Failure kinds. Every layer wraps these, so callers match with errors.Is.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrFormatFailure     = errors.New("format failure")
	ErrAlreadyMounted    = errors.New("already mounted")
	ErrNotMounted        = errors.New("not mounted")
	ErrInvalidFilesystem = errors.New("invalid filesystem")
	ErrNameTooLong       = errors.New("file name too long")
	ErrEmptyName         = errors.New("empty file name")
	ErrNotOpen           = errors.New("file not open")
	ErrOutOfSpace        = errors.New("out of space")
	ErrReadOnly          = errors.New("file is read-only")
	ErrEndOfFile         = errors.New("end of file")
	ErrCorruptBlock      = errors.New("corrupt block")
	ErrNotFound          = errors.New("file not found")
	ErrNegativeOffset    = errors.New("negative offset")
)

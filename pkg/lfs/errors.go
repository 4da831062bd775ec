// Package lfs ties the metadata-pair log (pkg/mdir), the CTZ skip-list
// (pkg/ctz), the block allocator (pkg/alloc) and the global-state
// protocol (pkg/gstate) together into a mountable filesystem: path
// resolution, directory and file APIs, rename/remove, and the recovery
// pass a mount runs before handing control to the caller (spec §4.6/§4.7).
package lfs

import "errors"

// Sentinel errors, named after spec §6.4's user-visible codes rather
// than carrying the codes themselves — callers that need the original
// negative-number ABI can map these with errors.Is.
var (
	ErrNotExist    = errors.New("lfs: no such file or directory")
	ErrExist       = errors.New("lfs: file or directory already exists")
	ErrNotDir      = errors.New("lfs: not a directory")
	ErrIsDir       = errors.New("lfs: is a directory")
	ErrNotEmpty    = errors.New("lfs: directory not empty")
	ErrBadHandle   = errors.New("lfs: bad file handle")
	ErrFileTooBig  = errors.New("lfs: file too large")
	ErrInvalid     = errors.New("lfs: invalid argument")
	ErrNoAttr      = errors.New("lfs: no such attribute")
	ErrNameTooLong = errors.New("lfs: name too long")
)

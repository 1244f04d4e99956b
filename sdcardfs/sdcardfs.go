// Package sdcardfs implements the filesystem collaborator against a
// real OS directory tree: mount/unmount, case-insensitive
// directory listing, open/close/unlink, and chunked read/write/seek.
// On a real board this would be a FAT driver; on a development host a
// plain directory plays the same role, which is exactly what this
// package gives the orchestrator to run against in tests and the
// `sdupdate simulate` tool.
package sdcardfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

const lockFileName = ".sdupdate-mount.lock"

// Card represents one mounted SD-card substrate. The mount state is
// process-wide on a real device (a single global `fat_fs`/`mp` pair);
// here it is captured explicitly in this struct, owned by whoever calls
// Mount, per the "no process-wide mutable globals in the core" design
// note.
type Card struct {
	mountPoint string
	lockFile   *os.File
}

// Mount opens the mount point, taking an advisory exclusive lock so two
// concurrent update attempts against the same simulated card fail the
// way two conflicting mounts of a real FAT volume would.
func Mount(mountPoint string) (*Card, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to create mount point %s", mountPoint)
	}

	lockPath := filepath.Join(mountPoint, lockFileName)
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to open mount lock %s", lockPath)
	}

	if err := lockExclusive(lf); err != nil {
		lf.Close()
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "mount point %s is already mounted", mountPoint)
	}

	return &Card{mountPoint: mountPoint, lockFile: lf}, nil
}

// Unmount releases the mount lock. Safe to call more than once.
func (c *Card) Unmount() error {
	if c.lockFile == nil {
		return nil
	}
	unlock(c.lockFile)
	err := c.lockFile.Close()
	c.lockFile = nil
	if err != nil {
		return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to close mount lock")
	}
	return nil
}

func (c *Card) path(name string) string {
	return filepath.Join(c.mountPoint, name)
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// ReadDir lists the entries of dir (relative to the mount point).
func (c *Card) ReadDir(dir string) ([]DirEntry, error) {
	entries, err := os.ReadDir(c.path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to read directory %s", dir)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

// FindCaseInsensitive searches entries (as returned by ReadDir) for a
// non-directory entry named name, ignoring case
// (FAT's on-disk casing is unreliable). It returns the entry's actual
// on-disk name.
func FindCaseInsensitive(entries []DirEntry, name string) (string, bool) {
	for _, e := range entries {
		if !e.IsDir && strings.EqualFold(e.Name, name) {
			return e.Name, true
		}
	}
	return "", false
}

// File is an open handle within the card's mount point.
type File struct {
	f    *os.File
	name string
}

// Open opens path (relative to the mount point) with the given OS flags.
func (c *Card) Open(path string, flag int) (*File, error) {
	f, err := os.OpenFile(c.path(path), flag, 0644)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to open %s", path)
	}
	return &File{f: f, name: path}, nil
}

// Close releases the handle. Safe to call more than once.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	if err != nil {
		return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to close %s", f.name)
	}
	return nil
}

// Read satisfies io.Reader.
func (f *File) Read(buf []byte) (int, error) {
	return f.f.Read(buf)
}

// Write satisfies io.Writer.
func (f *File) Write(buf []byte) (int, error) {
	return f.f.Write(buf)
}

// Seek satisfies io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.f.Seek(offset, whence)
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
)

// Unlink removes path (relative to the mount point). Missing files are
// not an error — the caller (e.g. BACKUP's "unconditionally recreate")
// wants an idempotent reset.
func (c *Card) Unlink(path string) error {
	err := os.Remove(c.path(path))
	if err != nil && !os.IsNotExist(err) {
		return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to unlink %s", path)
	}
	return nil
}

// Stat reports whether path exists within the mount point.
func (c *Card) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(c.path(path))
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to stat %s", path)
	}
	return info, nil
}

//go:build !unix

package sdcardfs

import "os"

// Non-unix hosts get no advisory locking; a single-process simulate/test
// run never needs it, and cross-platform mandatory locking is out of
// scope for a development-host stand-in.
func lockExclusive(f *os.File) error { return nil }

func unlock(f *os.File) error { return nil }

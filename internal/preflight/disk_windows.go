//go:build windows

package preflight

import "errors"

var errNoStatfs = errors.New("not supported on windows")

func diskFree(path string) (uint64, error) {
	return 0, errNoStatfs
}

// writableDir cannot be answered cheaply from Windows ACLs; the copy
// itself reports permission errors soon enough.
func writableDir(dir string) bool {
	return true
}

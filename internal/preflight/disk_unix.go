//go:build !windows

package preflight

import "syscall"

// diskFree returns the bytes available to unprivileged users on the
// filesystem containing path.
func diskFree(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// writableDir reports whether the current user can write to dir.
// access(2) checks the real uid, which matches how the backup runs.
func writableDir(dir string) bool {
	return syscall.Access(dir, 0x2) == nil // W_OK
}

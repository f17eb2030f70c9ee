package iiod

import "fmt"

// Errno is a positive POSIX error number reported by iiod as a negative status.
type Errno int

var errnoNames = map[Errno]string{
	1:   "EPERM",
	2:   "ENOENT",
	5:   "EIO",
	6:   "ENXIO",
	11:  "EAGAIN",
	13:  "EACCES",
	16:  "EBUSY",
	19:  "ENODEV",
	22:  "EINVAL",
	32:  "EPIPE",
	38:  "ENOSYS",
	110: "ETIMEDOUT",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return fmt.Sprintf("iiod: %s (%d)", name, int(e))
	}
	return fmt.Sprintf("iiod: errno %d", int(e))
}

// Name returns the symbolic name, or an empty string when unknown.
func (e Errno) Name() string { return errnoNames[e] }

// statusErr converts a negative status into an Errno.
func statusErr(status int) error {
	if status >= 0 {
		return nil
	}
	return Errno(-status)
}

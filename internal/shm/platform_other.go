//go:build !linux

package shm

// Regions need memfd_create plus a readable per-process descriptor table,
// which only Linux provides. Other platforms get compiling stubs so callers
// can surface ErrNotSupported instead of failing the build.

func CreateMemfd(name string, size int64) (int, error) { return -1, ErrNotSupported }

func MapShared(fd int, length int64, writable bool) ([]byte, error) { return nil, ErrNotSupported }

func Unmap(data []byte) error { return ErrNotSupported }

func AdviseHugePages(data []byte) error { return ErrNotSupported }

func FdSize(fd int) (int64, error) { return 0, ErrNotSupported }

func CloseFd(fd int) error { return ErrNotSupported }

func DupFd(fd int) (int, error) { return -1, ErrNotSupported }

func HugePageSize() int64 { return FallbackHugePageSize }

func FindMemfd(pid int, name string) (int, error) { return -1, ErrNotSupported }

func DupProcFd(pid, fd int, writable bool) (int, error) { return -1, ErrNotSupported }

func DupPidfd(pid, fd int) (int, error) { return -1, ErrNotSupported }

//go:build linux

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

// CreateMemfd creates an anonymous shared memory object of exactly size
// bytes. The name never enters a filesystem namespace; it only shows up in
// descriptor-table link targets, which is how other processes locate it.
func CreateMemfd(name string, size int64) (int, error) {
	if len(name) > MaxBackingNameLen {
		return -1, fmt.Errorf("memfd_create %q: name exceeds %d bytes", name, MaxBackingNameLen)
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("memfd_create %q: %w", name, err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("ftruncate: %w", err)
	}
	return fd, nil
}

// MapShared maps length bytes of fd at offset zero into this process.
func MapShared(fd int, length int64, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(fd, 0, int(length), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

// Unmap releases a mapping produced by MapShared.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// AdviseHugePages asks the kernel to back the mapping with transparent huge
// pages. The mapping stays usable when the advice is refused.
func AdviseHugePages(data []byte) error {
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		return fmt.Errorf("madvise(MADV_HUGEPAGE): %w", err)
	}
	return nil
}

// FdSize returns the current size of the object behind fd.
func FdSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return st.Size, nil
}

// CloseFd closes a raw descriptor.
func CloseFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// DupFd duplicates a descriptor this process already owns.
func DupFd(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("fcntl(F_DUPFD_CLOEXEC): %w", err)
	}
	return nfd, nil
}

var (
	hugePageOnce sync.Once
	hugePageSize int64
)

// HugePageSize returns the huge page granularity of this machine, probed
// once and cached. Kernels that report none fall back to
// FallbackHugePageSize.
func HugePageSize() int64 {
	hugePageOnce.Do(func() {
		hugePageSize = FallbackHugePageSize
		vm, err := mem.VirtualMemory()
		if err == nil && vm.HugePageSize > 0 {
			hugePageSize = int64(vm.HugePageSize)
		}
	})
	return hugePageSize
}

// memfdTarget is the link target the kernel renders for a memfd descriptor.
// memfd inodes are unlinked from birth, so procfs always appends the
// " (deleted)" suffix.
func memfdTarget(name string) string {
	return "/memfd:" + name + " (deleted)"
}

// FindMemfd scans the descriptor table of pid for a memfd named name and
// returns the descriptor number it occupies in that process.
//
// Descriptors can churn while the table is read. Callers verify whatever
// they end up duplicating and retry on ErrNotFound.
func FindMemfd(pid int, name string) (int, error) {
	dir := "/proc/" + strconv.Itoa(pid) + "/fd"
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
			return -1, fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
		}
		return -1, fmt.Errorf("read %s: %w", dir, err)
	}
	want := memfdTarget(name)
	for _, ent := range entries {
		fd, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		target, err := os.Readlink(dir + "/" + ent.Name())
		if err != nil {
			// Closed between readdir and readlink.
			continue
		}
		if target == want {
			return fd, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in pid %d", ErrNotFound, name, pid)
}

// DupProcFd reopens descriptor fd of process pid through its descriptor
// table, yielding an independent descriptor in this process that refers to
// the same backing object.
func DupProcFd(pid, fd int, writable bool) (int, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if writable {
		flags = unix.O_RDWR | unix.O_CLOEXEC
	}
	path := "/proc/" + strconv.Itoa(pid) + "/fd/" + strconv.Itoa(fd)
	nfd, err := unix.Open(path, flags, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return -1, fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
		case errors.Is(err, fs.ErrNotExist):
			// The descriptor (or the whole process) went away after the
			// scan; a rescan sorts out which.
			return -1, fmt.Errorf("%w: pid %d fd %d", ErrNotFound, pid, fd)
		}
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return nfd, nil
}

// DupPidfd duplicates descriptor fd of process pid via pidfd_getfd, the
// race-free alternative to reopening through the descriptor table. Needs
// Linux 5.6 and ptrace rights over the target.
func DupPidfd(pid, fd int) (int, error) {
	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return -1, fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
		case errors.Is(err, unix.ENOSYS):
			return -1, fmt.Errorf("pidfd_open: %w", ErrNotSupported)
		}
		return -1, fmt.Errorf("pidfd_open: %w", err)
	}
	defer unix.Close(pidfd)

	nfd, err := unix.PidfdGetfd(pidfd, fd, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return -1, fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
		case errors.Is(err, unix.EBADF):
			return -1, fmt.Errorf("%w: pid %d fd %d", ErrNotFound, pid, fd)
		case errors.Is(err, unix.ENOSYS):
			return -1, fmt.Errorf("pidfd_getfd: %w", ErrNotSupported)
		}
		return -1, fmt.Errorf("pidfd_getfd: %w", err)
	}
	return nfd, nil
}

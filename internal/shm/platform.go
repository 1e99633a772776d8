// Package shm contains the platform mechanics behind shared memory regions:
// anonymous backing object creation, mapping, and the descriptor-table
// introspection used for cross-process discovery.
//
// Everything here works on raw descriptors and byte slices. Region semantics
// (header layout, readiness, versioning) live one level up.
package shm

import "errors"

// MaxBackingNameLen is the longest backing object name the kernel accepts.
// Linux caps memfd names at 249 bytes so that "memfd:" plus the name fits in
// a 255-byte d_name.
const MaxBackingNameLen = 249

// FallbackHugePageSize is assumed when the platform granularity cannot be
// probed. 2 MiB matches x86-64 and the common arm64 configuration.
const FallbackHugePageSize int64 = 2 << 20

var (
	// ErrNotSupported reports a platform without memfd-style anonymous
	// shared memory or a readable descriptor table.
	ErrNotSupported = errors.New("shm: not supported on this platform")

	// ErrNoProcess reports that the target process does not exist or that
	// its descriptor table could not be opened at all.
	ErrNoProcess = errors.New("shm: no such process")

	// ErrNotFound reports a descriptor table that was scanned successfully
	// but held no matching backing object.
	ErrNotFound = errors.New("shm: backing object not found")
)

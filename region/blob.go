/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/srediag/shmem-region/internal/shm"
)

// blobSeq distinguishes blobs within one process. The pid in the identifier
// separates processes sharing the machine-global backing namespace.
var blobSeq atomic.Uint64

const blobCreatorVersion = 1

// NewBlob allocates an anonymous region: same header reservation and
// huge-page rounding as named regions, but the identifier is generated,
// nothing enters the host registry, and the handle comes back already
// ready. Scratch shared memory for callers that pass it along by their own
// means, e.g. Fd over a socket or inheritance across fork.
func NewBlob(size uint64) (*Host, error) {
	if !is64Bit() {
		return nil, fmt.Errorf("%w: requires a 64-bit platform", ErrNotSupported)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero blob size", ErrInvalidArgument)
	}
	if size > math.MaxInt64-uint64(headerReserve)-uint64(shm.HugePageSize()) {
		return nil, fmt.Errorf("%w: blob size %d too large", ErrInvalidArgument, size)
	}

	identifier := fmt.Sprintf("%sblob.%d.%d", DefaultPrefix, os.Getpid(), blobSeq.Add(1))
	absolute := roundUp(int64(headerReserve)+int64(size), shm.HugePageSize())
	fd, err := shm.CreateMemfd(identifier, absolute)
	if err != nil {
		return nil, fmt.Errorf("create blob: %w", translateShmErr(err))
	}
	mem, err := shm.MapShared(fd, absolute, true)
	if err != nil {
		_ = shm.CloseFd(fd)
		return nil, fmt.Errorf("map blob: %w", err)
	}
	if err := shm.AdviseHugePages(mem); err != nil {
		internalLogger.warnf("blob %q: %v", identifier, err)
	}

	h := &Host{region{
		name:           identifier,
		identifier:     identifier,
		fd:             fd,
		mem:            mem,
		hdr:            headerAt(mem),
		creatorVersion: blobCreatorVersion,
		dataSize:       size,
		mapSize:        uint64(absolute),
		hostPID:        int64(os.Getpid()),
	}}
	h.hdr.stamp(blobCreatorVersion, size, uint64(absolute), h.hostPID, fnv1a64(identifier))
	h.hdr.markReady()

	blobsTotal.Inc()
	mappedBytes.Add(float64(absolute))
	internalLogger.debugf("blob %s", h.Describe())
	return h, nil
}

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
	"sync/atomic"
	"unsafe"
)

// headerReserve is the span set aside at the front of every mapping. It is
// padded far past the header struct so the payload starts on its own page
// and the layout can grow without moving anyone's data.
const headerReserve = 4096

// regionMagic is "SHMREGN1" read as a little-endian word.
const regionMagic uint64 = 0x314E4745524D4853

// headerLayoutVersion tracks the header layout itself, independent of the
// creator-supplied region version.
const headerLayoutVersion uint32 = 1

const (
	stateInitializing uint32 = 0
	stateReady        uint32 = 1
)

// header overlays the first bytes of a mapping. Both sides touch it through
// 64-bit-aligned atomics only; the host stores every field before flipping
// state to stateReady, and clients read nothing else until they observe that
// flip, so the atomic state word orders all the plain-looking fields too.
type header struct {
	magic          uint64
	layoutVersion  uint32
	state          uint32
	creatorVersion int64
	dataSize       uint64
	mapSize        uint64
	hostPID        int64
	nameDigest     uint64
}

// The reservation must always be able to hold the struct.
const _ = uint(headerReserve - unsafe.Sizeof(header{}))

// headerAt overlays a header on the start of a mapping. The mapping comes
// straight from mmap, so the base address is page aligned and every field
// lands on its natural boundary.
func headerAt(mem []byte) *header {
	return (*header)(unsafe.Pointer(&mem[0]))
}

// stamp writes every descriptive field of a freshly created region. The
// state word stays stateInitializing; only MarkReady flips it.
func (h *header) stamp(creatorVersion int64, dataSize, mapSize uint64, hostPID int64, nameDigest uint64) {
	atomic.StoreUint32(&h.layoutVersion, headerLayoutVersion)
	atomic.StoreInt64(&h.creatorVersion, creatorVersion)
	atomic.StoreUint64(&h.dataSize, dataSize)
	atomic.StoreUint64(&h.mapSize, mapSize)
	atomic.StoreInt64(&h.hostPID, hostPID)
	atomic.StoreUint64(&h.nameDigest, nameDigest)
	atomic.StoreUint64(&h.magic, regionMagic)
}

func (h *header) ready() bool {
	return atomic.LoadUint32(&h.state) == stateReady
}

func (h *header) markReady() {
	atomic.StoreUint32(&h.state, stateReady)
}

// validate checks the structural fields of a mapped header against the
// identifier digest the attacher derived and the measured backing size.
// Only meaningful after ready() has been observed.
func (h *header) validate(wantDigest uint64, backingSize int64) error {
	if got := atomic.LoadUint64(&h.magic); got != regionMagic {
		return fmt.Errorf("%w: magic %#x", ErrBadRegion, got)
	}
	if got := atomic.LoadUint32(&h.layoutVersion); got != headerLayoutVersion {
		return fmt.Errorf("%w: header layout %d, this build speaks %d", ErrBadRegion, got, headerLayoutVersion)
	}
	if got := atomic.LoadUint64(&h.nameDigest); got != wantDigest {
		return fmt.Errorf("%w: name digest %#x, want %#x", ErrBadRegion, got, wantDigest)
	}
	mapSize := atomic.LoadUint64(&h.mapSize)
	if mapSize != uint64(backingSize) {
		return fmt.Errorf("%w: header says %d mapped bytes, backing object holds %d", ErrBadRegion, mapSize, backingSize)
	}
	if dataSize := atomic.LoadUint64(&h.dataSize); dataSize > mapSize-headerReserve {
		return fmt.Errorf("%w: data size %d exceeds capacity %d", ErrBadRegion, dataSize, mapSize-headerReserve)
	}
	if atomic.LoadInt64(&h.hostPID) <= 0 {
		return fmt.Errorf("%w: host pid missing", ErrBadRegion)
	}
	return nil
}

// checkVersion enforces strict equality between the creator's version and
// the version the attaching side expects.
func (h *header) checkVersion(want int64) error {
	if got := atomic.LoadInt64(&h.creatorVersion); got != want {
		return fmt.Errorf("%w: region carries version %d, attach asked for %d", ErrVersionMismatch, got, want)
	}
	return nil
}

// OverheadBytes returns how many bytes of every region's mapping go to the
// header reservation rather than payload.
func OverheadBytes() uint64 {
	return headerReserve
}

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
	"errors"
	"fmt"

	"github.com/srediag/shmem-region/internal/shm"
)

var (
	// ErrInvalidArgument reports a rejected configuration value, such as a
	// zero size, an empty name, or an identifier the kernel cannot hold.
	ErrInvalidArgument = errors.New("region: invalid argument")

	// ErrNameExists reports a NewHost call for an identifier this process
	// already hosts. Names are never silently reused.
	ErrNameExists = errors.New("region: name already hosted")

	// ErrNoSuchProcess reports a target pid that does not exist. This is
	// distinct from ErrRegionNotFound so callers can stop retrying at once.
	ErrNoSuchProcess = errors.New("region: no such process")

	// ErrRegionNotFound reports that the target's descriptor table was
	// scanned for the whole discovery window without a matching region.
	ErrRegionNotFound = errors.New("region: region not found")

	// ErrReadyTimeout reports a region that was found and mapped but whose
	// host never marked it ready within the readiness window.
	ErrReadyTimeout = errors.New("region: region never became ready")

	// ErrVersionMismatch reports a region whose creator version differs
	// from the version the attaching side asked for.
	ErrVersionMismatch = errors.New("region: creator version mismatch")

	// ErrBadRegion reports a mapped object that fails structural
	// validation: wrong magic, wrong layout, wrong name digest, or sizes
	// that disagree with the backing object.
	ErrBadRegion = errors.New("region: malformed region")

	// ErrClosed reports an operation on a handle after Close.
	ErrClosed = errors.New("region: closed")

	// ErrNotSupported reports a platform without the required shared
	// memory and process-introspection primitives.
	ErrNotSupported = errors.New("region: not supported on this platform")
)

// translateShmErr rewraps platform sentinels into this package's taxonomy so
// callers only ever match against region errors.
func translateShmErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shm.ErrNoProcess):
		return fmt.Errorf("%w: %v", ErrNoSuchProcess, err)
	case errors.Is(err, shm.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrRegionNotFound, err)
	case errors.Is(err, shm.ErrNotSupported):
		return fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	return err
}

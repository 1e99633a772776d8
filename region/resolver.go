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
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srediag/shmem-region/internal/shm"
)

// Resolver locates the backing object of a region inside another process
// and yields an independent descriptor for it in this one. Implementations
// make a single attempt; Attach owns the retry window around them.
type Resolver interface {
	Resolve(ctx context.Context, pid int, identifier string, writable bool) (fd int, err error)
}

// ProcResolver discovers regions by walking the target's descriptor table
// and reopening the matching entry through it. It needs the access the
// kernel's ptrace rules grant: same user or CAP_SYS_PTRACE.
//
// Reopening by descriptor number can race the target closing and reusing
// that number, which is why attach validates the mapped header before
// trusting anything.
type ProcResolver struct{}

func (ProcResolver) Resolve(ctx context.Context, pid int, identifier string, writable bool) (int, error) {
	if err := checkPidAlive(pid); err != nil {
		return -1, err
	}
	fdno, err := shm.FindMemfd(pid, identifier)
	if err != nil {
		return -1, translateShmErr(err)
	}
	discoveryLogger.tracef("identifier %q sits at fd %d of pid %d", identifier, fdno, pid)
	nfd, err := shm.DupProcFd(pid, fdno, writable)
	if err != nil {
		return -1, translateShmErr(err)
	}
	return nfd, nil
}

// PidfdResolver discovers like ProcResolver but duplicates with
// pidfd_getfd(2), which transfers the open file itself instead of reopening
// a path, so descriptor-number reuse inside the target cannot hand back the
// wrong object. Needs Linux 5.6 and ptrace rights over the target.
//
// The duplicate carries the donor's read-write mode; ReadOnly still applies
// at map time.
type PidfdResolver struct{}

func (PidfdResolver) Resolve(ctx context.Context, pid int, identifier string, writable bool) (int, error) {
	if err := checkPidAlive(pid); err != nil {
		return -1, err
	}
	fdno, err := shm.FindMemfd(pid, identifier)
	if err != nil {
		return -1, translateShmErr(err)
	}
	discoveryLogger.tracef("identifier %q sits at fd %d of pid %d", identifier, fdno, pid)
	nfd, err := shm.DupPidfd(pid, fdno)
	if err != nil {
		return -1, translateShmErr(err)
	}
	return nfd, nil
}

// FileResolver skips discovery for a descriptor that arrived out of band,
// e.g. over a unix socket or inherited across exec. Resolve duplicates the
// held file so the region handle owns its descriptor's lifetime; pid and
// identifier still drive header validation afterwards.
type FileResolver struct {
	File *os.File
}

func (r FileResolver) Resolve(ctx context.Context, pid int, identifier string, writable bool) (int, error) {
	if r.File == nil {
		return -1, fmt.Errorf("%w: FileResolver without a file", ErrInvalidArgument)
	}
	nfd, err := shm.DupFd(int(r.File.Fd()))
	if err != nil {
		return -1, translateShmErr(err)
	}
	return nfd, nil
}

// checkPidAlive fails fast on dead targets so a discovery window is never
// spent rescanning a pid that cannot come back.
func checkPidAlive(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", ErrInvalidArgument, pid)
	}
	alive, err := process.PidExists(int32(pid))
	if err == nil && !alive {
		return fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
	}
	return nil
}

// resolveWithRetry drives the configured resolver until it yields a
// descriptor, a permanent error surfaces, or the discovery window closes.
// A clean miss keeps retrying: attach legitimately races region creation.
func resolveWithRetry(ctx context.Context, cfg Config, identifier string, pid int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DiscoverTimeout)
	defer cancel()

	attempts := uint64(cfg.DiscoverTimeout / cfg.DiscoverPollInterval)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.DiscoverPollInterval), attempts), ctx)

	fd := -1
	op := func() error {
		nfd, err := cfg.Resolver.Resolve(ctx, pid, identifier, !cfg.ReadOnly)
		if err != nil {
			if errors.Is(err, ErrRegionNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		fd = nfd
		return nil
	}
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		return fd, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return -1, fmt.Errorf("%w: %q in pid %d, discovery window closed", ErrRegionNotFound, identifier, pid)
	}
	return -1, err
}

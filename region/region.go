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
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shmem-region/internal/shm"
)

// Role identifies which side of a region a handle sits on.
type Role uint8

const (
	RoleHost Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	}
	return "unknown"
}

// region is the state shared by both handle kinds. Each handle owns exactly
// one descriptor and one mapping; nothing is shared between handles, so the
// host closing never invalidates a client.
type region struct {
	name       string
	identifier string
	fd         int
	mem        []byte
	hdr        *header

	// Fixed once the handle exists: stamped by the host, read back out of
	// the validated header by clients.
	creatorVersion int64
	dataSize       uint64
	mapSize        uint64
	hostPID        int64

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Host owns a region it created: the writing side, and the only one that
// can flip readiness.
type Host struct {
	region
}

// Client is an attached view of a region some other process hosts.
type Client struct {
	region
}

// FootprintGranularity returns the allocation step region footprints are
// rounded to, normally the machine's huge page size.
func FootprintGranularity() uint64 {
	return uint64(shm.HugePageSize())
}

// NewHost creates a region of cfg.Size payload bytes under cfg.Name, maps
// it, and registers the name in this process. The region stays invisible to
// version checks and content reads until MarkReady; attachers block on the
// readiness gate, not on NewHost returning.
func NewHost(cfg Config) (*Host, error) {
	cfg = cfg.withDefaults()
	identifier, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateHostSize(); err != nil {
		return nil, err
	}
	if err := reserveIdentifier(identifier); err != nil {
		return nil, err
	}

	absolute := roundUp(int64(headerReserve)+int64(cfg.Size), shm.HugePageSize())
	fd, err := shm.CreateMemfd(identifier, absolute)
	if err != nil {
		releaseIdentifier(identifier)
		return nil, fmt.Errorf("create %q: %w", identifier, translateShmErr(err))
	}
	mem, err := shm.MapShared(fd, absolute, true)
	if err != nil {
		_ = shm.CloseFd(fd)
		releaseIdentifier(identifier)
		return nil, fmt.Errorf("map %q: %w", identifier, err)
	}
	if err := shm.AdviseHugePages(mem); err != nil {
		// Base pages still work, just with more TLB pressure.
		internalLogger.warnf("region %q: %v", identifier, err)
	}

	h := &Host{region{
		name:           cfg.Name,
		identifier:     identifier,
		fd:             fd,
		mem:            mem,
		hdr:            headerAt(mem),
		creatorVersion: cfg.Version,
		dataSize:       cfg.Size,
		mapSize:        uint64(absolute),
		hostPID:        int64(os.Getpid()),
	}}
	h.hdr.stamp(h.creatorVersion, h.dataSize, h.mapSize, h.hostPID, fnv1a64(identifier))

	publishHost(identifier, h)
	hostsTotal.Inc()
	mappedBytes.Add(float64(absolute))
	newInstruments(cfg).countHost(cfg.Name)
	internalLogger.infof("hosting %s", h.Describe())
	return h, nil
}

// MarkReady publishes the region to attachers. Everything written through
// Bytes before this call is visible to any client that observes readiness.
func (h *Host) MarkReady() error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.hdr.markReady()
	internalLogger.debugf("region %q ready", h.identifier)
	return nil
}

// Attach finds the region called cfg.Name inside process pid, maps it,
// waits out the readiness gate, and verifies identity and version. The
// returned handle owns its own descriptor and mapping, so the host keeping
// or dropping its copy no longer matters.
func Attach(ctx context.Context, cfg Config, pid int) (c *Client, err error) {
	cfg = cfg.withDefaults()
	identifier, verr := cfg.validate()
	if verr != nil {
		return nil, verr
	}

	ins := newInstruments(cfg)
	if ins.tracer != nil {
		var span trace.Span
		ctx, span = ins.tracer.Start(ctx, "region.attach", trace.WithAttributes(
			attribute.String("region.name", cfg.Name),
			attribute.Int("region.pid", pid)))
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
	}

	c, err = attach(ctx, cfg, identifier, pid)
	outcome := attachOutcome(err)
	attachesTotal.WithLabelValues(outcome).Inc()
	ins.countAttach(ctx, cfg.Name, outcome)
	return c, err
}

func attach(ctx context.Context, cfg Config, identifier string, pid int) (*Client, error) {
	fd, err := resolveWithRetry(ctx, cfg, identifier, pid)
	if err != nil {
		return nil, err
	}

	backingSize, err := shm.FdSize(fd)
	if err != nil {
		_ = shm.CloseFd(fd)
		return nil, fmt.Errorf("size %q: %w", identifier, err)
	}
	if backingSize < headerReserve {
		_ = shm.CloseFd(fd)
		return nil, fmt.Errorf("%w: backing object holds %d bytes, smaller than the header", ErrBadRegion, backingSize)
	}

	mem, err := shm.MapShared(fd, backingSize, !cfg.ReadOnly)
	if err != nil {
		_ = shm.CloseFd(fd)
		return nil, fmt.Errorf("map %q: %w", identifier, err)
	}
	unwind := func() {
		_ = shm.Unmap(mem)
		_ = shm.CloseFd(fd)
	}

	// Header contents are only trustworthy once the host's readiness
	// store has been observed, so the gate comes before any validation.
	hdr := headerAt(mem)
	if err := awaitReady(ctx, hdr, cfg, pid); err != nil {
		unwind()
		return nil, err
	}
	if err := hdr.validate(fnv1a64(identifier), backingSize); err != nil {
		unwind()
		return nil, err
	}
	if err := hdr.checkVersion(cfg.Version); err != nil {
		unwind()
		return nil, err
	}

	c := &Client{region{
		name:           cfg.Name,
		identifier:     identifier,
		fd:             fd,
		mem:            mem,
		hdr:            hdr,
		creatorVersion: atomic.LoadInt64(&hdr.creatorVersion),
		dataSize:       atomic.LoadUint64(&hdr.dataSize),
		mapSize:        atomic.LoadUint64(&hdr.mapSize),
		hostPID:        atomic.LoadInt64(&hdr.hostPID),
	}}
	mappedBytes.Add(float64(backingSize))
	discoveryLogger.debugf("attached %s", c.Describe())
	return c, nil
}

// Bytes returns the payload span of the mapping, past the header
// reservation. Slices handed out before Close must not be touched after.
func (r *region) Bytes() []byte {
	if r.closed.Load() {
		return nil
	}
	return r.mem[headerReserve : headerReserve+r.dataSize]
}

// Size returns the payload capacity in bytes.
func (r *region) Size() uint64 {
	return r.dataSize
}

// AbsoluteSize returns the full mapping footprint: header reservation plus
// payload plus granularity rounding.
func (r *region) AbsoluteSize() uint64 {
	return r.mapSize
}

// Name returns the public region name.
func (r *region) Name() string {
	return r.name
}

// Identifier returns the derived backing object identifier.
func (r *region) Identifier() string {
	return r.identifier
}

// CreatorVersion returns the version the host stamped into the region.
func (r *region) CreatorVersion() int64 {
	return r.creatorVersion
}

// HostPID returns the pid of the creating process.
func (r *region) HostPID() int {
	return int(r.hostPID)
}

// Ready reports whether the readiness gate has been flipped.
func (r *region) Ready() bool {
	if r.closed.Load() {
		return false
	}
	return r.hdr.ready()
}

// Fd exposes the backing descriptor, e.g. to ship over a unix socket for a
// FileResolver attach on the far side. The handle still owns it; callers
// must not close it.
func (r *region) Fd() int {
	if r.closed.Load() {
		return -1
	}
	return r.fd
}

// Describe returns a one-line diagnostic snapshot for logs and dumps.
func (r *region) Describe() string {
	if r.closed.Load() {
		return fmt.Sprintf("region:%q closed", r.name)
	}
	return r.describe()
}

// closeWith tears down the mapping and descriptor exactly once, folding the
// first failure into the stored result and running extra inside the same
// once.
func (r *region) closeWith(extra func()) error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if err := shm.Unmap(r.mem); err != nil {
			r.closeErr = err
		}
		if err := shm.CloseFd(r.fd); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
		r.mem = nil
		mappedBytes.Sub(float64(r.mapSize))
		if extra != nil {
			extra()
		}
	})
	return r.closeErr
}

// Close unmaps the region, closes its descriptor, and frees the name for
// reuse in this process. Clients that already attached keep their mappings;
// the kernel only reclaims the memory when the last reference anywhere is
// gone. Idempotent.
func (h *Host) Close() error {
	return h.closeWith(func() {
		releaseIdentifier(h.identifier)
		internalLogger.infof("closed hosted region %q", h.identifier)
	})
}

// Close unmaps the region and closes this handle's descriptor. Idempotent.
func (c *Client) Close() error {
	return c.closeWith(func() {
		internalLogger.debugf("detached region %q", c.identifier)
	})
}

// Role reports RoleHost.
func (h *Host) Role() Role { return RoleHost }

// Role reports RoleClient.
func (c *Client) Role() Role { return RoleClient }

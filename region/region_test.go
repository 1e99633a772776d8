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

//go:build linux

package region

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shmem-region/internal/shm"
)

// fastCfg keeps test attaches snappy without loosening the semantics.
func fastCfg(name string, version int64) Config {
	return Config{
		Name:                 name,
		Version:              version,
		ReadyPollInterval:    time.Millisecond,
		ReadyTimeout:         2 * time.Second,
		DiscoverPollInterval: 2 * time.Millisecond,
		DiscoverTimeout:      2 * time.Second,
	}
}

func hostReady(t *testing.T, name string, size uint64, version int64) *Host {
	t.Helper()
	h, err := NewHost(Config{Name: name, Size: size, Version: version})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.MarkReady())
	return h
}

func TestHostAttachRoundTrip(t *testing.T) {
	const payload = "scheduler snapshot v1"
	h, err := NewHost(Config{Name: "t-roundtrip", Size: 64 << 10, Version: 7})
	require.NoError(t, err)
	defer h.Close()

	copy(h.Bytes(), payload)
	require.NoError(t, h.MarkReady())

	c, err := Attach(context.Background(), fastCfg("t-roundtrip", 7), os.Getpid())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, payload, string(c.Bytes()[:len(payload)]))
	assert.Equal(t, h.Size(), c.Size())
	assert.Equal(t, h.AbsoluteSize(), c.AbsoluteSize())
	assert.Equal(t, int64(7), c.CreatorVersion())
	assert.Equal(t, os.Getpid(), c.HostPID())
	assert.Equal(t, h.Identifier(), c.Identifier())
	assert.True(t, c.Ready())
	assert.Equal(t, RoleHost, h.Role())
	assert.Equal(t, RoleClient, c.Role())
	// Each handle owns its own descriptor.
	assert.NotEqual(t, h.Fd(), c.Fd())
	assert.Greater(t, c.Fd(), 0)
}

func TestSizingInvariants(t *testing.T) {
	gran := FootprintGranularity()
	require.NotZero(t, gran)

	h, err := NewHost(Config{Name: "t-sizing", Size: 10, Version: 1})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, uint64(10), h.Size())
	assert.Equal(t, 10, len(h.Bytes()))
	assert.GreaterOrEqual(t, h.AbsoluteSize(), OverheadBytes()+h.Size())
	assert.Zero(t, h.AbsoluteSize()%gran)
}

func TestVersionStrictEquality(t *testing.T) {
	hostReady(t, "t-version", 4096, 7)

	_, err := Attach(context.Background(), fastCfg("t-version", 8), os.Getpid())
	require.ErrorIs(t, err, ErrVersionMismatch)

	_, err = Attach(context.Background(), fastCfg("t-version", 6), os.Getpid())
	require.ErrorIs(t, err, ErrVersionMismatch)

	c, err := Attach(context.Background(), fastCfg("t-version", 7), os.Getpid())
	require.NoError(t, err)
	_ = c.Close()
}

func TestAttachWaitsForReady(t *testing.T) {
	h, err := NewHost(Config{Name: "t-gate", Size: 4096, Version: 3})
	require.NoError(t, err)
	defer h.Close()

	cfg := fastCfg("t-gate", 3)
	cfg.ReadyTimeout = 60 * time.Millisecond
	_, err = Attach(context.Background(), cfg, os.Getpid())
	require.ErrorIs(t, err, ErrReadyTimeout)

	// A late MarkReady releases a waiting attach.
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = h.MarkReady()
	}()
	cfg.ReadyTimeout = 5 * time.Second
	c, err := Attach(context.Background(), cfg, os.Getpid())
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Ready())
}

func TestWriteVisibilityBothWays(t *testing.T) {
	h := hostReady(t, "t-visibility", 16<<10, 2)

	h.Bytes()[0] = 0xAB
	c, err := Attach(context.Background(), fastCfg("t-visibility", 2), os.Getpid())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, byte(0xAB), c.Bytes()[0])

	c.Bytes()[1] = 0xCD
	assert.Equal(t, byte(0xCD), h.Bytes()[1])

	pattern := []byte("0123456789abcdef")
	copy(h.Bytes()[100:], pattern)
	assert.Equal(t, pattern, c.Bytes()[100:100+len(pattern)])
}

func TestReadOnlyAttach(t *testing.T) {
	h := hostReady(t, "t-readonly", 4096, 2)
	copy(h.Bytes(), "immutable view")

	cfg := fastCfg("t-readonly", 2)
	cfg.ReadOnly = true
	c, err := Attach(context.Background(), cfg, os.Getpid())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "immutable view", string(c.Bytes()[:14]))
}

func TestHostCloseClientSurvives(t *testing.T) {
	h, err := NewHost(Config{Name: "t-survivor", Size: 4096, Version: 1})
	require.NoError(t, err)
	copy(h.Bytes(), "survivor")
	require.NoError(t, h.MarkReady())

	c, err := Attach(context.Background(), fastCfg("t-survivor", 1), os.Getpid())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, h.Close())

	// The client's mapping and descriptor are its own.
	assert.Equal(t, "survivor", string(c.Bytes()[:8]))
	assert.True(t, c.Ready())

	// The name is free again once the host is gone.
	h2, err := NewHost(Config{Name: "t-survivor", Size: 4096, Version: 1})
	require.NoError(t, err)
	require.NoError(t, h2.Close())
}

func TestAttachNoSuchProcess(t *testing.T) {
	// Beyond pid_max, so it can never exist.
	cfg := fastCfg("t-nobody", 1)
	_, err := Attach(context.Background(), cfg, 1<<30)
	require.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestAttachNameNeverHosted(t *testing.T) {
	cfg := fastCfg("t-unhosted", 1)
	cfg.DiscoverTimeout = 200 * time.Millisecond
	start := time.Now()
	_, err := Attach(context.Background(), cfg, os.Getpid())
	require.ErrorIs(t, err, ErrRegionNotFound)
	// The whole window was spent retrying the scan.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestInvalidArguments(t *testing.T) {
	_, err := NewHost(Config{Name: "", Size: 4096, Version: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewHost(Config{Name: "t-args", Size: 0, Version: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewHost(Config{Name: "t-args", Size: 4096, Version: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewHost(Config{Name: strings.Repeat("n", 300), Size: 4096, Version: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Attach(context.Background(), fastCfg("t-args", -1), os.Getpid())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Attach(context.Background(), fastCfg("t-args", 1), -5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCloseIdempotent(t *testing.T) {
	h := hostReady(t, "t-close", 4096, 1)

	c, err := Attach(context.Background(), fastCfg("t-close", 1), os.Getpid())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Nil(t, c.Bytes())
	assert.Equal(t, -1, c.Fd())
	assert.False(t, c.Ready())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.MarkReady(), ErrClosed)
	assert.Contains(t, h.Describe(), "closed")
}

func TestTelemetryScenario(t *testing.T) {
	h, err := NewHost(Config{Name: "telemetry", Size: 8192, Version: 1})
	require.NoError(t, err)
	defer h.Close()

	pattern := make([]byte, 100)
	for i := range pattern {
		pattern[i] = byte(i * 3)
	}
	copy(h.Bytes(), pattern)
	require.NoError(t, h.MarkReady())

	c, err := Attach(context.Background(), fastCfg("telemetry", 1), os.Getpid())
	require.NoError(t, err)
	defer c.Close()
	assert.EqualValues(t, 8192, c.Size())
	assert.Equal(t, pattern, c.Bytes()[:100])

	_, err = Attach(context.Background(), fastCfg("telemetry", 2), os.Getpid())
	require.ErrorIs(t, err, ErrVersionMismatch)

	// A dead target fails promptly, not after the discovery window.
	start := time.Now()
	_, err = Attach(context.Background(), fastCfg("telemetry", 1), 1<<30)
	require.ErrorIs(t, err, ErrNoSuchProcess)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAttachRejectsForeignObject(t *testing.T) {
	// An object with the right identifier and a flipped gate, but never
	// stamped: attach must refuse it after the gate, not trust it.
	id := Scheme{}.Identifier("t-foreign")
	absolute := roundUp(int64(headerReserve)+4096, shm.HugePageSize())
	fd, err := shm.CreateMemfd(id, absolute)
	require.NoError(t, err)
	defer func() { _ = shm.CloseFd(fd) }()
	mem, err := shm.MapShared(fd, absolute, true)
	require.NoError(t, err)
	defer func() { _ = shm.Unmap(mem) }()
	headerAt(mem).markReady()

	_, err = Attach(context.Background(), fastCfg("t-foreign", 1), os.Getpid())
	require.ErrorIs(t, err, ErrBadRegion)
}

func TestNameCollision(t *testing.T) {
	h1, err := NewHost(Config{Name: "t-collide", Size: 4096, Version: 1})
	require.NoError(t, err)
	defer h1.Close()

	_, err = NewHost(Config{Name: "t-collide", Size: 4096, Version: 1})
	require.ErrorIs(t, err, ErrNameExists)

	// A different generation is a different identifier.
	h2, err := NewHost(Config{Name: "t-collide", Size: 4096, Version: 1, Scheme: Scheme{Generation: 2}})
	require.NoError(t, err)
	defer h2.Close()

	ids := HostedIdentifiers()
	assert.Contains(t, ids, h1.Identifier())
	assert.Contains(t, ids, h2.Identifier())

	got, ok := LookupHost(h1.Identifier())
	require.True(t, ok)
	assert.Same(t, h1, got)
}

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
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Polling defaults. Readiness flips within microseconds once the host gets
// around to it, so that gate spins tightly; discovery rescans a whole
// descriptor table per probe and backs off harder.
const (
	DefaultReadyPollInterval = 200 * time.Microsecond
	DefaultReadyTimeout      = 5 * time.Second

	DefaultDiscoverPollInterval = 5 * time.Millisecond
	DefaultDiscoverTimeout      = 2 * time.Second
)

// Config carries everything NewHost and Attach need. The zero values of the
// optional fields select the defaults above, the default Scheme, and the
// descriptor-table resolver.
type Config struct {
	// Name is the public region name both sides agree on out of band.
	Name string

	// Size is the payload capacity in bytes a host asks for. The backing
	// object is larger: OverheadBytes of header plus rounding up to the
	// huge page granularity. Attach ignores Size and learns the real
	// capacity from the region itself.
	Size uint64

	// Version is the caller-defined compatibility number, compared with
	// strict equality on attach. Must be positive; zero never matches.
	Version int64

	// Scheme maps Name onto the backing object identifier. Host and
	// client must agree on it.
	Scheme Scheme

	// Resolver locates and duplicates the backing descriptor during
	// Attach. Nil means ProcResolver.
	Resolver Resolver

	// ReadOnly makes Attach map the region without write access. Hosts
	// always map writable.
	ReadOnly bool

	// ReadyPollInterval and ReadyTimeout bound the wait for the host's
	// MarkReady during Attach.
	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration

	// DiscoverPollInterval and DiscoverTimeout bound the descriptor-table
	// rescans during Attach. Discovery can race region creation, so a
	// clean miss is retried until the window closes.
	DiscoverPollInterval time.Duration
	DiscoverTimeout      time.Duration

	// Meter and Tracer optionally instrument hosts and attaches through
	// OpenTelemetry. Nil disables either one.
	Meter  metric.Meter
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.Resolver == nil {
		c.Resolver = ProcResolver{}
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = DefaultReadyPollInterval
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.DiscoverPollInterval <= 0 {
		c.DiscoverPollInterval = DefaultDiscoverPollInterval
	}
	if c.DiscoverTimeout <= 0 {
		c.DiscoverTimeout = DefaultDiscoverTimeout
	}
	return c
}

// validate checks the fields shared by hosts and attachers and returns the
// derived backing identifier.
func (c Config) validate() (string, error) {
	if !is64Bit() {
		return "", fmt.Errorf("%w: requires a 64-bit platform", ErrNotSupported)
	}
	id, err := c.Scheme.identifierFor(c.Name)
	if err != nil {
		return "", err
	}
	if c.Version <= 0 {
		return "", fmt.Errorf("%w: version must be positive, got %d", ErrInvalidArgument, c.Version)
	}
	return id, nil
}

// validateHostSize rejects payload sizes that cannot be backed. Offsets and
// file sizes run through int64, so the rounded absolute size must fit there.
func (c Config) validateHostSize() error {
	if c.Size == 0 {
		return fmt.Errorf("%w: zero region size", ErrInvalidArgument)
	}
	if c.Size > math.MaxInt64-uint64(headerReserve)-uint64(FootprintGranularity()) {
		return fmt.Errorf("%w: region size %d too large", ErrInvalidArgument, c.Size)
	}
	return nil
}

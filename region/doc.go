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

// Package region implements named, huge-page-backed shared memory regions
// that unrelated processes can find and map without a filesystem rendezvous.
//
// A host process creates a region under a well-known name and a caller-chosen
// version, fills in its contents, and flips the readiness gate:
//
//	host, err := region.NewHost(region.Config{Name: "telemetry", Size: 1 << 20, Version: 7})
//	// ...
//	copy(host.Bytes(), payload)
//	host.MarkReady()
//
// A client in another process attaches knowing only the host's pid, the name,
// and the version it expects. Discovery walks the host's open-descriptor
// table, duplicates the backing descriptor, maps it, waits for readiness, and
// then verifies that the region really is the one asked for:
//
//	client, err := region.Attach(ctx, region.Config{Name: "telemetry", Version: 7}, hostPID)
//	// ...
//	data := client.Bytes()
//
// The backing object is an anonymous memfd, so a region disappears when the
// last descriptor and mapping are gone; nothing is ever left behind in a
// filesystem. Version comparison is strict equality, and a mismatch fails the
// attach. For scratch memory that needs none of the naming or discovery
// machinery, NewBlob hands out an anonymous mapped segment directly.
//
// Example usage:
//
//	cfg := region.Config{
//	  Name:    "telemetry",
//	  Size:    1 << 20,
//	  Version: 7,
//	  Meter:   myMeter,
//	  Tracer:  myTracer,
//	}
//	host, err := region.NewHost(cfg)
//	// ...
//
// Platform mechanics (memfd, mapping, descriptor-table scans) live in
// internal/shm; this package only works on Linux.
package region

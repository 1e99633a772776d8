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
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// hosted tracks every region this process currently hosts, keyed by backing
// identifier. A second NewHost for a live identifier is refused outright;
// the kernel would happily create another memfd with the same name and
// strand attachers on whichever copy their scan hits first.
var hosted = cmap.New[*Host]()

// reserveIdentifier claims id ahead of construction so two concurrent
// NewHost calls cannot both build a region for it. The winner publishes the
// finished handle with publishHost; a loser of construction releases.
func reserveIdentifier(id string) error {
	if !hosted.SetIfAbsent(id, nil) {
		return fmt.Errorf("%w: %q", ErrNameExists, id)
	}
	hostedRegions.Set(float64(hosted.Count()))
	return nil
}

func publishHost(id string, h *Host) {
	hosted.Set(id, h)
}

func releaseIdentifier(id string) {
	hosted.Remove(id)
	hostedRegions.Set(float64(hosted.Count()))
}

// HostedIdentifiers returns the backing identifiers this process currently
// hosts, sorted for stable output.
func HostedIdentifiers() []string {
	keys := hosted.Keys()
	sort.Strings(keys)
	return keys
}

// LookupHost returns the live host handle for a backing identifier, letting
// in-process callers share a mapping instead of attaching to themselves.
func LookupHost(identifier string) (*Host, bool) {
	h, ok := hosted.Get(identifier)
	if !ok || h == nil {
		return nil, false
	}
	return h, true
}

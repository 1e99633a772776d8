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
	"strconv"

	"github.com/srediag/shmem-region/internal/shm"
)

// DefaultPrefix namespaces regions inside the machine-global memfd name
// space when a Scheme does not set its own.
const DefaultPrefix = "shmem-"

// Scheme turns a region's public name into the backing object identifier.
// Host and client must use the same Scheme or discovery will never match;
// the mapping is deterministic so both sides can derive it independently.
type Scheme struct {
	// Prefix is prepended to every name. Empty means DefaultPrefix.
	Prefix string

	// Generation distinguishes successive incarnations of the same name,
	// for hosts that re-create their regions across restarts. Zero adds
	// no suffix.
	Generation uint64
}

// Identifier returns the backing object name for a region called name.
func (s Scheme) Identifier(name string) string {
	p := s.Prefix
	if p == "" {
		p = DefaultPrefix
	}
	if s.Generation == 0 {
		return p + name
	}
	return p + name + "." + strconv.FormatUint(s.Generation, 10)
}

// identifierFor validates name under s and returns the derived identifier.
func (s Scheme) identifierFor(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty region name", ErrInvalidArgument)
	}
	id := s.Identifier(name)
	if len(id) > shm.MaxBackingNameLen {
		return "", fmt.Errorf("%w: identifier %q exceeds %d bytes", ErrInvalidArgument, id, shm.MaxBackingNameLen)
	}
	return id, nil
}

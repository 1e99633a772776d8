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
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("region: not ready yet")

// A /proc liveness probe every N gate polls, not every few hundred
// microseconds.
const livenessEvery = 64

// awaitReady polls the readiness gate until the host flips it or the window
// closes. When the host pid is known it is probed along the way: a region
// whose host died mid-initialization can never become ready, so waiting out
// the whole window would be pure loss.
func awaitReady(ctx context.Context, hdr *header, cfg Config, hostPID int) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	defer cancel()

	attempts := uint64(cfg.ReadyTimeout / cfg.ReadyPollInterval)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ReadyPollInterval), attempts), ctx)

	start := time.Now()
	polls := 0
	op := func() error {
		if hdr.ready() {
			return nil
		}
		polls++
		if hostPID > 0 && polls%livenessEvery == 0 {
			if err := checkPidAlive(hostPID); err != nil {
				return backoff.Permanent(err)
			}
		}
		return errNotReady
	}
	err := backoff.Retry(op, policy)
	readyWaitSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoSuchProcess):
		return err
	}
	return fmt.Errorf("%w: after %v", ErrReadyTimeout, cfg.ReadyTimeout)
}

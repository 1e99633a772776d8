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
	"strconv"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
)

const defaultFleetParallelism = 8

// Attachment is one pid's outcome from a fleet sweep. Exactly one of Client
// and Err is set.
type Attachment struct {
	PID    int
	Client *Client
	Err    error
}

// Fleet attaches one named region across many host processes, the fan-out a
// collector needs when every worker on the box exports the same region
// name. Attaches run on a bounded goroutine pool so a sweep over hundreds
// of pids cannot stampede /proc.
type Fleet struct {
	cfg  Config
	pool *ants.Pool
}

// NewFleet builds a fleet around cfg running at most parallel attaches at
// once. parallel <= 0 picks a default.
func NewFleet(cfg Config, parallel int) (*Fleet, error) {
	if parallel <= 0 {
		parallel = defaultFleetParallelism
	}
	pool, err := ants.NewPool(parallel)
	if err != nil {
		return nil, fmt.Errorf("fleet pool: %w", err)
	}
	return &Fleet{cfg: cfg, pool: pool}, nil
}

// AttachAll sweeps pids and returns one Attachment per input, in input
// order. Per-pid failures land in their Attachment; the sweep itself only
// errors when it cannot run at all.
func (f *Fleet) AttachAll(ctx context.Context, pids []int) ([]Attachment, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	// Duplicate pids collapse to a single attach; every input row still
	// gets its entry in the result.
	unique := make([]int, 0, len(pids))
	seen := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		unique = append(unique, pid)
	}

	work := queue.New(int64(len(unique)))
	for _, pid := range unique {
		if err := work.Put(pid); err != nil {
			return nil, fmt.Errorf("fleet queue: %w", err)
		}
	}
	defer work.Dispose()

	results := cmap.New[Attachment]()
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for {
			items, err := work.Poll(1, time.Millisecond)
			if err != nil || len(items) == 0 {
				// Drained or disposed.
				return
			}
			pid, ok := items[0].(int)
			if !ok {
				continue
			}
			client, err := Attach(ctx, f.cfg, pid)
			results.Set(strconv.Itoa(pid), Attachment{PID: pid, Client: client, Err: err})
		}
	}

	workers := f.pool.Cap()
	if workers > len(unique) {
		workers = len(unique)
	}
	started := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		if err := f.pool.Submit(worker); err != nil {
			wg.Done()
			internalLogger.warnf("fleet submit: %v", err)
			break
		}
		started++
	}
	if started == 0 {
		// Pool refused everything; drain serially rather than fail.
		wg.Add(1)
		worker()
	}
	wg.Wait()

	out := make([]Attachment, 0, len(pids))
	for _, pid := range pids {
		att, ok := results.Get(strconv.Itoa(pid))
		if !ok {
			att = Attachment{PID: pid, Err: fmt.Errorf("%w: pid %d never attempted", ErrRegionNotFound, pid)}
		}
		out = append(out, att)
	}
	return out, nil
}

// Close releases the fleet's goroutine pool. Attachments returned earlier
// stay valid.
func (f *Fleet) Close() {
	f.pool.Release()
}

// CloseAll closes every attached client in atts and returns the first error
// it hits.
func CloseAll(atts []Attachment) error {
	var first error
	for _, a := range atts {
		if a.Client == nil {
			continue
		}
		if err := a.Client.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFleetAttachAll(t *testing.T) {
	h := hostReady(t, "t-fleet", 8192, 2)
	copy(h.Bytes(), "fleet payload")

	fleet, err := NewFleet(fastCfg("t-fleet", 2), 3)
	require.NoError(t, err)
	defer fleet.Close()

	pids := []int{os.Getpid(), 1 << 30}
	atts, err := fleet.AttachAll(context.Background(), pids)
	require.NoError(t, err)
	require.Len(t, atts, 2)

	assert.Equal(t, os.Getpid(), atts[0].PID)
	require.NoError(t, atts[0].Err)
	require.NotNil(t, atts[0].Client)
	assert.Equal(t, "fleet payload", string(atts[0].Client.Bytes()[:13]))

	assert.Equal(t, 1<<30, atts[1].PID)
	require.ErrorIs(t, atts[1].Err, ErrNoSuchProcess)
	assert.Nil(t, atts[1].Client)

	require.NoError(t, CloseAll(atts))
}

func TestFleetEmptySweep(t *testing.T) {
	fleet, err := NewFleet(fastCfg("t-fleet-empty", 1), 0)
	require.NoError(t, err)
	defer fleet.Close()

	atts, err := fleet.AttachAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, atts)
}

func TestFleetDuplicatePidsCollapse(t *testing.T) {
	h := hostReady(t, "t-fleet-dup", 4096, 9)
	copy(h.Bytes(), "shared")

	fleet, err := NewFleet(fastCfg("t-fleet-dup", 9), 4)
	require.NoError(t, err)
	defer fleet.Close()

	// Repeated pids attach once but still fill every result row.
	pids := []int{os.Getpid(), os.Getpid(), os.Getpid()}
	atts, err := fleet.AttachAll(context.Background(), pids)
	require.NoError(t, err)
	require.Len(t, atts, len(pids))
	for _, att := range atts {
		require.NoError(t, att.Err)
		require.NotNil(t, att.Client)
		assert.Equal(t, "shared", string(att.Client.Bytes()[:6]))
	}
	assert.Same(t, atts[0].Client, atts[1].Client)
	require.NoError(t, CloseAll(atts))
}

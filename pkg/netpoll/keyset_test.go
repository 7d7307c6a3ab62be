// Copyright (c) 2023 The Evloop Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netpoll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evloop/evloop/pkg/errors"
	"github.com/evloop/evloop/pkg/netpoll"
)

func TestKeySetAddFlipDrain(t *testing.T) {
	const n = 100
	s := netpoll.NewKeySet(4)

	attachments := make([]*netpoll.PollAttachment, n)
	for i := 0; i < n; i++ {
		attachments[i] = &netpoll.PollAttachment{FD: i}
		assert.True(t, s.Add(attachments[i]))
	}
	assert.Equal(t, n, s.Len())

	selected := s.Flip()
	require.GreaterOrEqual(t, len(selected), n+1, "flipped side must have room for the sentinel")
	for i := 0; i < n; i++ {
		assert.Same(t, attachments[i], selected[i], "insertion order must survive growth and flip")
	}
	assert.Nil(t, selected[n], "batch must be nil-terminated")
	assert.Zero(t, s.Len(), "the set must be empty after a flip")
}

func TestKeySetAddNil(t *testing.T) {
	s := netpoll.NewKeySet(0)
	assert.False(t, s.Add(nil))
	assert.Zero(t, s.Len(), "adding nil must not take a slot")

	assert.True(t, s.Add(&netpoll.PollAttachment{FD: 1}))
	assert.False(t, s.Add(nil))
	assert.Equal(t, 1, s.Len())
}

func TestKeySetFlipAlternatesSides(t *testing.T) {
	s := netpoll.NewKeySet(8)

	fill := func(count, base int) {
		for i := 0; i < count; i++ {
			s.Add(&netpoll.PollAttachment{FD: base + i})
		}
	}

	fill(5, 0)
	first := s.Flip()
	assert.Nil(t, first[5])

	// The other side must start from scratch.
	fill(2, 100)
	assert.Equal(t, 2, s.Len())
	second := s.Flip()
	assert.Equal(t, 100, second[0].FD)
	assert.Equal(t, 101, second[1].FD)
	assert.Nil(t, second[2])

	// Back on the first side: its old contents are gone, only the sentinel
	// guards against the stale residue beyond it.
	fill(2, 200)
	third := s.Flip()
	assert.Equal(t, 200, third[0].FD)
	assert.Equal(t, 201, third[1].FD)
	assert.Nil(t, third[2], "sentinel must cut the batch short of stale residue")
	assert.NotNil(t, third[3], "slots beyond the sentinel keep stale entries by design")
}

func TestKeySetGrowsWhenFilledExactly(t *testing.T) {
	s := netpoll.NewKeySet(3) // rounded up to 4

	for i := 0; i < 4; i++ {
		s.Add(&netpoll.PollAttachment{FD: i})
	}
	assert.Equal(t, 4, s.Len())

	selected := s.Flip()
	assert.Equal(t, 8, len(selected), "filling a side to capacity must double it")
	for i := 0; i < 4; i++ {
		assert.Equal(t, i, selected[i].FD)
	}
	assert.Nil(t, selected[4])
}

func TestKeySetCapacityRounding(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{name: "default", capacity: 0, want: netpoll.DefaultKeySetCap},
		{name: "negative", capacity: -7, want: netpoll.DefaultKeySetCap},
		{name: "power_of_two", capacity: 64, want: 64},
		{name: "rounded_up", capacity: 100, want: 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := netpoll.NewKeySet(tt.capacity)
			assert.Equal(t, tt.want, len(s.Flip()))
		})
	}
}

func TestKeySetCapacityNeverShrinks(t *testing.T) {
	s := netpoll.NewKeySet(4)
	for i := 0; i < 64; i++ {
		s.Add(&netpoll.PollAttachment{FD: i})
	}
	grownA := len(s.Flip())
	require.GreaterOrEqual(t, grownA, 65)

	// Draining rounds with light load must not give the storage back.
	for round := 0; round < 8; round++ {
		s.Add(&netpoll.PollAttachment{FD: round})
		s.Flip()
	}
	s.Flip()
	assert.Equal(t, grownA, len(s.Flip()))
}

func TestKeySetUnsupportedSetOps(t *testing.T) {
	s := netpoll.NewKeySet(8)
	pa := &netpoll.PollAttachment{FD: 42}
	s.Add(pa)

	assert.False(t, s.Contains(pa), "membership queries are unsupported")
	assert.False(t, s.Remove(pa), "removal is unsupported")
	assert.Equal(t, 1, s.Len(), "a failed remove must not change the set")

	err := s.Iterate(func(*netpoll.PollAttachment) bool { return true })
	assert.ErrorIs(t, err, errors.ErrUnsupportedOp)
}

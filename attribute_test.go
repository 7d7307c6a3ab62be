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

package evloop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/evloop/evloop/pkg/errors"
)

func TestAttributeKeyRegistry(t *testing.T) {
	key, err := NewAttributeKey("registry-test-key")
	require.NoError(t, err)
	assert.Equal(t, "registry-test-key", key.String())

	_, err = NewAttributeKey("registry-test-key")
	assert.ErrorIs(t, err, errorx.ErrDuplicateAttributeKey)

	_, err = NewAttributeKey("")
	assert.ErrorIs(t, err, errorx.ErrEmptyAttributeKey)

	assert.NotNil(t, MakeAttributeKey("registry-test-key-2"))
	assert.Panics(t, func() { MakeAttributeKey("registry-test-key") })
}

func TestAttributeOperations(t *testing.T) {
	var m attributeMap
	key := MakeAttributeKey("attribute-operations")

	assert.Nil(t, m.Attr(nil))

	attr := m.Attr(key)
	require.NotNil(t, attr)
	assert.Same(t, attr, m.Attr(key), "the same cell must be handed out for one key")
	assert.Same(t, key, attr.Key())

	assert.Nil(t, attr.Get())
	attr.Set("alpha")
	assert.Equal(t, "alpha", attr.Get())

	assert.Equal(t, "alpha", attr.GetAndSet("beta"))
	assert.Equal(t, "beta", attr.Get())

	assert.Equal(t, "beta", attr.SetIfAbsent("gamma"), "set-if-absent must not clobber")
	attr.Remove()
	assert.Nil(t, attr.SetIfAbsent("gamma"))
	assert.Equal(t, "gamma", attr.Get())

	assert.Equal(t, "gamma", attr.GetAndRemove())
	assert.Nil(t, attr.Get())

	attr.Set(42)
	attr.Set(nil)
	assert.Nil(t, attr.Get(), "storing nil clears the cell")
}

func TestAttributeSetIfAbsentRace(t *testing.T) {
	var m attributeMap
	attr := m.Attr(MakeAttributeKey("attribute-race"))

	const contenders = 16
	var wg sync.WaitGroup
	winners := make(chan int, contenders)
	for i := 0; i < contenders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if attr.SetIfAbsent(i) == nil {
				winners <- i
			}
		}()
	}
	wg.Wait()
	close(winners)

	var won []int
	for w := range winners {
		won = append(won, w)
	}
	require.Len(t, won, 1, "exactly one contender must install its value")
	assert.Equal(t, won[0], attr.Get())
}

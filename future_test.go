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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompletesExactlyOnce(t *testing.T) {
	f := newFuture()
	assert.False(t, f.IsDone())

	var wg sync.WaitGroup
	var wins int32
	errBoom := errors.New("boom")
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = f.trySuccess()
			} else {
				won = f.tryFailure(errBoom)
			}
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&wins), "exactly one completion attempt must win")
	assert.True(t, f.IsDone())
	select {
	case <-f.Done():
	default:
		t.Fatal("Done channel must be closed after completion")
	}
}

func TestFutureListeners(t *testing.T) {
	t.Run("added-before-completion", func(t *testing.T) {
		f := newFuture()
		var notified int32
		welcome := make(chan struct{})
		f.AddListener(func(completed *Future) {
			assert.True(t, completed.IsDone())
			if atomic.AddInt32(&notified, 1) == 1 {
				close(welcome)
			}
		})
		f.AddListener(nil) // must be ignored

		require.True(t, f.trySuccess())
		require.False(t, f.trySuccess(), "second completion must lose")

		select {
		case <-welcome:
		case <-time.After(time.Second):
			t.Fatal("listener was not notified")
		}
		time.Sleep(100 * time.Millisecond)
		assert.EqualValues(t, 1, atomic.LoadInt32(&notified), "listener must be notified exactly once")
	})

	t.Run("added-after-completion", func(t *testing.T) {
		f := newFuture()
		require.True(t, f.tryFailure(errors.New("late")))
		notified := make(chan struct{})
		f.AddListener(func(completed *Future) {
			assert.Error(t, completed.Err())
			close(notified)
		})
		select {
		case <-notified:
		case <-time.After(time.Second):
			t.Fatal("late listener was not notified")
		}
	})
}

func TestFutureAwait(t *testing.T) {
	t.Run("canceled-context", func(t *testing.T) {
		f := newFuture()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, f.Await(ctx), context.DeadlineExceeded)
	})

	t.Run("failure-propagates", func(t *testing.T) {
		f := newFuture()
		errBoom := errors.New("boom")
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.tryFailure(errBoom)
		}()
		assert.ErrorIs(t, f.Await(context.Background()), errBoom)
		assert.ErrorIs(t, f.Err(), errBoom)
	})

	t.Run("timeout-variant", func(t *testing.T) {
		f := newFuture()
		assert.False(t, f.AwaitTimeout(0), "non-positive timeout polls the state")
		assert.False(t, f.AwaitTimeout(30*time.Millisecond))
		f.trySuccess()
		assert.True(t, f.AwaitTimeout(0))
		assert.True(t, f.AwaitTimeout(time.Second))
		assert.NoError(t, f.Err())
	})
}

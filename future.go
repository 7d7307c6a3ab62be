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
	"sync"
	"time"

	"github.com/evloop/evloop/pkg/pool/goroutine"
)

// callbackPool runs future listeners off the goroutine that resolves the
// future, so a slow listener can never stall an executor shutdown path.
var callbackPool = goroutine.Default()

// Future is a one-shot completion signal. It completes at most once, either
// successfully or with an error, and every listener added to it is notified
// exactly once.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	listeners []func(*Future)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel that is closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error the future completed with. It returns nil both while
// the future is pending and after a successful completion, use IsDone to
// tell the two apart.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Await blocks until the future completes or ctx is canceled. It returns the
// completion error on completion and ctx.Err() on cancellation.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitTimeout blocks up to d and reports whether the future completed in
// time. A non-positive d polls the current state without blocking.
func (f *Future) AwaitTimeout(d time.Duration) bool {
	if d <= 0 {
		return f.IsDone()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return true
	case <-t.C:
		return false
	}
}

// AddListener registers fn to be called once when the future completes. A
// listener added after completion is dispatched right away. Listeners run on
// the shared callback pool, nil listeners are ignored.
func (f *Future) AddListener(fn func(*Future)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		f.dispatch(fn)
		return
	default:
	}
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

// trySuccess completes the future successfully, reporting whether this call
// was the one that completed it.
func (f *Future) trySuccess() bool {
	return f.complete(nil)
}

// tryFailure completes the future with err, reporting whether this call was
// the one that completed it.
func (f *Future) tryFailure(err error) bool {
	return f.complete(err)
}

func (f *Future) complete(err error) bool {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return false
	default:
	}
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range listeners {
		f.dispatch(fn)
	}
	return true
}

func (f *Future) dispatch(fn func(*Future)) {
	if err := callbackPool.Submit(func() { fn(f) }); err != nil {
		// The pool is non-blocking and can refuse work when saturated,
		// the listener still has to run.
		go fn(f)
	}
}

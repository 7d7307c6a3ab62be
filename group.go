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
	"fmt"
	"sync/atomic"
	"time"

	errorx "github.com/evloop/evloop/pkg/errors"
)

// ChildFactory builds the idx-th child of a group. Implementations must
// return an executor that is already running.
type ChildFactory func(idx int, opts *Options) (Executor, error)

// Group is a fixed-size set of executors with round-robin dispatch. All
// children are created eagerly by NewGroup and share one termination future
// that completes when the last child terminates.
type Group struct {
	cursor     int32
	terminated int32
	attributeMap
	opts        *Options
	logFlush    func() error
	children    []Executor
	termination *Future
}

// NewGroup creates a group of n executors built by newChild, which falls
// back to the task-executor factory when nil. It returns
// ErrInvalidExecutorCount for n <= 0, with no children created.
//
// Children are created one at a time. When the idx-th creation fails, the
// children created so far are shut down, awaited to full termination, and
// the creation error is returned wrapped with the child index.
func NewGroup(n int, newChild ChildFactory, opts ...Option) (*Group, error) {
	if n <= 0 {
		return nil, errorx.ErrInvalidExecutorCount
	}

	options := loadOptions(opts...)
	flush, err := setupOptions(options)
	if err != nil {
		return nil, err
	}

	// The maximum number of operating system threads that the Go program
	// can use is initially set to 10000, which should also be the maximum
	// amount of executor goroutines locked to OS threads that users can
	// start up.
	if options.LockOSThread && n > 10000 {
		options.Logger.Errorf("too many executors under LockOSThread mode, should be less than 10,000 "+
			"while you are trying to set up %d", n)
		if flush != nil {
			_ = flush()
		}
		return nil, errorx.ErrTooManyExecutorThreads
	}

	if newChild == nil {
		newChild = func(idx int, opts *Options) (Executor, error) {
			te := newTaskExecutor(childName(opts.Name, idx), opts)
			te.start()
			return te, nil
		}
	}

	g := &Group{
		opts:        options,
		logFlush:    flush,
		children:    make([]Executor, 0, n),
		termination: newFuture(),
	}
	for i := 0; i < n; i++ {
		child, err := newChild(i, options)
		if err != nil {
			g.rollback()
			if flush != nil {
				_ = flush()
			}
			return nil, fmt.Errorf("evloop: creating executor %d/%d: %w", i+1, n, err)
		}
		g.children = append(g.children, child)
	}
	for _, child := range g.children {
		child.TerminationFuture().AddListener(g.childTerminated)
	}
	return g, nil
}

// rollback tears down the children created before a factory failure. Every
// child owns a live goroutine, so the unbounded waits always return.
func (g *Group) rollback() {
	for _, child := range g.children {
		child.ShutdownGracefully(0, 0)
	}
	for _, child := range g.children {
		_ = child.TerminationFuture().Await(context.Background())
	}
}

// childTerminated is the single listener shared by all children, the last
// termination resolves the group future.
func (g *Group) childTerminated(*Future) {
	if int(atomic.AddInt32(&g.terminated, 1)) == len(g.children) {
		if g.logFlush != nil {
			_ = g.logFlush()
		}
		g.termination.trySuccess()
	}
}

// Next returns the next executor in the round-robin order. It is lock-free
// and safe for concurrent use.
func (g *Group) Next() Executor {
	idx := int(atomic.AddInt32(&g.cursor, 1)-1) % len(g.children)
	if idx < 0 {
		idx = -idx
	}
	return g.children[idx]
}

// ExecutorCount returns the number of children in the group.
func (g *Group) ExecutorCount() int {
	return len(g.children)
}

// Executors returns the children in index order as a fresh slice.
func (g *Group) Executors() []Executor {
	children := make([]Executor, len(g.children))
	copy(children, g.children)
	return children
}

// Iterate calls f on each child in index order until f returns false.
func (g *Group) Iterate(f func(int, Executor) bool) {
	for i, child := range g.children {
		if !f(i, child) {
			break
		}
	}
}

// Execute submits r to the next executor in the round-robin order.
func (g *Group) Execute(ctx context.Context, r Runnable) error {
	return g.Next().Execute(ctx, r)
}

// Schedule submits r to the next executor in the round-robin order, to run
// after the given delay. Delayed execution is not supported yet.
func (g *Group) Schedule(ctx context.Context, r Runnable, delay time.Duration) error {
	return g.Next().Schedule(ctx, r, delay)
}

// ShutdownGracefully signals every child to shut down with the same quiet
// period and timeout, and returns the group termination future.
func (g *Group) ShutdownGracefully(quietPeriod, timeout time.Duration) *Future {
	for _, child := range g.children {
		child.ShutdownGracefully(quietPeriod, timeout)
	}
	return g.termination
}

// Shutdown signals every child to stop without a quiet period.
//
// Deprecated: use ShutdownGracefully instead.
func (g *Group) Shutdown() {
	for _, child := range g.children {
		child.Shutdown()
	}
}

// IsShuttingDown reports whether every child is shutting down.
func (g *Group) IsShuttingDown() bool {
	for _, child := range g.children {
		if !child.IsShuttingDown() {
			return false
		}
	}
	return true
}

// IsShutdown reports whether every child has stopped accepting tasks.
func (g *Group) IsShutdown() bool {
	for _, child := range g.children {
		if !child.IsShutdown() {
			return false
		}
	}
	return true
}

// IsTerminated reports whether every child has terminated.
func (g *Group) IsTerminated() bool {
	for _, child := range g.children {
		if !child.IsTerminated() {
			return false
		}
	}
	return true
}

// AwaitTermination blocks until every child terminates or timeout elapses,
// reporting whether the whole group terminated in time. Children are waited
// on sequentially against one absolute deadline.
func (g *Group) AwaitTermination(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for _, child := range g.children {
		if !child.AwaitTermination(time.Until(deadline)) {
			break
		}
	}
	return g.IsTerminated()
}

// TerminationFuture returns the future that completes when the last child
// terminates. The same future is returned on every call.
func (g *Group) TerminationFuture() *Future {
	return g.termination
}

// NewPollExecutorGroup creates a group of n poll executors. On operating
// systems without a poller the construction fails with
// ErrUnsupportedPlatform.
func NewPollExecutorGroup(n int, opts ...Option) (*Group, error) {
	return NewGroup(n, func(idx int, options *Options) (Executor, error) {
		pe, err := NewPollExecutor(WithOptions(*options), WithName(childName(options.Name, idx)))
		if err != nil {
			return nil, err
		}
		return pe, nil
	}, opts...)
}

func childName(base string, idx int) string {
	return fmt.Sprintf("%s-%d", base, idx+1)
}

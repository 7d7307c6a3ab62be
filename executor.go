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
	"time"
)

// Runnable is an interface for the tasks to run on an executor.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc is a function that implements the Runnable interface.
type RunnableFunc func(ctx context.Context) error

// Run implements the Runnable interface.
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Executor is a single-goroutine task executor with a graceful-shutdown
// lifecycle. Tasks submitted to one executor run serially, in submission
// order, on the executor's own goroutine.
//
// The lifecycle is monotonic: running -> shutting down -> shut down ->
// terminated. Once an executor has left the running state it never accepts
// new tasks again.
type Executor interface {
	// Execute submits r to run on the executor goroutine. It returns
	// ErrNilRunnable if r is nil and ErrExecutorShutdown if the executor
	// no longer accepts tasks. ctx is passed through to r.Run; the
	// executor itself never cancels it.
	Execute(ctx context.Context, r Runnable) error

	// Schedule submits r to run after the given delay.
	//
	// Delayed execution is not implemented yet, so this method always
	// returns ErrUnsupportedOp.
	Schedule(ctx context.Context, r Runnable, delay time.Duration) error

	// ShutdownGracefully signals the executor to shut down and returns its
	// termination future.
	//
	// The executor keeps accepting and running tasks until no task has been
	// submitted for quietPeriod, then it stops. If tasks keep trickling in,
	// timeout caps the total wait: once timeout has elapsed since the call,
	// the executor stops regardless of recent submissions. Tasks already in
	// the queue at that point still run before the future completes.
	//
	// Calling it again on an executor already shutting down only returns
	// the future; the original deadlines stay in effect.
	ShutdownGracefully(quietPeriod, timeout time.Duration) *Future

	// Shutdown signals the executor to stop without a quiet period.
	//
	// Deprecated: use ShutdownGracefully instead.
	Shutdown()

	// IsShuttingDown reports whether ShutdownGracefully or Shutdown has
	// been called.
	IsShuttingDown() bool

	// IsShutdown reports whether the executor has stopped accepting tasks.
	IsShutdown() bool

	// IsTerminated reports whether the executor goroutine has exited and
	// all queued tasks have been run.
	IsTerminated() bool

	// AwaitTermination blocks until the executor terminates or timeout
	// elapses, reporting whether it terminated in time.
	AwaitTermination(timeout time.Duration) bool

	// TerminationFuture returns the future that completes when the
	// executor terminates. The same future is returned on every call.
	TerminationFuture() *Future

	// Attr returns the attribute cell of this executor for key, creating
	// it on first use. It returns nil if key is nil.
	Attr(key *AttributeKey) *Attribute
}

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
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evloop/evloop/internal/queue"
	errorx "github.com/evloop/evloop/pkg/errors"
)

// Executor lifecycle states, strictly increasing.
const (
	stateRunning int32 = iota
	stateShuttingDown
	stateShutdown
	stateTerminated
)

// taskExecutor is a single-goroutine executor that drains a lock-free task
// queue. It is the default child of a Group on platforms without a poller
// and for workloads that are not tied to file descriptors.
type taskExecutor struct {
	lastActivity int64 // atomic, UnixNano of the last submission or task run
	attributeMap
	name         string
	opts         *Options
	logFlush     func() error
	state        int32
	wakeSig      int32
	taskQueue    queue.AsyncTaskQueue
	wakeCh       chan struct{}
	quietPeriod  time.Duration
	hardDeadline time.Time
	termination  *Future
	workerPool   struct {
		*errgroup.Group

		shutdownCtx context.Context
		shutdown    context.CancelFunc
		once        sync.Once
	}
}

// NewTaskExecutor creates and starts a single-goroutine task executor.
func NewTaskExecutor(opts ...Option) (Executor, error) {
	options := loadOptions(opts...)
	flush, err := setupOptions(options)
	if err != nil {
		return nil, err
	}
	te := newTaskExecutor(options.Name, options)
	te.logFlush = flush
	te.start()
	return te, nil
}

// newTaskExecutor assumes options have been through setupOptions already,
// the caller still has to invoke start.
func newTaskExecutor(name string, options *Options) *taskExecutor {
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	te := &taskExecutor{
		name:        name,
		opts:        options,
		taskQueue:   queue.NewLockFreeQueue(),
		wakeCh:      make(chan struct{}, 1),
		termination: newFuture(),
	}
	te.workerPool = struct {
		*errgroup.Group

		shutdownCtx context.Context
		shutdown    context.CancelFunc
		once        sync.Once
	}{&errgroup.Group{}, shutdownCtx, shutdown, sync.Once{}}
	atomic.StoreInt64(&te.lastActivity, time.Now().UnixNano())
	return te
}

func (te *taskExecutor) start() {
	te.workerPool.Go(te.run)
	go func() {
		err := te.workerPool.Wait()
		atomic.StoreInt32(&te.state, stateTerminated)
		if te.logFlush != nil {
			_ = te.logFlush()
		}
		if err != nil {
			te.termination.tryFailure(err)
		} else {
			te.termination.trySuccess()
		}
	}()
}

// run is the executor goroutine. It parks on the wake channel while the
// queue is empty, then after a shutdown request it keeps serving tasks until
// the quiet period or the hard deadline runs out.
func (te *taskExecutor) run() error {
	if te.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	te.opts.Logger.Debugf("%s is running", te.name)

	for {
		select {
		case <-te.wakeCh:
			te.runTasks()
			continue
		case <-te.workerPool.shutdownCtx.Done():
		}
		break
	}

	hard := time.NewTimer(time.Until(te.hardDeadline))
	defer hard.Stop()
loop:
	for {
		te.runTasks()
		idle := time.Until(time.Unix(0, atomic.LoadInt64(&te.lastActivity)).Add(te.quietPeriod))
		if idle <= 0 {
			break
		}
		quiet := time.NewTimer(idle)
		select {
		case <-te.wakeCh:
		case <-quiet.C:
		case <-hard.C:
			quiet.Stop()
			break loop
		}
		quiet.Stop()
	}

	// The cutoff: no new submissions from here on, the residue still runs.
	atomic.StoreInt32(&te.state, stateShutdown)
	te.runTasks()
	te.opts.Logger.Debugf("%s is terminating", te.name)
	return nil
}

// runTasks drains the queue. The trailing CAS claims the wake signal back
// so that a task enqueued between the final dequeue and the signal reset is
// never stranded without a wakeup.
func (te *taskExecutor) runTasks() {
	for {
		te.drainTaskQueue()
		atomic.StoreInt32(&te.wakeSig, 0)
		if te.taskQueue.IsEmpty() || !atomic.CompareAndSwapInt32(&te.wakeSig, 0, 1) {
			return
		}
	}
}

func (te *taskExecutor) drainTaskQueue() {
	ran := false
	for task := te.taskQueue.Dequeue(); task != nil; task = te.taskQueue.Dequeue() {
		if err := task.Run(task.Arg); err != nil {
			te.opts.Logger.Warnf("%s: error occurs in task: %v", te.name, err)
		}
		queue.PutTask(task)
		ran = true
	}
	if ran {
		atomic.StoreInt64(&te.lastActivity, time.Now().UnixNano())
	}
}

// wake nudges the executor goroutine. The send must never block: when the
// buffer already holds a token a wakeup is pending anyway, and after
// termination there is nobody left to receive.
func (te *taskExecutor) wake() {
	if atomic.CompareAndSwapInt32(&te.wakeSig, 0, 1) {
		select {
		case te.wakeCh <- struct{}{}:
		default:
		}
	}
}

// Execute submits r to run on the executor goroutine, implementing Executor.
func (te *taskExecutor) Execute(ctx context.Context, r Runnable) error {
	if r == nil {
		return errorx.ErrNilRunnable
	}
	if atomic.LoadInt32(&te.state) >= stateShutdown {
		return errorx.ErrExecutorShutdown
	}
	atomic.StoreInt64(&te.lastActivity, time.Now().UnixNano())
	task := queue.GetTask()
	task.Run = func(any) error { return r.Run(ctx) }
	te.taskQueue.Enqueue(task)
	te.wake()
	return nil
}

// Schedule implements Executor, delayed execution is not supported yet.
func (te *taskExecutor) Schedule(context.Context, Runnable, time.Duration) error {
	return errorx.ErrUnsupportedOp
}

// ShutdownGracefully implements Executor.
func (te *taskExecutor) ShutdownGracefully(quietPeriod, timeout time.Duration) *Future {
	if quietPeriod < 0 {
		quietPeriod = 0
	}
	if timeout < 0 {
		timeout = 0
	}
	te.workerPool.once.Do(func() {
		te.quietPeriod = quietPeriod
		te.hardDeadline = time.Now().Add(timeout)
		atomic.StoreInt64(&te.lastActivity, time.Now().UnixNano())
		atomic.StoreInt32(&te.state, stateShuttingDown)
		te.workerPool.shutdown()
	})
	return te.termination
}

// Shutdown implements Executor.
//
// Deprecated: use ShutdownGracefully instead.
func (te *taskExecutor) Shutdown() {
	te.ShutdownGracefully(0, 0)
}

// IsShuttingDown implements Executor.
func (te *taskExecutor) IsShuttingDown() bool {
	return atomic.LoadInt32(&te.state) >= stateShuttingDown
}

// IsShutdown implements Executor.
func (te *taskExecutor) IsShutdown() bool {
	return atomic.LoadInt32(&te.state) >= stateShutdown
}

// IsTerminated implements Executor.
func (te *taskExecutor) IsTerminated() bool {
	return atomic.LoadInt32(&te.state) == stateTerminated
}

// AwaitTermination implements Executor.
func (te *taskExecutor) AwaitTermination(timeout time.Duration) bool {
	return te.termination.AwaitTimeout(timeout)
}

// TerminationFuture implements Executor.
func (te *taskExecutor) TerminationFuture() *Future {
	return te.termination
}

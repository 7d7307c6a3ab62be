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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

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
	"github.com/evloop/evloop/pkg/netpoll"
)

// PollExecutor is a single-goroutine executor driven by an OS poller.
// Besides running submitted tasks it monitors registered file descriptors
// and invokes their callbacks on the executor goroutine when they become
// ready, so tasks and I/O callbacks never run concurrently.
type PollExecutor struct {
	lastActivity int64 // atomic, UnixNano of the last submission or registration
	attributeMap
	name         string
	opts         *Options
	logFlush     func() error
	state        int32
	poller       *netpoll.Poller
	quietPeriod  time.Duration
	hardDeadline time.Time
	termination  *Future
	workerPool   struct {
		*errgroup.Group

		once sync.Once
	}
}

// NewPollExecutor creates and starts a poll executor. It returns
// ErrUnsupportedPlatform on operating systems without a poller.
func NewPollExecutor(opts ...Option) (*PollExecutor, error) {
	options := loadOptions(opts...)
	flush, err := setupOptions(options)
	if err != nil {
		return nil, err
	}
	poller, err := netpoll.OpenPoller()
	if err != nil {
		if flush != nil {
			_ = flush()
		}
		return nil, err
	}
	pe := &PollExecutor{
		name:        options.Name,
		opts:        options,
		logFlush:    flush,
		poller:      poller,
		termination: newFuture(),
	}
	pe.workerPool = struct {
		*errgroup.Group

		once sync.Once
	}{&errgroup.Group{}, sync.Once{}}
	atomic.StoreInt64(&pe.lastActivity, time.Now().UnixNano())
	pe.workerPool.Go(pe.run)
	go func() {
		err := pe.workerPool.Wait()
		atomic.StoreInt32(&pe.state, stateTerminated)
		if pe.logFlush != nil {
			_ = pe.logFlush()
		}
		if err != nil {
			pe.termination.tryFailure(err)
		} else {
			pe.termination.trySuccess()
		}
	}()
	return pe, nil
}

// run hosts the polling loop until a task breaks it with
// ErrExecutorShutdown, then closes the poller.
func (pe *PollExecutor) run() error {
	if pe.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	pe.opts.Logger.Debugf("%s is running", pe.name)

	err := pe.poller.Polling(pe.opts.KeySetCap)
	atomic.StoreInt32(&pe.state, stateShutdown)
	if closeErr := pe.poller.Close(); closeErr != nil {
		pe.opts.Logger.Errorf("%s: failed to close poller: %v", pe.name, closeErr)
	}
	pe.opts.Logger.Debugf("%s is terminating", pe.name)
	if err == errorx.ErrExecutorShutdown {
		return nil
	}
	return err
}

// shutdownProbe runs on the executor goroutine. It ends the polling loop
// once the quiet period or the hard deadline has run out, otherwise it
// re-arms itself for the earlier of the two.
func (pe *PollExecutor) shutdownProbe(any) error {
	now := time.Now()
	if !now.Before(pe.hardDeadline) {
		return errorx.ErrExecutorShutdown
	}
	idle := time.Unix(0, atomic.LoadInt64(&pe.lastActivity)).Add(pe.quietPeriod).Sub(now)
	if idle <= 0 {
		return errorx.ErrExecutorShutdown
	}
	next := idle
	if hard := pe.hardDeadline.Sub(now); hard < next {
		next = hard
	}
	time.AfterFunc(next, func() {
		// A Trigger failure means the poller is already gone, the loop no
		// longer needs the probe then.
		_ = pe.poller.Trigger(queue.HighPriority, pe.shutdownProbe, nil)
	})
	return nil
}

// Execute submits r to run on the executor goroutine, implementing Executor.
func (pe *PollExecutor) Execute(ctx context.Context, r Runnable) error {
	if r == nil {
		return errorx.ErrNilRunnable
	}
	if atomic.LoadInt32(&pe.state) >= stateShutdown {
		return errorx.ErrExecutorShutdown
	}
	atomic.StoreInt64(&pe.lastActivity, time.Now().UnixNano())
	return pe.poller.Trigger(queue.LowPriority, func(any) error { return r.Run(ctx) }, nil)
}

// Schedule implements Executor, delayed execution is not supported yet.
func (pe *PollExecutor) Schedule(context.Context, Runnable, time.Duration) error {
	return errorx.ErrUnsupportedOp
}

// RegisterRead starts monitoring fd for readable events, invoking callback
// on the executor goroutine whenever fd becomes ready.
//
// Registration runs asynchronously on the executor goroutine, a failure to
// attach fd to the poller is logged rather than returned.
func (pe *PollExecutor) RegisterRead(fd int, callback netpoll.PollEventHandler) error {
	return pe.register(fd, callback, (*netpoll.Poller).AddRead)
}

// RegisterWrite starts monitoring fd for writable events, invoking callback
// on the executor goroutine whenever fd becomes ready.
func (pe *PollExecutor) RegisterWrite(fd int, callback netpoll.PollEventHandler) error {
	return pe.register(fd, callback, (*netpoll.Poller).AddWrite)
}

// RegisterReadWrite starts monitoring fd for both readable and writable
// events, invoking callback on the executor goroutine whenever fd becomes
// ready.
func (pe *PollExecutor) RegisterReadWrite(fd int, callback netpoll.PollEventHandler) error {
	return pe.register(fd, callback, (*netpoll.Poller).AddReadWrite)
}

func (pe *PollExecutor) register(fd int, callback netpoll.PollEventHandler,
	add func(*netpoll.Poller, *netpoll.PollAttachment) error,
) error {
	if callback == nil {
		return errorx.ErrNilCallback
	}
	switch {
	case atomic.LoadInt32(&pe.state) == stateTerminated:
		return errorx.ErrExecutorTerminated
	case atomic.LoadInt32(&pe.state) >= stateShuttingDown:
		return errorx.ErrExecutorInShutdown
	}
	atomic.StoreInt64(&pe.lastActivity, time.Now().UnixNano())
	return pe.poller.Trigger(queue.HighPriority, func(any) error {
		pa := netpoll.GetPollAttachment()
		pa.FD, pa.Callback = fd, callback
		if err := add(pe.poller, pa); err != nil {
			netpoll.PutPollAttachment(pa)
			return err
		}
		return nil
	}, nil)
}

// ModifyRead shrinks the monitored events of fd down to readable only.
func (pe *PollExecutor) ModifyRead(fd int) error {
	return pe.modify(fd, (*netpoll.Poller).ModRead)
}

// ModifyReadWrite widens the monitored events of fd to readable and
// writable.
func (pe *PollExecutor) ModifyReadWrite(fd int) error {
	return pe.modify(fd, (*netpoll.Poller).ModReadWrite)
}

func (pe *PollExecutor) modify(fd int, mod func(*netpoll.Poller, *netpoll.PollAttachment) error) error {
	if atomic.LoadInt32(&pe.state) >= stateShutdown {
		return errorx.ErrExecutorShutdown
	}
	return pe.poller.Trigger(queue.HighPriority, func(any) error {
		pa, ok := pe.poller.Attachment(fd)
		if !ok {
			return errorx.ErrUnregisteredFD
		}
		return mod(pe.poller, pa)
	}, nil)
}

// Deregister stops monitoring fd. The callback of fd is not invoked again
// once the removal has been carried out, even for events already collected.
func (pe *PollExecutor) Deregister(fd int) error {
	if atomic.LoadInt32(&pe.state) >= stateShutdown {
		return errorx.ErrExecutorShutdown
	}
	return pe.poller.Trigger(queue.HighPriority, func(any) error {
		if _, ok := pe.poller.Attachment(fd); !ok {
			return errorx.ErrUnregisteredFD
		}
		return pe.poller.Delete(fd)
	}, nil)
}

// ShutdownGracefully implements Executor.
func (pe *PollExecutor) ShutdownGracefully(quietPeriod, timeout time.Duration) *Future {
	if quietPeriod < 0 {
		quietPeriod = 0
	}
	if timeout < 0 {
		timeout = 0
	}
	pe.workerPool.once.Do(func() {
		pe.quietPeriod = quietPeriod
		pe.hardDeadline = time.Now().Add(timeout)
		atomic.StoreInt64(&pe.lastActivity, time.Now().UnixNano())
		atomic.StoreInt32(&pe.state, stateShuttingDown)
		if err := pe.poller.Trigger(queue.HighPriority, pe.shutdownProbe, nil); err != nil {
			pe.opts.Logger.Errorf("%s: failed to trigger shutdown: %v", pe.name, err)
		}
	})
	return pe.termination
}

// Shutdown implements Executor.
//
// Deprecated: use ShutdownGracefully instead.
func (pe *PollExecutor) Shutdown() {
	pe.ShutdownGracefully(0, 0)
}

// IsShuttingDown implements Executor.
func (pe *PollExecutor) IsShuttingDown() bool {
	return atomic.LoadInt32(&pe.state) >= stateShuttingDown
}

// IsShutdown implements Executor.
func (pe *PollExecutor) IsShutdown() bool {
	return atomic.LoadInt32(&pe.state) >= stateShutdown
}

// IsTerminated implements Executor.
func (pe *PollExecutor) IsTerminated() bool {
	return atomic.LoadInt32(&pe.state) == stateTerminated
}

// AwaitTermination implements Executor.
func (pe *PollExecutor) AwaitTermination(timeout time.Duration) bool {
	return pe.termination.AwaitTimeout(timeout)
}

// TerminationFuture implements Executor.
func (pe *PollExecutor) TerminationFuture() *Future {
	return pe.termination
}

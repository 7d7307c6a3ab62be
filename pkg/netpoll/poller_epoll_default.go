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

//go:build linux

package netpoll

import (
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/evloop/evloop/internal/queue"
	"github.com/evloop/evloop/pkg/errors"
	"github.com/evloop/evloop/pkg/logging"
)

// Poller represents a poller which is in charge of monitoring file-descriptors.
//
// The attachment registry is owned by the polling goroutine: once Polling has
// begun, registration methods must be invoked on that goroutine, usually from
// a callback or a task submitted through Trigger.
type Poller struct {
	fd                   int    // epoll fd
	efd                  int    // eventfd for waking up the poller
	efdBuf               []byte // efd buffer to read an 8-byte integer
	wakeupCall           int32
	registry             map[int]*PollAttachment // attachments keyed by fd
	asyncTaskQueue       queue.AsyncTaskQueue    // queue with low priority
	urgentAsyncTaskQueue queue.AsyncTaskQueue    // queue with high priority
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		poller = nil
		err = os.NewSyscallError("epoll_create1", err)
		return
	}
	if err = poller.addWakeupEvent(); err != nil {
		_ = unix.Close(poller.fd)
		poller = nil
		return
	}
	poller.registry = make(map[int]*PollAttachment)
	poller.asyncTaskQueue = queue.NewLockFreeQueue()
	poller.urgentAsyncTaskQueue = queue.NewLockFreeQueue()
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	if err := os.NewSyscallError("close", unix.Close(p.fd)); err != nil {
		return err
	}
	return os.NewSyscallError("close", unix.Close(p.efd))
}

// Trigger enqueues the task and wakes up the poller to run it.
//
// Tasks of HighPriority are executed ahead of the others and in full on each
// wakeup, tasks of LowPriority are bounded by MaxAsyncTasksAtOneTime per
// wakeup and may backlog.
func (p *Poller) Trigger(priority queue.EventPriority, fn queue.TaskFunc, arg any) (err error) {
	task := queue.GetTask()
	task.Run, task.Arg = fn, arg
	if priority > queue.HighPriority {
		p.asyncTaskQueue.Enqueue(task)
	} else {
		p.urgentAsyncTaskQueue.Enqueue(task)
	}
	if atomic.CompareAndSwapInt32(&p.wakeupCall, 0, 1) {
		err = p.wakePoller()
	}
	return
}

// Polling blocks the current goroutine, monitoring the registered
// file-descriptors and waking up for triggered tasks, until a callback or a
// task returns errors.ErrExecutorShutdown, at which point the tasks still
// queued are run one last time before Polling returns.
//
// Each round collects the ready attachments into a key set, flips the set and
// drains the returned batch, so callbacks that register or delete descriptors
// never disturb the batch being drained. keySetCap is the initial capacity of
// the key set, a non-positive value falls back to DefaultKeySetCap.
func (p *Poller) Polling(keySetCap int) error {
	el := newEventList(InitPollEventsCap)
	keys := NewKeySet(keySetCap)

	var doChores bool
	msec := -1
	for {
		n, err := unix.EpollWait(p.fd, el.events, msec)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			msec = -1
			runtime.Gosched()
			continue
		} else if err != nil {
			logging.Errorf("error occurs in epoll: %v", os.NewSyscallError("epoll_wait", err))
			return err
		}
		msec = 0

		for i := 0; i < n; i++ {
			ev := &el.events[i]
			fd := int(ev.Fd)
			if fd == p.efd { // poller is awakened to run tasks in queues.
				doChores = true
				p.drainWakeupEvent()
				continue
			}
			pa, ok := p.registry[fd]
			if !ok { // the descriptor was deleted earlier in this round, drop the event.
				continue
			}
			pa.Ready = fromEpollEvents(ev.Events)
			keys.Add(pa)
		}

		if keys.Len() > 0 {
			selected := keys.Flip()
			for i := 0; selected[i] != nil; i++ {
				pa := selected[i]
				ready := pa.Ready
				pa.Ready = 0
				if p.registry[pa.FD] != pa { // deleted while waiting in this batch
					continue
				}
				switch err = pa.Callback(pa.FD, ready); err {
				case nil:
				case errors.ErrExecutorShutdown:
					p.drainPendingTasks()
					return err
				default:
					logging.Warnf("error occurs in event-loop: %v", err)
				}
			}
		}

		if doChores {
			doChores = false
			task := p.urgentAsyncTaskQueue.Dequeue()
			for ; task != nil; task = p.urgentAsyncTaskQueue.Dequeue() {
				switch err = task.Run(task.Arg); err {
				case nil:
				case errors.ErrExecutorShutdown:
					queue.PutTask(task)
					p.drainPendingTasks()
					return err
				default:
					logging.Warnf("error occurs in user-defined function, %v", err)
				}
				queue.PutTask(task)
			}
			for i := 0; i < MaxAsyncTasksAtOneTime; i++ {
				if task = p.asyncTaskQueue.Dequeue(); task == nil {
					break
				}
				switch err = task.Run(task.Arg); err {
				case nil:
				case errors.ErrExecutorShutdown:
					queue.PutTask(task)
					p.drainPendingTasks()
					return err
				default:
					logging.Warnf("error occurs in user-defined function, %v", err)
				}
				queue.PutTask(task)
			}
			atomic.StoreInt32(&p.wakeupCall, 0)
			if (!p.asyncTaskQueue.IsEmpty() || !p.urgentAsyncTaskQueue.IsEmpty()) &&
				atomic.CompareAndSwapInt32(&p.wakeupCall, 0, 1) {
				if err = p.wakePoller(); err != nil {
					doChores = true
				}
			}
		}

		if n == el.size {
			el.expand()
		} else if n < el.size>>1 {
			el.shrink()
		}
	}
}

// drainPendingTasks runs whatever is left in both task queues, the polling
// loop calls it on its way out so that accepted tasks are not dropped.
func (p *Poller) drainPendingTasks() {
	for {
		task := p.urgentAsyncTaskQueue.Dequeue()
		if task == nil {
			task = p.asyncTaskQueue.Dequeue()
		}
		if task == nil {
			return
		}
		if err := task.Run(task.Arg); err != nil && err != errors.ErrExecutorShutdown {
			logging.Warnf("error occurs in user-defined function, %v", err)
		}
		queue.PutTask(task)
	}
}

// Attachment returns the attachment registered for fd. It must be called on
// the polling goroutine.
func (p *Poller) Attachment(fd int) (*PollAttachment, bool) {
	pa, ok := p.registry[fd]
	return pa, ok
}

// AddReadWrite registers the given file-descriptor with readable and writable events to the poller.
func (p *Poller) AddReadWrite(pa *PollAttachment) error {
	if err := os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, pa.FD,
			&unix.EpollEvent{Fd: int32(pa.FD), Events: readWriteEvents})); err != nil {
		return err
	}
	p.registry[pa.FD] = pa
	return nil
}

// AddRead registers the given file-descriptor with readable event to the poller.
func (p *Poller) AddRead(pa *PollAttachment) error {
	if err := os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, pa.FD,
			&unix.EpollEvent{Fd: int32(pa.FD), Events: readEvents})); err != nil {
		return err
	}
	p.registry[pa.FD] = pa
	return nil
}

// AddWrite registers the given file-descriptor with writable event to the poller.
func (p *Poller) AddWrite(pa *PollAttachment) error {
	if err := os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, pa.FD,
			&unix.EpollEvent{Fd: int32(pa.FD), Events: writeEvents})); err != nil {
		return err
	}
	p.registry[pa.FD] = pa
	return nil
}

// ModRead renews the given file-descriptor with readable event in the poller.
func (p *Poller) ModRead(pa *PollAttachment) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, pa.FD,
			&unix.EpollEvent{Fd: int32(pa.FD), Events: readEvents}))
}

// ModReadWrite renews the given file-descriptor with readable and writable events in the poller.
func (p *Poller) ModReadWrite(pa *PollAttachment) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, pa.FD,
			&unix.EpollEvent{Fd: int32(pa.FD), Events: readWriteEvents}))
}

// Delete removes the given file-descriptor from the poller.
// EBADF and ENOENT are expected when fd was closed first, the kernel drops
// closed descriptors from epoll on its own.
func (p *Poller) Delete(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(p.registry, fd)
	switch err {
	case nil, unix.EBADF, unix.ENOENT:
		return nil
	default:
		return os.NewSyscallError("epoll_ctl del", err)
	}
}

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

import "golang.org/x/sys/unix"

const (
	// InitPollEventsCap represents the initial capacity of poller event-list.
	InitPollEventsCap = 128
	// MaxPollEventsCap is the maximum limitation of events that the poller can process.
	MaxPollEventsCap = 1024
	// MinPollEventsCap is the minimum limitation of events that the poller can process.
	MinPollEventsCap = 32
	// MaxAsyncTasksAtOneTime is the maximum amount of asynchronous tasks that the poller will process at one time.
	MaxAsyncTasksAtOneTime = 256

	readEvents      = unix.EPOLLIN | unix.EPOLLPRI
	writeEvents     = unix.EPOLLOUT
	readWriteEvents = readEvents | writeEvents
	errEvents       = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

// fromEpollEvents converts raw epoll event bits into the portable IOEvent bitmask.
func fromEpollEvents(ev uint32) IOEvent {
	var ready IOEvent
	if ev&readEvents != 0 {
		ready |= EventRead
	}
	if ev&writeEvents != 0 {
		ready |= EventWrite
	}
	if ev&errEvents != 0 {
		ready |= EventErr
	}
	return ready
}

type eventList struct {
	size   int
	events []unix.EpollEvent
}

func newEventList(size int) *eventList {
	return &eventList{size, make([]unix.EpollEvent, size)}
}

func (el *eventList) expand() {
	if newSize := el.size << 1; newSize <= MaxPollEventsCap {
		el.size = newSize
		el.events = make([]unix.EpollEvent, newSize)
	}
}

func (el *eventList) shrink() {
	if newSize := el.size >> 1; newSize >= MinPollEventsCap {
		el.size = newSize
		el.events = make([]unix.EpollEvent, newSize)
	}
}

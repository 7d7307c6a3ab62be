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

package netpoll

import "sync"

// IOEvent is the OS-independent bitmask of ready I/O events, assembled by the
// poller from epoll events or kqueue filters during event collection.
type IOEvent = uint32

const (
	// EventRead is set when the descriptor is ready for reading.
	EventRead IOEvent = 0x1
	// EventWrite is set when the descriptor is ready for writing.
	EventWrite IOEvent = 0x2
	// EventErr is set on exceptional conditions, like the peer closing the
	// connection or an error being pending on the descriptor.
	EventErr IOEvent = 0x4
)

// IsReadEvent checks if the event is a read event.
func IsReadEvent(event IOEvent) bool {
	return event&EventRead != 0
}

// IsWriteEvent checks if the event is a write event.
func IsWriteEvent(event IOEvent) bool {
	return event&EventWrite != 0
}

// IsErrorEvent checks if the event is an error event.
func IsErrorEvent(event IOEvent) bool {
	return event&EventErr != 0
}

// PollEventHandler is the callback invoked for a ready PollAttachment.
type PollEventHandler func(fd int, ev IOEvent) error

// PollAttachment is the registration handle of a file descriptor,
// it is what a Poller monitors and what a KeySet stores.
type PollAttachment struct {
	FD       int
	Callback PollEventHandler

	// Ready accumulates the events collected for this attachment during the
	// current poll round, it is stamped by the poller and zeroed again when
	// the attachment is drained from the ready batch.
	Ready IOEvent
}

var pollAttachmentPool = sync.Pool{New: func() any { return new(PollAttachment) }}

// GetPollAttachment attempts to get a cached PollAttachment from pool.
func GetPollAttachment() *PollAttachment {
	return pollAttachmentPool.Get().(*PollAttachment)
}

// PutPollAttachment put a unused PollAttachment back to pool.
// An attachment that may still sit in the current ready batch must not be
// recycled until the batch has been fully drained.
func PutPollAttachment(pa *PollAttachment) {
	if pa == nil {
		return
	}
	pa.FD, pa.Callback, pa.Ready = 0, nil, 0
	pollAttachmentPool.Put(pa)
}

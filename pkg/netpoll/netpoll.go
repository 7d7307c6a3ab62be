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

/*
Package netpoll provides an event-driven interface for monitoring file descriptors.

The underlying facility of event notification is OS-specific:
  - epoll on Linux - https://man7.org/linux/man-pages/man7/epoll.7.html
  - kqueue on *BSD/Darwin - https://man.freebsd.org/cgi/man.cgi?kqueue

A PollAttachment pairs a file descriptor with the callback invoked when an
event occurs on that descriptor. Register it to a Poller with AddRead,
AddWrite or AddReadWrite, then start the event loop:

	poller, err := netpoll.OpenPoller()
	if err != nil {
		// handle error
	}
	defer poller.Close()

	pa := netpoll.PollAttachment{
		FD: fd,
		Callback: func(fd int, ev netpoll.IOEvent) error {
			if netpoll.IsErrorEvent(ev) {
				// tear the descriptor down
				return nil
			}
			if netpoll.IsReadEvent(ev) {
				// read from fd
			}
			if netpoll.IsWriteEvent(ev) {
				// write to fd
			}
			return nil
		},
	}
	if err := poller.AddRead(&pa); err != nil {
		// handle error
	}

	poller.Polling(netpoll.DefaultKeySetCap)

Each round of Polling gathers the ready attachments into a KeySet, a
double-buffered insertion-ordered batch, and then drains the flipped batch by
invoking every attachment's callback. Registrations mutated by a callback
never disturb the batch being drained.

Once Polling has begun, attachments must only be registered or deleted on the
polling goroutine, usually from a callback or from a task submitted through
Trigger.
*/
package netpoll

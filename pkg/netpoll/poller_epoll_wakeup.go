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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/evloop/evloop/pkg/logging"
)

// Make the endianness of bytes compatible with more linux OSs under different processor-architectures,
// according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

func (p *Poller) addWakeupEvent() error {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return os.NewSyscallError("eventfd", err)
	}
	p.efd, p.efdBuf = efd, make([]byte, 8)
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, p.efd,
			&unix.EpollEvent{Fd: int32(p.efd), Events: readEvents}))
}

func (p *Poller) wakePoller() error {
retry:
	_, err := unix.Write(p.efd, b)
	if err == nil || err == unix.EAGAIN {
		return nil
	}
	if err == unix.EINTR {
		goto retry
	}
	logging.Warnf("failed to wake up the poller: %v", err)
	return os.NewSyscallError("write", err)
}

func (p *Poller) drainWakeupEvent() {
	_, _ = unix.Read(p.efd, p.efdBuf)
}

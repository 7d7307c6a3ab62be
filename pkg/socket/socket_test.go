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

package socket_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/evloop/evloop/pkg/socket"
)

func TestTCPListener(t *testing.T) {
	fd, addr, err := socket.TCPListener("tcp", "127.0.0.1:0",
		socket.Option{SetSockOpt: socket.SetReuseAddr, Opt: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })
	require.NotNil(t, addr)

	// The requested port was 0, ask the kernel which one it picked.
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	local := socket.SockaddrToTCPAddr(sa)
	require.NotNil(t, local)

	c, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer c.Close()

	var (
		nfd    int
		remote net.Addr
	)
	deadline := time.Now().Add(5 * time.Second)
	for {
		nfd, remote, err = socket.Accept(fd)
		if err != unix.EAGAIN {
			break
		}
		require.False(t, time.Now().After(deadline), "timed out waiting for the connection")
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(nfd) })
	require.NoError(t, socket.SetNoDelay(nfd, 1))
	assert.Contains(t, remote.String(), "127.0.0.1:")

	_, err = c.Write([]byte("olleh"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	var n int
	for {
		n, err = unix.Read(nfd, buf)
		if err != unix.EAGAIN {
			break
		}
		require.False(t, time.Now().After(deadline), "timed out waiting for data")
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, "olleh", string(buf[:n]))
}

func TestTCPListenerRejectsUnknownNetworks(t *testing.T) {
	_, _, err := socket.TCPListener("udp", "127.0.0.1:0")
	assert.Error(t, err)

	_, _, err = socket.TCPListener("tcp", "127.0.0.1:port")
	assert.Error(t, err)
}

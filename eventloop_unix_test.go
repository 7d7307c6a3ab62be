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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/evloop/evloop/pkg/errors"
	"github.com/evloop/evloop/pkg/netpoll"
)

func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	p := make([]int, 2)
	require.NoError(t, unix.Pipe(p))
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return p[0], p[1]
}

func testSocketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollExecutorServesTasksAndIO(t *testing.T) {
	pe, err := NewPollExecutor(WithName("poll"))
	require.NoError(t, err)
	r, w := testPipe(t)

	var hits int32
	got := make(chan string, 4)
	require.NoError(t, pe.RegisterRead(r, func(fd int, ev netpoll.IOEvent) error {
		assert.Equal(t, r, fd)
		assert.True(t, netpoll.IsReadEvent(ev))
		atomic.AddInt32(&hits, 1)
		buf := make([]byte, 64)
		n, err := unix.Read(fd, buf)
		if err != nil {
			return err
		}
		got <- string(buf[:n])
		return nil
	}))

	_, err = unix.Write(w, []byte("ping"))
	require.NoError(t, err)
	select {
	case msg := <-got:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("read callback was not invoked")
	}

	// Tasks share the executor goroutine with the I/O callbacks.
	done := make(chan struct{})
	require.NoError(t, pe.Execute(context.Background(), RunnableFunc(func(context.Context) error {
		close(done)
		return nil
	})))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	require.NoError(t, pe.Deregister(r))
	time.Sleep(200 * time.Millisecond) // deregistration is asynchronous
	_, err = unix.Write(w, []byte("pong"))
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "callback must not fire after deregistration")

	f := pe.ShutdownGracefully(0, 5*time.Second)
	require.True(t, pe.AwaitTermination(10*time.Second))
	assert.True(t, f.IsDone())
	assert.NoError(t, f.Err())
	assert.True(t, pe.IsTerminated())
}

func TestPollExecutorModifyEvents(t *testing.T) {
	pe, err := NewPollExecutor(WithName("modify"))
	require.NoError(t, err)
	sock, _ := testSocketpair(t)

	// A socket with buffer space is immediately writable, ModifyRead must
	// silence those events again.
	var writable int32
	first := make(chan struct{}, 1)
	require.NoError(t, pe.RegisterReadWrite(sock, func(fd int, ev netpoll.IOEvent) error {
		if netpoll.IsWriteEvent(ev) {
			if atomic.AddInt32(&writable, 1) == 1 {
				first <- struct{}{}
				return pe.ModifyRead(fd)
			}
		}
		return nil
	}))

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("write readiness was never reported")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		before := atomic.LoadInt32(&writable)
		time.Sleep(200 * time.Millisecond)
		if atomic.LoadInt32(&writable) == before {
			break
		}
		require.True(t, time.Now().Before(deadline), "write events kept firing after ModifyRead")
	}

	pe.ShutdownGracefully(0, 0)
	require.True(t, pe.AwaitTermination(10*time.Second))
}

func TestPollExecutorRegistrationGuards(t *testing.T) {
	pe, err := NewPollExecutor(WithName("guards"))
	require.NoError(t, err)

	assert.ErrorIs(t, pe.RegisterRead(0, nil), errorx.ErrNilCallback)
	assert.ErrorIs(t, pe.Execute(context.Background(), nil), errorx.ErrNilRunnable)
	assert.ErrorIs(t, pe.Schedule(context.Background(), RunnableFunc(func(context.Context) error { return nil }), time.Second),
		errorx.ErrUnsupportedOp)

	pe.ShutdownGracefully(0, 0)
	require.True(t, pe.AwaitTermination(10*time.Second))

	cb := func(int, netpoll.IOEvent) error { return nil }
	assert.ErrorIs(t, pe.RegisterRead(1, cb), errorx.ErrExecutorTerminated)
	assert.ErrorIs(t, pe.Execute(context.Background(), RunnableFunc(func(context.Context) error { return nil })),
		errorx.ErrExecutorShutdown)
	assert.ErrorIs(t, pe.ModifyRead(1), errorx.ErrExecutorShutdown)
	assert.ErrorIs(t, pe.Deregister(1), errorx.ErrExecutorShutdown)
}

func TestPollExecutorQuietPeriodRestartsOnSubmission(t *testing.T) {
	pe, err := NewPollExecutor(WithName("poll-quiet"))
	require.NoError(t, err)

	const quiet = 800 * time.Millisecond
	start := time.Now()
	pe.ShutdownGracefully(quiet, 30*time.Second)

	time.Sleep(200 * time.Millisecond)
	ran := make(chan struct{})
	require.NoError(t, pe.Execute(context.Background(), RunnableFunc(func(context.Context) error {
		close(ran)
		return nil
	})), "submissions during the quiet period must be accepted")

	require.True(t, pe.AwaitTermination(10*time.Second))
	select {
	case <-ran:
	default:
		t.Fatal("task accepted during the quiet period never ran")
	}
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond+quiet-50*time.Millisecond)
}

func TestPollExecutorGroup(t *testing.T) {
	g, err := NewPollExecutorGroup(3, WithName("pollers"))
	require.NoError(t, err)
	require.Equal(t, 3, g.ExecutorCount())

	var ran int32
	done := make(chan struct{}, 30)
	for i := 0; i < 30; i++ {
		require.NoError(t, g.Execute(context.Background(), RunnableFunc(func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			done <- struct{}{}
			return nil
		})))
	}
	for i := 0; i < 30; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("group tasks did not all run")
		}
	}
	assert.EqualValues(t, 30, atomic.LoadInt32(&ran))

	g.ShutdownGracefully(0, 0)
	require.True(t, g.AwaitTermination(10*time.Second))
	assert.True(t, g.IsTerminated())
}

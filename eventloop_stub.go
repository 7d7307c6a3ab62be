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

//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package evloop

import (
	"context"
	"time"

	errorx "github.com/evloop/evloop/pkg/errors"
	"github.com/evloop/evloop/pkg/netpoll"
)

// PollExecutor requires an OS poller and is not available on this platform,
// NewPollExecutor always fails here and no instance ever exists.
type PollExecutor struct {
	attributeMap
}

// NewPollExecutor returns ErrUnsupportedPlatform on this platform.
func NewPollExecutor(_ ...Option) (*PollExecutor, error) {
	return nil, errorx.ErrUnsupportedPlatform
}

// Execute implements Executor.
func (pe *PollExecutor) Execute(context.Context, Runnable) error {
	return errorx.ErrUnsupportedPlatform
}

// Schedule implements Executor.
func (pe *PollExecutor) Schedule(context.Context, Runnable, time.Duration) error {
	return errorx.ErrUnsupportedOp
}

// RegisterRead implements the registration API.
func (pe *PollExecutor) RegisterRead(int, netpoll.PollEventHandler) error {
	return errorx.ErrUnsupportedPlatform
}

// RegisterWrite implements the registration API.
func (pe *PollExecutor) RegisterWrite(int, netpoll.PollEventHandler) error {
	return errorx.ErrUnsupportedPlatform
}

// RegisterReadWrite implements the registration API.
func (pe *PollExecutor) RegisterReadWrite(int, netpoll.PollEventHandler) error {
	return errorx.ErrUnsupportedPlatform
}

// ModifyRead implements the registration API.
func (pe *PollExecutor) ModifyRead(int) error {
	return errorx.ErrUnsupportedPlatform
}

// ModifyReadWrite implements the registration API.
func (pe *PollExecutor) ModifyReadWrite(int) error {
	return errorx.ErrUnsupportedPlatform
}

// Deregister implements the registration API.
func (pe *PollExecutor) Deregister(int) error {
	return errorx.ErrUnsupportedPlatform
}

// ShutdownGracefully implements Executor.
func (pe *PollExecutor) ShutdownGracefully(time.Duration, time.Duration) *Future {
	return nil
}

// Shutdown implements Executor.
//
// Deprecated: use ShutdownGracefully instead.
func (pe *PollExecutor) Shutdown() {}

// IsShuttingDown implements Executor.
func (pe *PollExecutor) IsShuttingDown() bool { return false }

// IsShutdown implements Executor.
func (pe *PollExecutor) IsShutdown() bool { return false }

// IsTerminated implements Executor.
func (pe *PollExecutor) IsTerminated() bool { return false }

// AwaitTermination implements Executor.
func (pe *PollExecutor) AwaitTermination(time.Duration) bool { return false }

// TerminationFuture implements Executor.
func (pe *PollExecutor) TerminationFuture() *Future { return nil }

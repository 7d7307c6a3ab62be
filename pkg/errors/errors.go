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

// Package errors defines common errors for evloop.
package errors

import "errors"

var (
	// ErrExecutorShutdown occurs when submitting a task to an executor that has stopped accepting work.
	ErrExecutorShutdown = errors.New("evloop: executor is going to be shutdown")
	// ErrExecutorInShutdown occurs when attempting to shut an executor down more than once.
	ErrExecutorInShutdown = errors.New("evloop: executor is already in shutdown")
	// ErrExecutorTerminated occurs when trying to do something with an executor that has fully terminated.
	ErrExecutorTerminated = errors.New("evloop: executor is terminated")
	// ErrInvalidExecutorCount occurs when constructing a group with a non-positive number of executors.
	ErrInvalidExecutorCount = errors.New("evloop: executor count must be positive")
	// ErrTooManyExecutorThreads occurs when attempting to set up more than 10,000 executor goroutines under LockOSThread mode.
	ErrTooManyExecutorThreads = errors.New("evloop: too many executors under LockOSThread mode")
	// ErrUnsupportedOp occurs when calling some methods that are either not supported or have not been implemented yet.
	ErrUnsupportedOp = errors.New("evloop: unsupported operation")
	// ErrUnsupportedPlatform occurs when requesting a poll executor on an operating system without a poller.
	ErrUnsupportedPlatform = errors.New("evloop: unsupported platform")
	// ErrNilRunnable occurs when trying to execute a nil runnable.
	ErrNilRunnable = errors.New("evloop: nil runnable is not allowed")
	// ErrNilCallback occurs when registering a file descriptor with a nil event callback.
	ErrNilCallback = errors.New("evloop: nil event callback is not allowed")
	// ErrEmptyAttributeKey occurs when registering an attribute key with an empty name.
	ErrEmptyAttributeKey = errors.New("evloop: empty attribute key name is not allowed")
	// ErrDuplicateAttributeKey occurs when registering an attribute key name that already exists.
	ErrDuplicateAttributeKey = errors.New("evloop: attribute key name is already in use")
	// ErrUnregisteredFD occurs when modifying or deregistering a file descriptor that was never registered.
	ErrUnregisteredFD = errors.New("evloop: file descriptor is not registered with the poller")
	// ErrUnsupportedProtocol occurs when trying to create a socket with an unknown protocol.
	ErrUnsupportedProtocol = errors.New("evloop: only tcp, tcp4 and tcp6 are supported")
)

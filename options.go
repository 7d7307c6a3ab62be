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

package evloop

import (
	"github.com/evloop/evloop/pkg/logging"
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	return opts
}

// Options are configurations for an executor group.
type Options struct {
	// Name is used as the prefix of the group's log lines. It defaults to
	// "evloop" when left empty.
	Name string

	// LockOSThread is used to determine whether each executor goroutine is
	// locked to an OS thread, it is useful when the tasks call into
	// thread-sensitive libraries such as graphics or audio.
	LockOSThread bool

	// KeySetCap is the initial capacity of the ready-key sets owned by
	// poll executors, it will be rounded up to the next power of two.
	// A non-positive value falls back to the built-in default.
	KeySetCap int

	// Logger is the customized logger for logging info, if it is not set,
	// then evloop will use the default logger powered by zap.
	Logger logging.Logger

	// LogPath is the local path where logs will be written, this is the
	// easy way to set up logging, evloop instantiates a default
	// uber-go/zap logger with this given log path, you are also allowed
	// to employ your own logger during the lifetime by implementing the
	// logging.Logger interface.
	//
	// Note that this option can be overridden by the option Logger.
	LogPath string

	// LogLevel indicates the logging level, it should be used along with
	// LogPath.
	LogLevel logging.Level
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithName sets up the name of an executor group.
func WithName(name string) Option {
	return func(opts *Options) {
		opts.Name = name
	}
}

// WithLockOSThread sets up LockOSThread mode for executor goroutines.
func WithLockOSThread(lockOSThread bool) Option {
	return func(opts *Options) {
		opts.LockOSThread = lockOSThread
	}
}

// WithKeySetCap sets up the initial capacity of the poll executors'
// ready-key sets.
func WithKeySetCap(keySetCap int) Option {
	return func(opts *Options) {
		opts.KeySetCap = keySetCap
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithLogPath sets up the local path of the log file.
func WithLogPath(fileName string) Option {
	return func(opts *Options) {
		opts.LogPath = fileName
	}
}

// WithLogLevel sets up the logging level.
func WithLogLevel(lvl logging.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = lvl
	}
}

// setupOptions fills in the defaults: the name prefix and the logger. When
// LogPath is set a zap file logger is built and its flush function returned,
// the owner must call it once it is done logging.
func setupOptions(options *Options) (flush func() error, err error) {
	if options.Name == "" {
		options.Name = "evloop"
	}
	if options.Logger != nil {
		return nil, nil
	}
	if options.LogPath != "" {
		var logger logging.Logger
		if logger, flush, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
			return nil, err
		}
		options.Logger = logger
		return flush, nil
	}
	options.Logger = logging.GetDefaultLogger()
	return nil, nil
}

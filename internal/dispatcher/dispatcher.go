/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package dispatcher routes operator commands to their handlers.
// dispatcher 包将操作员命令路由到对应的处理函数。
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxSeconds is the largest number of seconds that fits a time.Duration
// MaxSeconds 是能够用 time.Duration 表示的最大秒数
const MaxSeconds int64 = math.MaxInt64 / int64(time.Second)

// Common errors for command dispatching
// 命令分发的常见错误
var (
	// ErrQuit asks the control loop to run the shutdown sequence
	// ErrQuit 请求控制循环执行关闭流程
	ErrQuit = errors.New("quit requested")

	// ErrMissingArgument indicates a required argument is absent
	// ErrMissingArgument 表示缺少必需的参数
	ErrMissingArgument = errors.New("missing argument")

	// ErrInvalidArgument indicates an argument could not be parsed
	// ErrInvalidArgument 表示参数无法解析
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownCommand indicates no handler is registered for the command
	// ErrUnknownCommand 表示没有为该命令注册处理函数
	ErrUnknownCommand = errors.New("unknown command")
)

// HandlerFunc handles one command; args excludes the command name
// HandlerFunc 处理一条命令，args 不包含命令名
type HandlerFunc func(ctx context.Context, args []string) error

// Dispatcher maps command names to handlers
// Dispatcher 将命令名映射到处理函数
type Dispatcher struct {
	handlers map[string]HandlerFunc
	order    []string
	mu       sync.RWMutex
}

// NewDispatcher creates a new Dispatcher instance
// NewDispatcher 创建一个新的 Dispatcher 实例
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler registers a handler for a command name
// RegisterHandler 为命令名注册处理函数
func (d *Dispatcher) RegisterHandler(name string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; !exists {
		d.order = append(d.order, name)
	}
	d.handlers[name] = handler
}

// Commands returns the registered command names in registration order
// Commands 按注册顺序返回已注册的命令名
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Dispatch runs the handler for argv[0]. An empty argv is a no-op.
// Dispatch 执行 argv[0] 对应的处理函数，空 argv 不做任何操作。
func (d *Dispatcher) Dispatch(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return nil
	}

	d.mu.RLock()
	handler, ok := d.handlers[argv[0]]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, argv[0])
	}

	return handler(ctx, argv[1:])
}

// ParsePositiveSeconds parses a strictly positive decimal integer no larger
// than MaxSeconds
// ParsePositiveSeconds 解析严格为正且不超过 MaxSeconds 的十进制整数
func ParsePositiveSeconds(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return 0, fmt.Errorf("%w: time must be positive", ErrInvalidArgument)
		}
		return 0, fmt.Errorf("%w: time must be at most %d seconds", ErrInvalidArgument, MaxSeconds)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidArgument, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: time must be positive", ErrInvalidArgument)
	}
	if n > MaxSeconds {
		return 0, fmt.Errorf("%w: time must be at most %d seconds", ErrInvalidArgument, MaxSeconds)
	}
	return n, nil
}

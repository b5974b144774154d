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

// Package monitor provides maximum age enforcement for supervised processes.
// monitor 包提供受监管进程的最大运行时长限制。
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/seatunnel/procadmin/internal/process"
	"go.uber.org/zap"
)

// DefaultInterval is the default background check interval
// DefaultInterval 是默认的后台检查间隔
const DefaultInterval = time.Second

// Requester issues graceful termination requests
// Requester 发出优雅终止请求
type Requester interface {
	RequestGraceful(index int) (process.Snapshot, bool, error)
}

// Enforcer terminates processes that outlive the maximum age
// Enforcer 终止超过最大运行时长的进程
type Enforcer struct {
	registry  *process.Registry
	requester Requester
	maxAge    time.Duration
	logger    *zap.Logger
	out       io.Writer
	now       func() time.Time

	// checkMu serializes checks from the control loop and the ticker
	// checkMu 串行化来自控制循环和定时器的检查
	checkMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewEnforcer creates a new Enforcer instance; maxAge <= 0 disables it
// NewEnforcer 创建一个新的 Enforcer 实例，maxAge <= 0 表示禁用
func NewEnforcer(registry *process.Registry, requester Requester, maxAge time.Duration, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		registry:  registry,
		requester: requester,
		maxAge:    maxAge,
		logger:    logger,
		out:       os.Stdout,
		now:       time.Now,
	}
}

// SetOutput sets the operator output
// SetOutput 设置操作员输出
func (e *Enforcer) SetOutput(w io.Writer) {
	e.checkMu.Lock()
	defer e.checkMu.Unlock()
	e.out = w
}

// SetClock replaces the time source
// SetClock 替换时间源
func (e *Enforcer) SetClock(now func() time.Time) {
	e.checkMu.Lock()
	defer e.checkMu.Unlock()
	e.now = now
}

// Enabled reports whether a maximum age is configured
// Enabled 报告是否配置了最大运行时长
func (e *Enforcer) Enabled() bool {
	return e.maxAge > 0
}

// Check requests graceful termination of every live, unarmed process whose
// age reached the maximum, and returns how many requests were sent.
// Check 对每个存活、未设置标记且运行时长达到上限的进程请求优雅终止，返回发送的请求数。
func (e *Enforcer) Check() int {
	if !e.Enabled() {
		return 0
	}

	e.checkMu.Lock()
	defer e.checkMu.Unlock()

	now := e.now()
	limit := int64(e.maxAge / time.Second)
	requested := 0
	for _, snap := range e.registry.Active() {
		if snap.EscalationArmed || now.Sub(snap.StartedAt) < e.maxAge {
			continue
		}

		// The armed flag is re-checked under the registry lock
		// 标记会在注册表锁内再次检查
		_, sent, err := e.requester.RequestGraceful(snap.Index)
		if err != nil {
			e.logger.Warn("max age termination failed",
				zap.Int("pid", snap.PID),
				zap.String("label", snap.Label),
				zap.Error(err))
			continue
		}
		if !sent {
			continue
		}

		fmt.Fprintf(e.out, "Process %d (%s) reached max age (%d seconds)\n", snap.PID, snap.Label, limit)
		e.logger.Info("max age reached",
			zap.Int("pid", snap.PID),
			zap.String("label", snap.Label),
			zap.Duration("max_age", e.maxAge))
		requested++
	}
	return requested
}

// Start runs Check on a ticker until ctx is done or Stop is called.
// A non-positive interval or a disabled enforcer starts nothing.
// Start 按定时器运行 Check，直到 ctx 结束或调用 Stop；间隔非正或未启用时不启动。
func (e *Enforcer) Start(ctx context.Context, interval time.Duration) {
	if !e.Enabled() || interval <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}

	var loopCtx context.Context
	loopCtx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true

	e.logger.Debug("max age enforcer started",
		zap.Duration("max_age", e.maxAge),
		zap.Duration("interval", interval))

	go e.loop(loopCtx, interval, e.done)
}

// Stop stops the background ticker
// Stop 停止后台定时器
func (e *Enforcer) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.cancel()
	done := e.done
	e.running = false
	e.mu.Unlock()

	<-done
}

func (e *Enforcer) loop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Check()
		}
	}
}

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

package process

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// ErrReaperRunning indicates Start was called twice
// ErrReaperRunning 表示重复调用了 Start
var ErrReaperRunning = errors.New("reaper is already running")

// WaitFunc collects one terminated child without blocking.
// It returns pid <= 0 when nothing is pending.
// WaitFunc 以非阻塞方式回收一个已终止的子进程，没有待回收进程时返回 pid <= 0。
type WaitFunc func(status *syscall.WaitStatus) (int, error)

// waitAnyChild is wait4(-1, WNOHANG)
func waitAnyChild(status *syscall.WaitStatus) (int, error) {
	return syscall.Wait4(-1, status, syscall.WNOHANG, nil)
}

// Reaper detects child termination and reconciles it into the Registry
// Reaper 检测子进程终止并将结果同步到 Registry
type Reaper struct {
	registry *Registry
	logger   *zap.Logger
	wait     WaitFunc

	sigCh  chan os.Signal
	cancel context.CancelFunc
	done   chan struct{}

	// mu protects the running state
	// mu 保护运行状态
	mu      sync.Mutex
	running bool
}

// NewReaper creates a new Reaper instance
// NewReaper 创建一个新的 Reaper 实例
func NewReaper(registry *Registry, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		registry: registry,
		logger:   logger,
		wait:     waitAnyChild,
	}
}

// SetWaitFunc replaces the wait primitive
// SetWaitFunc 替换 wait 原语
func (r *Reaper) SetWaitFunc(wait WaitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wait = wait
}

// Start subscribes to SIGCHLD and reaps on every notification
// Start 订阅 SIGCHLD 并在每次通知时执行回收
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrReaperRunning
	}

	// Buffer of one is enough: notifications coalesce and every wake-up drains all.
	// 缓冲区为 1 即可：通知会合并，每次唤醒都会全部回收。
	r.sigCh = make(chan os.Signal, 1)
	signal.Notify(r.sigCh, syscall.SIGCHLD)

	var loopCtx context.Context
	loopCtx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx, r.sigCh, r.done)

	r.logger.Debug("reaper started")
	return nil
}

// Stop unsubscribes from SIGCHLD and waits for the loop to exit
// Stop 取消订阅 SIGCHLD 并等待循环退出
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	signal.Stop(r.sigCh)
	r.cancel()
	done := r.done
	r.running = false
	r.mu.Unlock()

	<-done
	r.logger.Debug("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, sigCh <-chan os.Signal, done chan<- struct{}) {
	defer close(done)

	// Children may have exited before the subscription
	// 子进程可能在订阅之前就已退出
	r.Reap()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			r.Reap()
		}
	}
}

// Reap drains every pending termination and returns how many were collected.
// Reap 回收所有待处理的终止子进程并返回回收数量。
//
// Waiting and recording happen under the registry lock, so a PID is never
// released to the OS while a signal send could still observe it as alive.
// 等待与记录都在注册表锁内完成，因此在信号发送仍可能认为其存活时，PID 不会被释放给操作系统。
func (r *Reaper) Reap() int {
	r.mu.Lock()
	wait := r.wait
	r.mu.Unlock()

	var events []Event

	r.registry.mu.Lock()
	for {
		var status syscall.WaitStatus
		pid, err := wait(&status)
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			// ECHILD: no children left / 没有子进程
			break
		}
		if ev, ok := r.registry.recordExitLocked(pid, status); ok {
			events = append(events, ev)
		}
	}
	r.registry.mu.Unlock()

	for _, ev := range events {
		switch ev.Type {
		case EventUntracked:
			r.logger.Warn("reaped untracked child",
				zap.Int("pid", ev.Snapshot.PID),
				zap.Int("exit_code", ev.Snapshot.ExitCode),
				zap.Int("signal", ev.Snapshot.Signal))
		default:
			r.logger.Info("process terminated",
				zap.Int("pid", ev.Snapshot.PID),
				zap.String("label", ev.Snapshot.Label),
				zap.Int("exit_code", ev.Snapshot.ExitCode),
				zap.Int("signal", ev.Snapshot.Signal))
		}
	}
	r.registry.notify(events...)

	return len(events)
}

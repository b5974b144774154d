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

// Package process provides child process tracking for the supervisor.
// process 包提供监管器的子进程跟踪功能。
//
// This package provides:
// 此包提供：
// - A fixed-capacity, append-only process registry / 固定容量、只追加的进程注册表
// - Process launching / 进程启动
// - Asynchronous reaping of terminated children / 异步回收已终止的子进程
package process

import (
	"errors"
	"math"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrRegistryFull indicates the registry reached its capacity
	// ErrRegistryFull 表示注册表已达到容量上限
	ErrRegistryFull = errors.New("maximum number of processes reached")

	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrEntryNotFound indicates no entry exists at the given index
	// ErrEntryNotFound 表示给定索引处没有条目
	ErrEntryNotFound = errors.New("process entry not found")
)

// Default configuration values
// 默认配置值
const (
	// DefaultCapacity is the default number of entries a registry can hold
	// DefaultCapacity 是注册表默认可容纳的条目数
	DefaultCapacity = 10

	// DefaultLabelMaxLen is the default maximum label length in bytes
	// DefaultLabelMaxLen 是标签的默认最大字节长度
	DefaultLabelMaxLen = 255

	// Absent marks a missing exit code or signal
	// Absent 表示缺失的退出码或信号
	Absent = -1
)

// entry is the mutable record of one launched process.
// Only the Registry touches it, always with mu held.
type entry struct {
	pid             int
	label           string
	startedAt       time.Time
	exitedAt        time.Time
	exitCode        int
	signal          int
	terminated      bool
	escalationArmed bool
}

// Snapshot is a consistent copy of a process entry
// Snapshot 是进程条目的一致性副本
type Snapshot struct {
	Index           int       `json:"index" yaml:"index"`
	PID             int       `json:"pid" yaml:"pid"`
	Label           string    `json:"label" yaml:"label"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	ExitedAt        time.Time `json:"exited_at,omitempty" yaml:"exited_at,omitempty"`
	ExitCode        int       `json:"exit_code" yaml:"exit_code"`
	Signal          int       `json:"signal" yaml:"signal"`
	Terminated      bool      `json:"terminated" yaml:"terminated"`
	EscalationArmed bool      `json:"escalation_armed" yaml:"escalation_armed"`
}

// ElapsedSeconds returns whole seconds since the process was started
// ElapsedSeconds 返回自进程启动以来的整秒数
func (s Snapshot) ElapsedSeconds(now time.Time) int64 {
	return int64(math.Round(now.Sub(s.StartedAt).Seconds()))
}

// HasExitCode reports whether the process exited normally
// HasExitCode 报告进程是否正常退出
func (s Snapshot) HasExitCode() bool {
	return s.ExitCode != Absent
}

// HasSignal reports whether a termination signal is recorded
// HasSignal 报告是否记录了终止信号
func (s Snapshot) HasSignal() bool {
	return s.Signal != Absent
}

// SpawnFunc creates an OS process and returns its PID
// SpawnFunc 创建操作系统进程并返回其 PID
type SpawnFunc func() (int, error)

// KillFunc delivers a signal to a PID
// KillFunc 向 PID 发送信号
type KillFunc func(pid int, sig syscall.Signal) error

// Registry is the single source of truth for process state.
// Registry 是进程状态的唯一可信来源。
//
// Every multi-field transition happens inside one critical section of mu,
// and readers only receive Snapshots copied under the same lock.
// 每个多字段状态转换都在 mu 的同一临界区内完成，读取方只会得到在同一把锁下复制的快照。
type Registry struct {
	mu          sync.Mutex
	entries     []*entry
	live        map[int]int // pid -> index of a non-terminated entry
	capacity    int
	labelMaxLen int
	untracked   int
	kill        KillFunc
	now         func() time.Time

	handlerMu sync.RWMutex
	handler   EventHandler
}

// NewRegistry creates a registry holding at most capacity entries
// NewRegistry 创建最多容纳 capacity 个条目的注册表
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:     make([]*entry, 0, capacity),
		live:        make(map[int]int),
		capacity:    capacity,
		labelMaxLen: DefaultLabelMaxLen,
		kill:        syscall.Kill,
		now:         time.Now,
	}
}

// SetLabelMaxLen sets the maximum label length in bytes
// SetLabelMaxLen 设置标签的最大字节长度
func (r *Registry) SetLabelMaxLen(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.labelMaxLen = n
	}
}

// SetKillFunc replaces the signal delivery function
// SetKillFunc 替换信号发送函数
func (r *Registry) SetKillFunc(kill KillFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kill = kill
}

// SetClock replaces the time source
// SetClock 替换时间源
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetEventHandler sets the event handler callback
// SetEventHandler 设置事件处理回调
func (r *Registry) SetEventHandler(handler EventHandler) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handler = handler
}

// Capacity returns the maximum number of entries
// Capacity 返回最大条目数
func (r *Registry) Capacity() int {
	return r.capacity
}

// Launch runs spawn and records the new process in the same critical section.
// Launch 在同一临界区内执行 spawn 并记录新进程。
//
// The reaper needs mu to record a death, so a child can never be reaped
// before its entry exists.
// 回收器需要持有 mu 才能记录进程死亡，因此子进程不可能在其条目存在之前被回收。
func (r *Registry) Launch(label string, spawn SpawnFunc) (Snapshot, error) {
	r.mu.Lock()
	if len(r.entries) >= r.capacity {
		r.mu.Unlock()
		return Snapshot{}, ErrRegistryFull
	}

	pid, err := spawn()
	if err != nil {
		r.mu.Unlock()
		return Snapshot{}, err
	}

	e := &entry{
		pid:       pid,
		label:     truncateLabel(label, r.labelMaxLen),
		startedAt: r.now(),
		exitCode:  Absent,
		signal:    Absent,
	}
	r.entries = append(r.entries, e)
	index := len(r.entries) - 1
	r.live[pid] = index
	snap := r.snapshotLocked(index)
	r.mu.Unlock()

	r.notify(Event{Type: EventStarted, Snapshot: snap, Time: snap.StartedAt})
	return snap, nil
}

// Get returns a snapshot of the entry at index
// Get 返回 index 处条目的快照
func (r *Registry) Get(index int) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.entries) {
		return Snapshot{}, false
	}
	return r.snapshotLocked(index), true
}

// All returns snapshots of every entry ever created, in insertion order
// All 按插入顺序返回所有曾创建条目的快照
func (r *Registry) All() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Snapshot, 0, len(r.entries))
	for i := range r.entries {
		result = append(result, r.snapshotLocked(i))
	}
	return result
}

// Active returns snapshots of entries not yet terminated
// Active 返回尚未终止的条目快照
func (r *Registry) Active() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Snapshot
	for i, e := range r.entries {
		if !e.terminated {
			result = append(result, r.snapshotLocked(i))
		}
	}
	return result
}

// Len returns the number of entries ever created
// Len 返回曾创建的条目数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ActiveCount returns the number of entries not yet terminated
// ActiveCount 返回尚未终止的条目数
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Untracked returns how many reaped children had no entry
// Untracked 返回被回收但没有对应条目的子进程数量
func (r *Registry) Untracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.untracked
}

// RequestGraceful sends sig to a live entry that has not been asked to stop yet,
// records the signal and arms escalation. It returns false when the entry is
// already terminated or armed.
// RequestGraceful 向尚未被请求停止的存活条目发送 sig，记录信号并设置升级标记。
// 如果条目已终止或已设置标记，则返回 false。
func (r *Registry) RequestGraceful(index int, sig syscall.Signal) (Snapshot, bool, error) {
	r.mu.Lock()
	if index < 0 || index >= len(r.entries) {
		r.mu.Unlock()
		return Snapshot{}, false, ErrEntryNotFound
	}

	e := r.entries[index]
	if e.terminated || e.escalationArmed {
		snap := r.snapshotLocked(index)
		r.mu.Unlock()
		return snap, false, nil
	}

	if err := r.kill(e.pid, sig); err != nil {
		snap := r.snapshotLocked(index)
		r.mu.Unlock()
		return snap, false, err
	}
	e.signal = int(sig)
	e.escalationArmed = true
	snap := r.snapshotLocked(index)
	r.mu.Unlock()

	r.notify(Event{Type: EventSignalSent, Snapshot: snap, Time: r.clock()})
	return snap, true, nil
}

// SignalIfAlive sends sig to the entry only if the reaper has not marked it
// terminated, and records the signal. The check and the send share one
// critical section with reaping.
// SignalIfAlive 仅在回收器尚未将条目标记为终止时发送 sig 并记录信号。
// 检查与发送和回收共享同一临界区。
func (r *Registry) SignalIfAlive(index int, sig syscall.Signal) (bool, error) {
	r.mu.Lock()
	if index < 0 || index >= len(r.entries) {
		r.mu.Unlock()
		return false, ErrEntryNotFound
	}

	e := r.entries[index]
	if e.terminated {
		r.mu.Unlock()
		return false, nil
	}

	if err := r.kill(e.pid, sig); err != nil {
		r.mu.Unlock()
		return false, err
	}
	e.signal = int(sig)
	snap := r.snapshotLocked(index)
	r.mu.Unlock()

	r.notify(Event{Type: EventSignalSent, Snapshot: snap, Time: r.clock()})
	return true, nil
}

// recordExit records a wait status for pid (used by tests).
func (r *Registry) recordExit(pid int, status syscall.WaitStatus) {
	r.mu.Lock()
	ev, ok := r.recordExitLocked(pid, status)
	r.mu.Unlock()
	if ok {
		r.notify(ev)
	}
}

// recordExitLocked applies a reaped wait status. Must be called with mu held.
// recordExitLocked 应用回收得到的等待状态，必须在持有 mu 时调用。
func (r *Registry) recordExitLocked(pid int, status syscall.WaitStatus) (Event, bool) {
	now := r.now()

	if !status.Exited() && !status.Signaled() {
		return Event{}, false
	}

	index, ok := r.live[pid]
	if !ok {
		r.untracked++
		return Event{
			Type:     EventUntracked,
			Snapshot: untrackedSnapshot(pid, status),
			Time:     now,
		}, true
	}
	delete(r.live, pid)

	e := r.entries[index]
	e.terminated = true
	e.exitedAt = now

	eventType := EventExited
	if status.Exited() {
		e.exitCode = status.ExitStatus()
		e.signal = Absent
	} else {
		e.exitCode = Absent
		e.signal = int(status.Signal())
		eventType = EventKilled
	}

	return Event{Type: eventType, Snapshot: r.snapshotLocked(index), Time: now}, true
}

// snapshotLocked copies the entry at index. Must be called with mu held.
func (r *Registry) snapshotLocked(index int) Snapshot {
	e := r.entries[index]
	return Snapshot{
		Index:           index,
		PID:             e.pid,
		Label:           e.label,
		StartedAt:       e.startedAt,
		ExitedAt:        e.exitedAt,
		ExitCode:        e.exitCode,
		Signal:          e.signal,
		Terminated:      e.terminated,
		EscalationArmed: e.escalationArmed,
	}
}

func (r *Registry) clock() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now()
}

// notify calls the event handler. Never call it with mu held.
func (r *Registry) notify(events ...Event) {
	r.handlerMu.RLock()
	handler := r.handler
	r.handlerMu.RUnlock()

	if handler == nil {
		return
	}
	for _, ev := range events {
		handler(ev)
	}
}

func untrackedSnapshot(pid int, status syscall.WaitStatus) Snapshot {
	snap := Snapshot{Index: -1, PID: pid, ExitCode: Absent, Signal: Absent, Terminated: true}
	if status.Exited() {
		snap.ExitCode = status.ExitStatus()
	} else {
		snap.Signal = int(status.Signal())
	}
	return snap
}

// truncateLabel cuts s to at most max bytes without splitting a UTF-8 rune.
func truncateLabel(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

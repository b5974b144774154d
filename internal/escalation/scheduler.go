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

// Package escalation provides delayed forceful termination for the supervisor.
// escalation 包提供监管器的延迟强制终止功能。
//
// This package provides:
// 此包提供：
// - Graceful termination requests / 优雅终止请求
// - Delayed forceful signals with a liveness re-check / 带存活性复查的延迟强制信号
// - Escalation history tracking / 升级历史跟踪
package escalation

import (
	"sync"
	"syscall"
	"time"

	"github.com/seatunnel/procadmin/internal/process"
	"go.uber.org/zap"
)

// Default configuration values
// 默认配置值
const (
	DefaultDelay        = 5 * time.Second // 默认升级延迟 / Default escalation delay
	DefaultHistoryLimit = 100             // 默认历史记录上限 / Default history limit
)

// Config holds the escalation configuration
// Config 保存升级配置
type Config struct {
	Delay          time.Duration  `json:"delay"`           // 升级延迟 / Escalation delay
	GracefulSignal syscall.Signal `json:"graceful_signal"` // 优雅信号 / Graceful signal
	ForcefulSignal syscall.Signal `json:"forceful_signal"` // 强制信号 / Forceful signal
	HistoryLimit   int            `json:"history_limit"`   // 历史记录上限 / History limit
}

// DefaultConfig returns the default escalation configuration
// DefaultConfig 返回默认升级配置
func DefaultConfig() *Config {
	return &Config{
		Delay:          DefaultDelay,
		GracefulSignal: syscall.SIGTERM,
		ForcefulSignal: syscall.SIGKILL,
		HistoryLimit:   DefaultHistoryLimit,
	}
}

// Outcome is the result of a fired escalation timer
// Outcome 是升级定时器触发后的结果
type Outcome string

const (
	// OutcomeFired indicates the forceful signal was sent
	// OutcomeFired 表示已发送强制信号
	OutcomeFired Outcome = "fired"

	// OutcomeSkipped indicates the process was already terminated
	// OutcomeSkipped 表示进程已终止
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed indicates the signal could not be delivered
	// OutcomeFailed 表示信号发送失败
	OutcomeFailed Outcome = "failed"
)

// Record is one entry of the escalation history
// Record 是升级历史中的一条记录
type Record struct {
	Index   int       `json:"index" yaml:"index"`
	PID     int       `json:"pid" yaml:"pid"`
	Label   string    `json:"label" yaml:"label"`
	ArmedAt time.Time `json:"armed_at" yaml:"armed_at"`
	FiredAt time.Time `json:"fired_at" yaml:"fired_at"`
	Outcome Outcome   `json:"outcome" yaml:"outcome"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Callback is called after an escalation timer fires
// Callback 在升级定时器触发后被调用
type Callback func(record Record)

// Scheduler arms one delayed forceful signal per graceful request
// Scheduler 为每个优雅终止请求设置一个延迟强制信号
type Scheduler struct {
	registry *process.Registry
	logger   *zap.Logger
	config   *Config
	callback Callback

	timers  map[int]*time.Timer
	history []Record
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewScheduler creates a new Scheduler instance
// NewScheduler 创建一个新的 Scheduler 实例
func NewScheduler(registry *process.Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: registry,
		logger:   logger,
		config:   DefaultConfig(),
		timers:   make(map[int]*time.Timer),
	}
}

// SetConfig sets the escalation configuration
// SetConfig 设置升级配置
func (s *Scheduler) SetConfig(config *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	s.logger.Debug("escalation config updated",
		zap.Duration("delay", config.Delay),
		zap.Int("graceful_signal", int(config.GracefulSignal)),
		zap.Int("forceful_signal", int(config.ForcefulSignal)))
}

// GetConfig returns a copy of the current configuration
// GetConfig 返回当前配置的副本
func (s *Scheduler) GetConfig() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	configCopy := *s.config
	return &configCopy
}

// SetCallback sets the escalation callback
// SetCallback 设置升级回调
func (s *Scheduler) SetCallback(callback Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = callback
}

// RequestGraceful sends the graceful signal to a live, unarmed entry and
// schedules its escalation. It returns false when nothing was sent.
// RequestGraceful 向存活且未设置标记的条目发送优雅信号并安排升级，未发送时返回 false。
func (s *Scheduler) RequestGraceful(index int) (process.Snapshot, bool, error) {
	s.mu.Lock()
	sig := s.config.GracefulSignal
	s.mu.Unlock()

	snap, sent, err := s.registry.RequestGraceful(index, sig)
	if err != nil {
		s.logger.Warn("graceful signal failed",
			zap.Int("index", index),
			zap.Int("pid", snap.PID),
			zap.Error(err))
		return snap, false, err
	}
	if !sent {
		return snap, false, nil
	}

	s.logger.Info("graceful signal sent",
		zap.Int("pid", snap.PID),
		zap.String("label", snap.Label),
		zap.Int("signal", int(sig)))
	s.Schedule(index)
	return snap, true, nil
}

// Schedule arms the forceful signal for index after the configured delay.
// It never blocks the caller.
// Schedule 在配置的延迟后为 index 设置强制信号，不会阻塞调用方。
func (s *Scheduler) Schedule(index int) {
	snap, _ := s.registry.Get(index)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Debug("scheduler stopped, escalation ignored", zap.Int("index", index))
		return
	}
	if _, exists := s.timers[index]; exists {
		return
	}

	record := Record{
		Index:   index,
		PID:     snap.PID,
		Label:   snap.Label,
		ArmedAt: time.Now(),
	}
	s.wg.Add(1)
	s.timers[index] = time.AfterFunc(s.config.Delay, func() {
		defer s.wg.Done()
		s.fire(record)
	})
}

// fire re-checks liveness through the registry and sends the forceful signal
// fire 通过注册表复查存活性并发送强制信号
func (s *Scheduler) fire(record Record) {
	s.mu.Lock()
	sig := s.config.ForcefulSignal
	s.mu.Unlock()

	sent, err := s.registry.SignalIfAlive(record.Index, sig)
	record.FiredAt = time.Now()
	switch {
	case err != nil:
		record.Outcome = OutcomeFailed
		record.Error = err.Error()
		s.logger.Warn("forceful signal failed",
			zap.Int("pid", record.PID),
			zap.String("label", record.Label),
			zap.Error(err))
	case sent:
		record.Outcome = OutcomeFired
		s.logger.Info("escalated to forceful signal",
			zap.Int("pid", record.PID),
			zap.String("label", record.Label),
			zap.Int("signal", int(sig)))
	default:
		record.Outcome = OutcomeSkipped
		s.logger.Debug("process already terminated, escalation skipped",
			zap.Int("pid", record.PID),
			zap.String("label", record.Label))
	}

	s.mu.Lock()
	delete(s.timers, record.Index)
	s.recordLocked(record)
	callback := s.callback
	s.mu.Unlock()

	if callback != nil {
		callback(record)
	}
}

// recordLocked appends to the bounded history (must be called with lock held)
// recordLocked 追加到有界历史中（必须在持有锁的情况下调用）
func (s *Scheduler) recordLocked(record Record) {
	s.history = append(s.history, record)
	if limit := s.config.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// History returns a copy of the escalation history
// History 返回升级历史的副本
func (s *Scheduler) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Record, len(s.history))
	copy(result, s.history)
	return result
}

// Pending returns the number of armed timers that have not fired
// Pending 返回尚未触发的定时器数量
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Wait blocks until every armed timer has fired or been cancelled
// Wait 阻塞直到所有定时器都已触发或被取消
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels pending timers and rejects new ones
// Stop 取消待触发的定时器并拒绝新的定时器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancelled := 0
	for index, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
			cancelled++
		}
		delete(s.timers, index)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("escalation scheduler stopped", zap.Int("cancelled", cancelled))
}

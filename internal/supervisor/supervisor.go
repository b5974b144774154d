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

// Package supervisor wires the process registry, reaper, enforcer and
// escalation scheduler behind the operator command loop.
// supervisor 包将进程注册表、回收器、时长限制器与升级调度器组合在操作员命令循环之后。
//
// This package provides:
// 此包提供：
// - The control loop / 控制循环
// - The start, info, timeout and quit commands / start、info、timeout 与 quit 命令
// - The shutdown sequence and final report / 关闭流程与最终报告
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/seatunnel/procadmin/internal/config"
	"github.com/seatunnel/procadmin/internal/dispatcher"
	"github.com/seatunnel/procadmin/internal/escalation"
	"github.com/seatunnel/procadmin/internal/monitor"
	"github.com/seatunnel/procadmin/internal/otel_trace"
	"github.com/seatunnel/procadmin/internal/process"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options holds the supervisor settings
// Options 保存监管器设置
type Options struct {
	MaxAge          time.Duration
	Capacity        int
	LabelMaxLen     int
	EscalationDelay time.Duration
	GracePeriod     time.Duration
	SettlePeriod    time.Duration
	EnforceInterval time.Duration
	ReportFile      string

	// GracefulSignal is sent by timeout and max age requests
	// GracefulSignal 由超时与最大运行时长请求发送
	GracefulSignal syscall.Signal

	// ShutdownSignal is broadcast first by the shutdown sequence
	// ShutdownSignal 是关闭流程首先广播的信号
	ShutdownSignal syscall.Signal

	// ForcefulSignal ends escalation and shutdown
	// ForcefulSignal 用于结束升级与关闭流程
	ForcefulSignal syscall.Signal
}

// OptionsFromConfig converts the loaded configuration into options
// OptionsFromConfig 将加载的配置转换为选项
func OptionsFromConfig(cfg *config.Config) Options {
	s := cfg.Supervisor
	return Options{
		MaxAge:          s.MaxAgeDuration(),
		Capacity:        s.Capacity,
		LabelMaxLen:     s.LabelMaxLen,
		EscalationDelay: s.EscalationDelay,
		GracePeriod:     s.GracePeriod,
		SettlePeriod:    s.SettlePeriod,
		EnforceInterval: s.EnforceInterval,
		ReportFile:      s.ReportFile,
		GracefulSignal:  syscall.SIGTERM,
		ShutdownSignal:  syscall.SIGINT,
		ForcefulSignal:  syscall.SIGKILL,
	}
}

// Input supplies argument vectors to the control loop
// Input 向控制循环提供参数向量
type Input interface {
	Lines(ctx context.Context) <-chan []string
	Prompt()
}

// Supervisor owns every component of one supervision session
// Supervisor 持有一次监管会话的所有组件
type Supervisor struct {
	opts   Options
	logger *zap.Logger
	ctxLog *otelzap.Logger
	out    *lockedWriter
	now    func() time.Time

	registry   *process.Registry
	launcher   *process.Launcher
	reaper     *process.Reaper
	scheduler  *escalation.Scheduler
	enforcer   *monitor.Enforcer
	dispatcher *dispatcher.Dispatcher

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Supervisor instance
// New 创建一个新的 Supervisor 实例
func New(opts Options, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := process.NewRegistry(opts.Capacity)
	registry.SetLabelMaxLen(opts.LabelMaxLen)

	scheduler := escalation.NewScheduler(registry, logger.Named("escalation"))
	escalationConfig := escalation.DefaultConfig()
	escalationConfig.Delay = opts.EscalationDelay
	escalationConfig.GracefulSignal = opts.GracefulSignal
	escalationConfig.ForcefulSignal = opts.ForcefulSignal
	scheduler.SetConfig(escalationConfig)

	s := &Supervisor{
		opts:       opts,
		logger:     logger,
		ctxLog:     otelzap.New(logger),
		out:        &lockedWriter{w: os.Stdout},
		now:        time.Now,
		registry:   registry,
		launcher:   process.NewLauncher(registry, logger.Named("launcher")),
		reaper:     process.NewReaper(registry, logger.Named("reaper")),
		scheduler:  scheduler,
		enforcer:   monitor.NewEnforcer(registry, scheduler, opts.MaxAge, logger.Named("enforcer")),
		dispatcher: dispatcher.NewDispatcher(),
	}
	s.enforcer.SetOutput(s.out)
	registry.SetEventHandler(s.onProcessEvent)
	scheduler.SetCallback(s.onEscalation)
	s.registerCommands()
	return s
}

// SetOutput sets the operator output
// SetOutput 设置操作员输出
func (s *Supervisor) SetOutput(w io.Writer) {
	s.out.setWriter(w)
}

// SetChildOutput sets the streams children inherit; nil discards
// SetChildOutput 设置子进程继承的输出流，nil 表示丢弃
func (s *Supervisor) SetChildOutput(stdout, stderr io.Writer) {
	s.launcher.SetOutput(stdout, stderr)
}

// Commands returns the operator command names
// Commands 返回操作员命令名
func (s *Supervisor) Commands() []string {
	return s.dispatcher.Commands()
}

// Registry returns the process registry
// Registry 返回进程注册表
func (s *Supervisor) Registry() *process.Registry {
	return s.registry
}

// Scheduler returns the escalation scheduler
// Scheduler 返回升级调度器
func (s *Supervisor) Scheduler() *escalation.Scheduler {
	return s.scheduler
}

// Start subscribes the reaper and starts background enforcement.
// A reaper registration failure is fatal.
// Start 订阅回收器并启动后台时长检查，回收器注册失败是致命错误。
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.reaper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}
	s.enforcer.Start(ctx, s.opts.EnforceInterval)

	s.logger.Info("supervisor started",
		zap.Duration("max_age", s.opts.MaxAge),
		zap.Int("capacity", s.opts.Capacity),
		zap.Duration("escalation_delay", s.scheduler.GetConfig().Delay),
		zap.Duration("grace_period", s.opts.GracePeriod))
	return nil
}

// Serve runs the control loop until quit, end of input or ctx cancellation.
// It returns ctx.Err() when interrupted and nil otherwise; the caller then
// runs Shutdown.
// Serve 运行控制循环，直到 quit、输入结束或 ctx 取消。被中断时返回 ctx.Err()，
// 否则返回 nil，之后由调用方执行 Shutdown。
func (s *Supervisor) Serve(ctx context.Context, input Input) error {
	lines := input.Lines(ctx)
	for {
		s.enforcer.Check()
		input.Prompt()

		select {
		case <-ctx.Done():
			s.printf("\nInterrupt received\n")
			s.logger.Info("control loop interrupted")
			return ctx.Err()
		case argv, ok := <-lines:
			if !ok {
				s.logger.Info("end of input")
				return nil
			}
			if len(argv) == 0 {
				continue
			}
			if quit := s.dispatch(ctx, argv); quit {
				return nil
			}
		}
	}
}

// dispatch runs one command inside its own span and reports whether the
// operator asked to quit
// dispatch 在独立 span 中执行一条命令，并返回操作员是否请求退出
func (s *Supervisor) dispatch(ctx context.Context, argv []string) bool {
	spanCtx, span := otel_trace.Start(ctx, "command."+argv[0],
		trace.WithAttributes(attribute.StringSlice("command.args", argv[1:])))
	defer span.End()

	err := s.dispatcher.Dispatch(spanCtx, argv)
	if err == nil {
		return false
	}
	if errors.Is(err, dispatcher.ErrQuit) {
		return true
	}
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "interrupted")
		return false
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.reportError(spanCtx, argv[0], err)
	return false
}

// reportError prints an operator error and logs it
// reportError 打印操作员错误并记录日志
func (s *Supervisor) reportError(ctx context.Context, command string, err error) {
	if errors.Is(err, dispatcher.ErrUnknownCommand) {
		s.printf("%s\n", err)
	} else {
		s.printf("Error: %s\n", err)
	}
	s.ctxLog.Ctx(ctx).Warn("command failed", zap.String("command", command), zap.Error(err))
}

// onProcessEvent reports terminations to the operator
// onProcessEvent 向操作员报告进程终止
func (s *Supervisor) onProcessEvent(event process.Event) {
	traceProcessEvent(event)

	switch event.Type {
	case process.EventExited, process.EventKilled:
		s.printf("Process terminated: PID=%d, Executable=%s\n", event.Snapshot.PID, event.Snapshot.Label)
	}
}

// onEscalation reports a fired escalation timer
// onEscalation 报告已触发的升级定时器
func (s *Supervisor) onEscalation(record escalation.Record) {
	traceEscalation(record)

	if record.Outcome == escalation.OutcomeFired {
		s.printf("Process escalated: PID=%d, Executable=%s\n", record.PID, record.Label)
	}
}

// traceEscalation records an escalation outcome as a short span
// traceEscalation 将升级结果记录为一个短 span
func traceEscalation(record escalation.Record) {
	if !otel_trace.IsEnabled() {
		return
	}
	_, span := otel_trace.Start(context.Background(), "escalation."+string(record.Outcome),
		trace.WithTimestamp(record.ArmedAt),
		trace.WithAttributes(
			attribute.Int("process.pid", record.PID),
			attribute.String("process.label", record.Label),
		))
	if record.Outcome == escalation.OutcomeFailed {
		span.SetStatus(codes.Error, record.Error)
	}
	span.End(trace.WithTimestamp(record.FiredAt))
}

// traceProcessEvent records a lifecycle event as a short span
// traceProcessEvent 将生命周期事件记录为一个短 span
func traceProcessEvent(event process.Event) {
	if !otel_trace.IsEnabled() {
		return
	}
	snap := event.Snapshot
	attrs := []attribute.KeyValue{
		attribute.Int("process.pid", snap.PID),
		attribute.String("process.label", snap.Label),
	}
	if snap.HasExitCode() {
		attrs = append(attrs, attribute.Int("process.exit_code", snap.ExitCode))
	}
	if snap.HasSignal() {
		attrs = append(attrs, attribute.Int("process.signal", snap.Signal))
	}
	_, span := otel_trace.Start(context.Background(), "process."+string(event.Type),
		trace.WithTimestamp(event.Time),
		trace.WithAttributes(attrs...))
	span.End()
}

func (s *Supervisor) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// lockedWriter serializes operator output from the control loop, the reaper
// and the enforcer
// lockedWriter 串行化来自控制循环、回收器与时长限制器的操作员输出
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) setWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w = w
}

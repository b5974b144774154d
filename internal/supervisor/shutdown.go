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

package supervisor

import (
	"context"
	"syscall"
	"time"

	"github.com/seatunnel/procadmin/internal/otel_trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// pollInterval is how often shutdown waits re-check the active count
// pollInterval 是关闭等待期间检查存活数量的间隔
const pollInterval = 50 * time.Millisecond

// Shutdown terminates every process and prints the final report. It runs at
// most once; later calls return the first result. Cancelling ctx cuts the
// grace period short but never skips the forceful broadcast.
// Shutdown 终止所有进程并打印最终报告，最多执行一次，后续调用返回首次结果。
// 取消 ctx 会提前结束宽限期，但不会跳过强制信号广播。
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Supervisor) shutdown(ctx context.Context) (err error) {
	_, span := otel_trace.Start(context.Background(), "shutdown")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.printf("Terminating procadmin...\n")
	s.logger.Info("shutdown started", zap.Int("active", s.registry.ActiveCount()))

	// No max age requests once the shutdown signal went out
	// 关闭信号发出后不再发出最大运行时长请求
	s.enforcer.Stop()

	// Step 1: graceful broadcast / 步骤 1：广播优雅信号
	graceful := s.broadcast(s.opts.ShutdownSignal)
	span.SetAttributes(attribute.Int("shutdown.graceful_sent", graceful))
	if graceful > 0 {
		// Step 2: grace period / 步骤 2：宽限期
		s.waitForExit(ctx, s.opts.GracePeriod)
	}

	// Step 3: forceful broadcast / 步骤 3：广播强制信号
	forceful := s.broadcast(s.opts.ForcefulSignal)
	span.SetAttributes(attribute.Int("shutdown.forceful_sent", forceful))
	if forceful > 0 {
		s.waitForExit(context.Background(), s.opts.SettlePeriod)
	}

	s.scheduler.Stop()
	s.reaper.Reap()
	s.reaper.Stop()

	// Step 4: final report / 步骤 4：最终报告
	report := buildReport(s.registry.All(), s.registry.Untracked(), s.scheduler.History(), s.now())
	s.printf("procadmin finished\n")
	if err = report.WriteText(s.out); err != nil {
		return err
	}

	if s.opts.ReportFile != "" {
		if err = report.WriteYAML(s.opts.ReportFile); err != nil {
			s.logger.Error("failed to write report", zap.String("file", s.opts.ReportFile), zap.Error(err))
			return err
		}
		s.logger.Info("report written", zap.String("file", s.opts.ReportFile))
	}

	s.logger.Info("shutdown finished", zap.Int("processes", len(report.Processes)))
	return nil
}

// broadcast sends sig to every entry still alive and returns how many were signalled
// broadcast 向所有仍存活的条目发送 sig，返回发送数量
func (s *Supervisor) broadcast(sig syscall.Signal) int {
	sent := 0
	for _, snap := range s.registry.Active() {
		ok, err := s.registry.SignalIfAlive(snap.Index, sig)
		if err != nil {
			s.logger.Warn("shutdown signal failed",
				zap.Int("pid", snap.PID),
				zap.Int("signal", int(sig)),
				zap.Error(err))
			continue
		}
		if ok {
			sent++
			s.logger.Info("shutdown signal sent",
				zap.Int("pid", snap.PID),
				zap.String("label", snap.Label),
				zap.Int("signal", int(sig)))
		}
	}
	return sent
}

// waitForExit waits up to d, returning early once nothing is alive or ctx is done
// waitForExit 最多等待 d，当没有存活进程或 ctx 结束时提前返回
func (s *Supervisor) waitForExit(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for s.registry.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			s.logger.Warn("shutdown wait interrupted")
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

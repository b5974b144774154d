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
	"fmt"
	"time"

	"github.com/seatunnel/procadmin/internal/dispatcher"
	"go.uber.org/zap"
)

// Command names
// 命令名
const (
	CommandStart   = "start"
	CommandInfo    = "info"
	CommandTimeout = "timeout"
	CommandQuit    = "quit"
)

// msgNoActive is printed when no entry is alive
// msgNoActive 在没有存活条目时打印
const msgNoActive = "no active processes"

// registerCommands registers the operator commands
// registerCommands 注册操作员命令
func (s *Supervisor) registerCommands() {
	s.dispatcher.RegisterHandler(CommandStart, s.handleStart)
	s.dispatcher.RegisterHandler(CommandInfo, s.handleInfo)
	s.dispatcher.RegisterHandler(CommandTimeout, s.handleTimeout)
	s.dispatcher.RegisterHandler(CommandQuit, s.handleQuit)
}

// handleStart launches a new process
// handleStart 启动新进程
func (s *Supervisor) handleStart(_ context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: executable name", dispatcher.ErrMissingArgument)
	}

	snap, err := s.launcher.Start(args[0], args[1:])
	if err != nil {
		return err
	}
	s.printf("Process started with PID: %d\n", snap.PID)
	return nil
}

// handleInfo lists every entry not yet terminated. Arguments are ignored.
// handleInfo 列出所有尚未终止的条目，忽略参数。
func (s *Supervisor) handleInfo(_ context.Context, _ []string) error {
	active := s.registry.Active()
	if len(active) == 0 {
		s.printf("%s\n", msgNoActive)
		return nil
	}

	now := s.now()
	s.printf("PID\tExecutable\tTime\tExit\tSignal\n")
	for _, snap := range active {
		s.printf("%d\t%s\t%d\t%d\t%d\n",
			snap.PID, snap.Label, snap.ElapsedSeconds(now), snap.ExitCode, snap.Signal)
	}
	return nil
}

// handleTimeout blocks for the given seconds, then asks every survivor to stop
// handleTimeout 阻塞指定秒数，然后请求所有存活进程停止
func (s *Supervisor) handleTimeout(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: time for timeout", dispatcher.ErrMissingArgument)
	}
	if len(args) > 1 {
		return fmt.Errorf("%w: timeout takes exactly one argument", dispatcher.ErrInvalidArgument)
	}
	seconds, err := dispatcher.ParsePositiveSeconds(args[0])
	if err != nil {
		return err
	}

	if s.registry.ActiveCount() == 0 {
		s.printf("%s\n", msgNoActive)
		return nil
	}

	s.printf("Waiting %d seconds...\n", seconds)
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	s.printf("Timeout reached\n")

	now := s.now()
	for _, snap := range s.registry.Active() {
		s.printf("%s\n", formatReportLine(snap, now))
		if _, _, err := s.scheduler.RequestGraceful(snap.Index); err != nil {
			s.logger.Warn("timeout termination failed",
				zap.Int("pid", snap.PID),
				zap.Error(err))
		}
	}
	return nil
}

// handleQuit ends the control loop
// handleQuit 结束控制循环
func (s *Supervisor) handleQuit(_ context.Context, _ []string) error {
	return dispatcher.ErrQuit
}

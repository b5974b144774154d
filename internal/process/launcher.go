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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Launcher creates OS processes and records them in a Registry
// Launcher 创建操作系统进程并将其记录到 Registry 中
type Launcher struct {
	registry *Registry
	logger   *zap.Logger
	stdout   io.Writer
	stderr   io.Writer
}

// NewLauncher creates a new Launcher instance
// NewLauncher 创建一个新的 Launcher 实例
func NewLauncher(registry *Registry, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		registry: registry,
		logger:   logger,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// SetOutput sets the writers children inherit as stdout and stderr.
// Nil discards the stream.
// SetOutput 设置子进程继承的标准输出和标准错误，nil 表示丢弃。
func (l *Launcher) SetOutput(stdout, stderr io.Writer) {
	l.stdout = stdout
	l.stderr = stderr
}

// Start launches executable with args and appends a new entry
// Start 使用 args 启动 executable 并追加新条目
//
// argv[0] of the child is the executable name itself, followed by args.
// 子进程的 argv[0] 为可执行文件名，其后为 args。
func (l *Launcher) Start(executable string, args []string) (Snapshot, error) {
	if executable == "" {
		return Snapshot{}, fmt.Errorf("%w: executable is empty", ErrStartFailed)
	}

	snap, err := l.registry.Launch(executable, func() (int, error) {
		cmd := buildCommand(executable, args, l.stdout, l.stderr)
		if err := cmd.Start(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStartFailed, err)
		}
		pid := cmd.Process.Pid
		// The reaper owns the wait; release the handle so only the PID remains.
		// 由回收器负责 wait；释放句柄，只保留 PID。
		_ = cmd.Process.Release()
		return pid, nil
	})
	if err != nil {
		if errors.Is(err, ErrRegistryFull) {
			l.logger.Warn("launch rejected, registry full",
				zap.String("executable", executable),
				zap.Int("capacity", l.registry.Capacity()))
		} else {
			l.logger.Warn("launch failed",
				zap.String("executable", executable),
				zap.Strings("args", args),
				zap.Error(err))
		}
		return Snapshot{}, err
	}

	l.logger.Info("process started",
		zap.Int("pid", snap.PID),
		zap.String("label", snap.Label),
		zap.Int("index", snap.Index))
	return snap, nil
}

// buildCommand builds the child command
// buildCommand 构建子进程命令
func buildCommand(executable string, args []string, stdout, stderr io.Writer) *exec.Cmd {
	cmd := exec.Command(executable, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcGroupAttr(cmd)
	return cmd
}

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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seatunnel/procadmin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// resetFlags restores the command line flags after a test
func resetFlags(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Cleanup(func() {
		configFile, capacity, logLevel, logFile, reportFile, traceEndpoint = "", 0, "", "", "", ""
	})
}

// lineInput feeds fixed command lines to the control loop
type lineInput struct {
	ch chan []string
}

func (in *lineInput) Lines(context.Context) <-chan []string { return in.ch }
func (in *lineInput) Prompt()                                {}

// TestParseMaxAge tests the positional argument
// TestParseMaxAge 测试位置参数
func TestParseMaxAge(t *testing.T) {
	maxAge, err := parseMaxAge("0")
	require.NoError(t, err)
	assert.Equal(t, 0, maxAge)

	maxAge, err = parseMaxAge("15")
	require.NoError(t, err)
	assert.Equal(t, 15, maxAge)

	_, err = parseMaxAge("-1")
	assert.ErrorIs(t, err, errNegativeMaxAge)

	_, err = parseMaxAge("ten")
	assert.Error(t, err)
}

// TestLoadEffectiveConfig tests that arguments and flags override the file
// TestLoadEffectiveConfig 测试参数与标志覆盖配置文件
func TestLoadEffectiveConfig(t *testing.T) {
	resetFlags(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("supervisor:\n  max_age: 9\n  capacity: 3\n"), 0644))

	configFile = path
	capacity = 5
	reportFile = "/tmp/report.yaml"
	traceEndpoint = "collector:4317"

	cfg, err := loadEffectiveConfig([]string{"20"})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Supervisor.MaxAge)
	assert.Equal(t, 5, cfg.Supervisor.Capacity)
	assert.Equal(t, "/tmp/report.yaml", cfg.Supervisor.ReportFile)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "collector:4317", cfg.Trace.Endpoint)

	cfg, err = loadEffectiveConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Supervisor.MaxAge)
}

// TestLoadEffectiveConfig_Invalid tests fatal configuration errors
// TestLoadEffectiveConfig_Invalid 测试致命配置错误
func TestLoadEffectiveConfig_Invalid(t *testing.T) {
	resetFlags(t)

	_, err := loadEffectiveConfig([]string{"-4"})
	assert.ErrorIs(t, err, errNegativeMaxAge)

	// Too large for a duration / 超出 time.Duration 的范围
	_, err = loadEffectiveConfig([]string{"18446744074"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	logLevel = "chatty"
	_, err = loadEffectiveConfig(nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// TestConfigCommand tests the config subcommand output
// TestConfigCommand 测试 config 子命令输出
func TestConfigCommand(t *testing.T) {
	resetFlags(t)

	out := &bytes.Buffer{}
	configCmd.SetOut(out)
	defer configCmd.SetOut(nil)

	require.NoError(t, configCmd.RunE(configCmd, []string{"20"}))
	assert.Contains(t, out.String(), "max_age: 20")
	assert.Contains(t, out.String(), "capacity: 10")
}

// TestVersionCommand tests the version subcommand output
// TestVersionCommand 测试 version 子命令输出
func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	versionCmd.SetOut(out)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "Version:    "+Version)
}

// TestAppRun tests a full session ending with quit
// TestAppRun 测试以 quit 结束的完整会话
func TestAppRun(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.GracePeriod = 200 * time.Millisecond

	app := NewApp(cfg, zap.NewNop())
	app.supervisor.SetChildOutput(nil, nil)
	out := &bytes.Buffer{}
	app.SetOutput(out)

	input := &lineInput{ch: make(chan []string, 3)}
	input.ch <- []string{"start", "true"}
	input.ch <- []string{"quit"}
	close(input.ch)

	require.NoError(t, app.Run(context.Background(), context.Background(), input))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "procadmin started. max_age=0\n"))
	assert.Contains(t, text, "Enter commands (start, info, timeout, quit):\n")
	assert.Contains(t, text, "Process started with PID: ")
	assert.Contains(t, text, "procadmin finished")
}

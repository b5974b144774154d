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

// Package main is the entry point for procadmin.
// main 包是 procadmin 的入口点。
//
// procadmin is an interactive process supervisor that:
// procadmin 是一个交互式进程监管器，负责：
// - Launches child processes on operator request / 按操作员请求启动子进程
// - Enforces a maximum process age and operator timeouts / 限制进程最大运行时长并执行操作员超时
// - Escalates from graceful to forceful termination / 从优雅终止升级到强制终止
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/seatunnel/procadmin/internal/config"
	"github.com/seatunnel/procadmin/internal/console"
	"github.com/seatunnel/procadmin/internal/logger"
	"github.com/seatunnel/procadmin/internal/otel_trace"
	"github.com/seatunnel/procadmin/internal/supervisor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// errNegativeMaxAge indicates a negative max age argument
// errNegativeMaxAge 表示最大运行时长参数为负数
var errNegativeMaxAge = errors.New("max age must be a positive value or 0")

// App bundles the supervisor with its configuration and logger
// App 将监管器与其配置和日志器组合在一起
type App struct {
	config     *config.Config
	logger     *zap.Logger
	supervisor *supervisor.Supervisor
	out        io.Writer
}

// NewApp creates a new App instance
// NewApp 创建一个新的 App 实例
func NewApp(cfg *config.Config, log *zap.Logger) *App {
	return &App{
		config:     cfg,
		logger:     log,
		supervisor: supervisor.New(supervisor.OptionsFromConfig(cfg), log),
		out:        os.Stdout,
	}
}

// SetOutput sets the operator output
// SetOutput 设置操作员输出
func (a *App) SetOutput(w io.Writer) {
	a.out = w
	a.supervisor.SetOutput(w)
}

// Run serves commands until quit, end of input or serveCtx cancellation,
// then runs the shutdown sequence. Cancelling shutdownCtx shortens the grace period.
// Run 处理命令直到 quit、输入结束或 serveCtx 取消，然后执行关闭流程。取消 shutdownCtx 会缩短宽限期。
func (a *App) Run(serveCtx, shutdownCtx context.Context, input supervisor.Input) error {
	fmt.Fprintf(a.out, "procadmin started. max_age=%d\n", a.config.Supervisor.MaxAge)
	fmt.Fprintf(a.out, "Enter commands (%s):\n", strings.Join(a.supervisor.Commands(), ", "))

	// The reaper lives until shutdown, not until the first interrupt
	// 回收器存活到关闭为止，而不是到第一次中断为止
	if err := a.supervisor.Start(context.Background()); err != nil {
		return err
	}

	if err := a.supervisor.Serve(serveCtx, input); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("control loop failed", zap.Error(err))
	}

	if err := a.supervisor.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		a.logger.Error("shutdown failed", zap.Error(err))
	}
	return nil
}

// rootCmd is the root command for the procadmin CLI
// rootCmd 是 procadmin CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "procadmin [max-age]",
	Short: "procadmin - interactive process supervisor",
	Long: `procadmin launches child processes on demand and terminates them
through a graceful-then-forceful signal sequence.
procadmin 按需启动子进程，并通过先优雅后强制的信号序列终止它们。

max-age is the maximum process age in seconds; 0 or absent disables it.
max-age 是进程最大运行秒数，0 或省略表示不限制。

Commands / 命令:
  start <executable> [args...]
  info
  timeout <seconds>
  quit`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProcadmin,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "procadmin\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// configCmd prints the effective configuration
// configCmd 打印生效的配置
var configCmd = &cobra.Command{
	Use:   "config [max-age]",
	Short: "Print the effective configuration as YAML / 以 YAML 格式打印生效配置",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig(args)
		if err != nil {
			return err
		}
		data, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// Command line flags
// 命令行标志
var (
	configFile    string
	capacity      int
	logLevel      string
	logFile       string
	reportFile    string
	traceEndpoint string
)

func init() {
	// Add flags to root command
	// 向根命令添加标志
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path (env: "+config.EnvConfigPath+")")
	flags.IntVar(&capacity, "capacity", 0, "maximum number of processes (default 10)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default warn)")
	flags.StringVar(&logFile, "log-file", "", "log file path, rotated (default stderr)")
	flags.StringVar(&reportFile, "report-file", "", "write the final report as YAML to this file")
	flags.StringVar(&traceEndpoint, "trace-endpoint", "", "export traces to this OTLP gRPC endpoint")

	// Add subcommands
	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// parseMaxAge parses the max age argument
// parseMaxAge 解析最大运行时长参数
func parseMaxAge(arg string) (int, error) {
	maxAge, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid max age %q: must be an integer number of seconds", arg)
	}
	if maxAge < 0 {
		return 0, errNegativeMaxAge
	}
	return maxAge, nil
}

// loadEffectiveConfig loads the config file and applies flags and arguments
// loadEffectiveConfig 加载配置文件并应用标志与参数
func loadEffectiveConfig(args []string) (*config.Config, error) {
	cmdArgs := make(map[string]interface{})
	if len(args) > 0 {
		maxAge, err := parseMaxAge(args[0])
		if err != nil {
			return nil, err
		}
		cmdArgs["supervisor.max_age"] = maxAge
	}
	if capacity != 0 {
		cmdArgs["supervisor.capacity"] = capacity
	}
	if logLevel != "" {
		cmdArgs["log.level"] = logLevel
	}
	if logFile != "" {
		cmdArgs["log.file"] = logFile
	}
	if reportFile != "" {
		cmdArgs["supervisor.report_file"] = reportFile
	}
	if traceEndpoint != "" {
		cmdArgs["trace.enabled"] = true
		cmdArgs["trace.endpoint"] = traceEndpoint
	}

	cfg, err := config.LoadWithPriority(configFile, cmdArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// traceFlushTimeout bounds the final span export
// traceFlushTimeout 限制最后一次 span 导出的时长
const traceFlushTimeout = 5 * time.Second

// runProcadmin is the main entry point for the supervisor
// runProcadmin 是监管器的主入口点
func runProcadmin(cmd *cobra.Command, args []string) error {
	cfg, err := loadEffectiveConfig(args)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Initialize tracing / 初始化追踪
	if err := otel_trace.Init(context.Background(), cfg.Trace); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), traceFlushTimeout)
		defer cancel()
		if err := otel_trace.Shutdown(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	app := NewApp(cfg, log)

	// Setup signal handling: the first signal ends the control loop, a second
	// one cuts the shutdown grace period short
	// 设置信号处理：第一个信号结束控制循环，第二个信号缩短关闭宽限期
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()
	shutdownCtx, cancelShutdown := context.WithCancel(context.Background())
	defer cancelShutdown()

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.Info("received signal", zap.String("signal", sig.String()))
		cancelServe()
		if sig, ok = <-sigChan; ok {
			log.Warn("received second signal, forcing shutdown", zap.String("signal", sig.String()))
			cancelShutdown()
		}
	}()

	return app.Run(serveCtx, shutdownCtx, console.NewStdinReader())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

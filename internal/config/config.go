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

// Package config provides configuration management for procadmin.
// config 包提供 procadmin 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables / 环境变量
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	EnvPrefix     = "PROCADMIN"
	EnvConfigPath = "PROCADMIN_CONFIG_PATH"

	DefaultMaxAge          = 0 // seconds, 0 disables
	DefaultCapacity        = 10
	DefaultLabelMaxLen     = 255
	DefaultEscalationDelay = 5 * time.Second
	DefaultGracePeriod     = 10 * time.Second
	DefaultSettlePeriod    = time.Second
	DefaultEnforceInterval = time.Second

	DefaultTraceEndpoint    = "localhost:4317"
	DefaultTraceServiceName = "procadmin"

	DefaultLogLevel      = "warn"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 3
	DefaultLogMaxAge     = 7 // days
)

// ErrInvalidConfig indicates a configuration value is out of range
// ErrInvalidConfig 表示配置值超出范围
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the procadmin configuration
// Config 表示 procadmin 配置
type Config struct {
	// Supervisor configuration / 监管器配置
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Trace configuration / 追踪配置
	Trace TraceConfig `mapstructure:"trace" yaml:"trace"`
}

// SupervisorConfig contains process supervision settings
// SupervisorConfig 包含进程监管设置
type SupervisorConfig struct {
	// MaxAge is the maximum process age in seconds, 0 disables the limit
	// MaxAge 是进程最大运行秒数，0 表示不限制
	MaxAge int `mapstructure:"max_age" yaml:"max_age"`

	// Capacity is the maximum number of processes ever launched
	// Capacity 是可启动进程的最大数量
	Capacity int `mapstructure:"capacity" yaml:"capacity"`

	// LabelMaxLen bounds the recorded executable name in bytes
	// LabelMaxLen 限制记录的可执行文件名字节长度
	LabelMaxLen int `mapstructure:"label_max_len" yaml:"label_max_len"`

	// EscalationDelay is the wait between graceful and forceful signals
	// EscalationDelay 是优雅信号与强制信号之间的等待时间
	EscalationDelay time.Duration `mapstructure:"escalation_delay" yaml:"escalation_delay"`

	// GracePeriod is the shutdown wait before survivors are killed
	// GracePeriod 是关闭时强制终止存活进程前的等待时间
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`

	// SettlePeriod lets the reaper record forced deaths before the final report
	// SettlePeriod 让回收器在最终报告前记录强制终止的进程
	SettlePeriod time.Duration `mapstructure:"settle_period" yaml:"settle_period"`

	// EnforceInterval is the background max age check interval, 0 disables it
	// EnforceInterval 是后台最大运行时长检查间隔，0 表示禁用
	EnforceInterval time.Duration `mapstructure:"enforce_interval" yaml:"enforce_interval"`

	// ReportFile receives the final report as YAML when set
	// ReportFile 设置后以 YAML 格式写入最终报告
	ReportFile string `mapstructure:"report_file" yaml:"report_file"`
}

// MaxAgeLimit is the largest max age in seconds that fits a time.Duration
// MaxAgeLimit 是能够用 time.Duration 表示的最大运行时长秒数
const MaxAgeLimit int64 = math.MaxInt64 / int64(time.Second)

// MaxAgeDuration returns MaxAge as a duration
// MaxAgeDuration 以 time.Duration 返回 MaxAge
func (s SupervisorConfig) MaxAgeDuration() time.Duration {
	return time.Duration(s.MaxAge) * time.Second
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path, empty logs to stderr
	// File 是日志文件路径，为空时输出到标准错误
	File string `mapstructure:"file" yaml:"file"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age" yaml:"max_age"`

	// JSON selects the JSON encoder for console output
	// JSON 为控制台输出选择 JSON 编码
	JSON bool `mapstructure:"json" yaml:"json"`
}

// TraceConfig contains OpenTelemetry tracing settings
// TraceConfig 包含 OpenTelemetry 追踪设置
type TraceConfig struct {
	// Enabled turns on span export
	// Enabled 启用 span 导出
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address
	// Endpoint 是 OTLP gRPC 采集器地址
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	// Insecure 禁用到采集器的 TLS
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// ServiceName is reported as service.name
	// ServiceName 作为 service.name 上报
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// LoadWithPriority loads configuration with explicit priority handling
// LoadWithPriority 使用显式优先级处理加载配置
// Priority: cmdArgs > envVars > configFile > defaults
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadWithPriority(configPath string, cmdArgs map[string]interface{}) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Apply command line arguments (highest priority)
	// 应用命令行参数（最高优先级）
	for key, value := range cmdArgs {
		v.Set(key, value)
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the default configuration
// Default 返回默认配置
func Default() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			MaxAge:          DefaultMaxAge,
			Capacity:        DefaultCapacity,
			LabelMaxLen:     DefaultLabelMaxLen,
			EscalationDelay: DefaultEscalationDelay,
			GracePeriod:     DefaultGracePeriod,
			SettlePeriod:    DefaultSettlePeriod,
			EnforceInterval: DefaultEnforceInterval,
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSize:    DefaultLogMaxSize,
			MaxBackups: DefaultLogMaxBackups,
			MaxAge:     DefaultLogMaxAge,
		},
		Trace: TraceConfig{
			Endpoint:    DefaultTraceEndpoint,
			Insecure:    true,
			ServiceName: DefaultTraceServiceName,
		},
	}
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Supervisor defaults / 监管器默认值
	v.SetDefault("supervisor.max_age", DefaultMaxAge)
	v.SetDefault("supervisor.capacity", DefaultCapacity)
	v.SetDefault("supervisor.label_max_len", DefaultLabelMaxLen)
	v.SetDefault("supervisor.escalation_delay", DefaultEscalationDelay)
	v.SetDefault("supervisor.grace_period", DefaultGracePeriod)
	v.SetDefault("supervisor.settle_period", DefaultSettlePeriod)
	v.SetDefault("supervisor.enforce_interval", DefaultEnforceInterval)
	v.SetDefault("supervisor.report_file", "")

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
	v.SetDefault("log.json", false)

	// Trace defaults / 追踪默认值
	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.endpoint", DefaultTraceEndpoint)
	v.SetDefault("trace.insecure", true)
	v.SetDefault("trace.service_name", DefaultTraceServiceName)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	s := c.Supervisor
	if s.MaxAge < 0 {
		return fmt.Errorf("%w: supervisor.max_age must be a positive value or 0, got %d", ErrInvalidConfig, s.MaxAge)
	}
	if int64(s.MaxAge) > MaxAgeLimit {
		return fmt.Errorf("%w: supervisor.max_age must be at most %d seconds, got %d", ErrInvalidConfig, MaxAgeLimit, s.MaxAge)
	}
	if s.Capacity < 1 {
		return fmt.Errorf("%w: supervisor.capacity must be at least 1, got %d", ErrInvalidConfig, s.Capacity)
	}
	if s.LabelMaxLen < 1 {
		return fmt.Errorf("%w: supervisor.label_max_len must be at least 1, got %d", ErrInvalidConfig, s.LabelMaxLen)
	}
	if s.EscalationDelay <= 0 {
		return fmt.Errorf("%w: supervisor.escalation_delay must be positive", ErrInvalidConfig)
	}
	if s.GracePeriod <= 0 {
		return fmt.Errorf("%w: supervisor.grace_period must be positive", ErrInvalidConfig)
	}
	if s.SettlePeriod < 0 {
		return fmt.Errorf("%w: supervisor.settle_period must not be negative", ErrInvalidConfig)
	}
	if s.EnforceInterval < 0 {
		return fmt.Errorf("%w: supervisor.enforce_interval must not be negative", ErrInvalidConfig)
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.Log.Level)
	}

	// Validate trace configuration / 验证追踪配置
	if c.Trace.Enabled && c.Trace.Endpoint == "" {
		return fmt.Errorf("%w: trace.endpoint is required when tracing is enabled", ErrInvalidConfig)
	}

	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Supervisor.MaxAge: %d, Supervisor.Capacity: %d, Supervisor.EscalationDelay: %v, Supervisor.GracePeriod: %v, Log.Level: %s}",
		c.Supervisor.MaxAge,
		c.Supervisor.Capacity,
		c.Supervisor.EscalationDelay,
		c.Supervisor.GracePeriod,
		c.Log.Level,
	)
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

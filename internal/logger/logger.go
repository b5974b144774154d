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

// Package logger builds the structured diagnostic logger for procadmin.
// logger 包构建 procadmin 的结构化诊断日志器。
//
// Operator output stays on stdout; diagnostics go to stderr or a rotated file.
// 操作员输出保留在标准输出，诊断日志写入标准错误或轮转文件。
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/seatunnel/procadmin/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel converts a configured level name into a zap level
// ParseLevel 将配置的级别名称转换为 zap 级别
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger from the log configuration.
// With a file it writes JSON through lumberjack rotation, otherwise to stderr.
// New 根据日志配置构建日志器，配置文件路径时通过 lumberjack 轮转写入 JSON，否则写入标准错误。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return NewWithWriter(cfg, zapcore.Lock(os.Stderr))
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   false,
	}
	cfg.JSON = true
	return NewWithWriter(cfg, zapcore.AddSync(rotator))
}

// NewWithWriter builds a logger writing to w
// NewWithWriter 构建写入 w 的日志器
func NewWithWriter(cfg config.LogConfig, w zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()).With(zap.String("session_id", NewSessionID())), nil
}

// NewSessionID returns a random identifier for one supervisor run
// NewSessionID 返回一次监管器运行的随机标识
func NewSessionID() string {
	return uuid.New().String()
}

// Writer adapts an io.Writer for NewWithWriter
// Writer 将 io.Writer 适配给 NewWithWriter
func Writer(w io.Writer) zapcore.WriteSyncer {
	return zapcore.AddSync(w)
}

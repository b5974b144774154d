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

package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDispatch_RoutesByName tests routing and argument slicing
// TestDispatch_RoutesByName 测试按命令名路由和参数切分
func TestDispatch_RoutesByName(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.RegisterHandler("start", func(_ context.Context, args []string) error {
		got = args
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), []string{"start", "sleep", "10"}))
	assert.Equal(t, []string{"sleep", "10"}, got)
}

// TestDispatch_EmptyLine tests that an empty vector is ignored
// TestDispatch_EmptyLine 测试空行被忽略
func TestDispatch_EmptyLine(t *testing.T) {
	d := NewDispatcher()
	assert.NoError(t, d.Dispatch(context.Background(), nil))
	assert.NoError(t, d.Dispatch(context.Background(), []string{}))
}

// TestDispatch_UnknownCommand tests unregistered names
// TestDispatch_UnknownCommand 测试未注册的命令
func TestDispatch_UnknownCommand(t *testing.T) {
	d := NewDispatcher()
	err := d.Dispatch(context.Background(), []string{"restart"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.EqualError(t, err, "unknown command: restart")
}

// TestDispatch_PropagatesHandlerError tests handler errors and quit
// TestDispatch_PropagatesHandlerError 测试处理函数错误与退出
func TestDispatch_PropagatesHandlerError(t *testing.T) {
	d := NewDispatcher()
	d.RegisterHandler("quit", func(context.Context, []string) error { return ErrQuit })

	assert.ErrorIs(t, d.Dispatch(context.Background(), []string{"quit"}), ErrQuit)
	assert.Equal(t, []string{"quit"}, d.Commands())
}

// TestCommands_RegistrationOrder tests that names keep their first registration position
// TestCommands_RegistrationOrder 测试命令名保持首次注册的位置
func TestCommands_RegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	noop := func(context.Context, []string) error { return nil }
	d.RegisterHandler("start", noop)
	d.RegisterHandler("info", noop)
	d.RegisterHandler("timeout", noop)
	d.RegisterHandler("quit", noop)
	d.RegisterHandler("info", noop)

	assert.Equal(t, []string{"start", "info", "timeout", "quit"}, d.Commands())
}

// TestParsePositiveSeconds tests timeout argument parsing
// TestParsePositiveSeconds 测试超时参数解析
func TestParsePositiveSeconds(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"3", 3, false},
		{"120", 120, false},
		{"9223372036", MaxSeconds, false},
		{"9223372037", 0, true},
		{"18446744074", 0, true},
		{"99999999999999999999", 0, true},
		{"-99999999999999999999", 0, true},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"3s", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePositiveSeconds(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

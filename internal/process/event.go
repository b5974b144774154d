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

import "time"

// EventType represents a process lifecycle event
// EventType 表示进程生命周期事件
type EventType string

const (
	// EventStarted indicates the process has started
	// EventStarted 表示进程已启动
	EventStarted EventType = "started"

	// EventExited indicates the process exited normally
	// EventExited 表示进程正常退出
	EventExited EventType = "exited"

	// EventKilled indicates the process died on a signal
	// EventKilled 表示进程因信号而终止
	EventKilled EventType = "killed"

	// EventSignalSent indicates the supervisor sent a signal to the process
	// EventSignalSent 表示监管器向进程发送了信号
	EventSignalSent EventType = "signal_sent"

	// EventUntracked indicates a reaped child had no registry entry
	// EventUntracked 表示被回收的子进程在注册表中没有条目
	EventUntracked EventType = "untracked"
)

// Event is delivered to the EventHandler outside the registry lock
// Event 在注册表锁之外传递给 EventHandler
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Time     time.Time
}

// EventHandler is a callback for process events
// EventHandler 是进程事件的回调
type EventHandler func(event Event)

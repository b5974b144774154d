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
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitedStatus builds the wait status of a normal exit
func exitedStatus(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

// signaledStatus builds the wait status of a death by signal
func signaledStatus(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(sig)
}

// sentSignal records one KillFunc call
type sentSignal struct {
	pid int
	sig syscall.Signal
}

// fakeKiller records signals instead of sending them
type fakeKiller struct {
	mu   sync.Mutex
	sent []sentSignal
	err  error
}

func (k *fakeKiller) kill(pid int, sig syscall.Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.sent = append(k.sent, sentSignal{pid: pid, sig: sig})
	return nil
}

func (k *fakeKiller) signals() []sentSignal {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]sentSignal, len(k.sent))
	copy(out, k.sent)
	return out
}

// newTestRegistry creates a registry with a fake killer
func newTestRegistry(capacity int) (*Registry, *fakeKiller) {
	r := NewRegistry(capacity)
	k := &fakeKiller{}
	r.SetKillFunc(k.kill)
	return r, k
}

// spawnPID returns a SpawnFunc yielding a fixed PID
func spawnPID(pid int) SpawnFunc {
	return func() (int, error) { return pid, nil }
}

// TestRegistry_CapacityRejectsExtraLaunch tests the capacity bound
// TestRegistry_CapacityRejectsExtraLaunch 测试容量上限
func TestRegistry_CapacityRejectsExtraLaunch(t *testing.T) {
	r, _ := newTestRegistry(DefaultCapacity)

	for i := 0; i < DefaultCapacity; i++ {
		_, err := r.Launch("sleep", spawnPID(1000+i))
		require.NoError(t, err)
	}

	spawned := false
	_, err := r.Launch("sleep", func() (int, error) {
		spawned = true
		return 2000, nil
	})
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.False(t, spawned, "no process may be created once the registry is full")
	assert.Equal(t, DefaultCapacity, r.Len())
}

// TestRegistry_SpawnFailureLeavesTableUnchanged tests failed process creation
// TestRegistry_SpawnFailureLeavesTableUnchanged 测试进程创建失败
func TestRegistry_SpawnFailureLeavesTableUnchanged(t *testing.T) {
	r, _ := newTestRegistry(3)

	_, err := r.Launch("missing", func() (int, error) {
		return 0, ErrStartFailed
	})
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.Equal(t, 0, r.Len())
}

// TestRegistry_NewEntryDefaults tests the initial state of an entry
// TestRegistry_NewEntryDefaults 测试条目的初始状态
func TestRegistry_NewEntryDefaults(t *testing.T) {
	r, _ := newTestRegistry(3)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })

	snap, err := r.Launch("sleep", spawnPID(4242))
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, 4242, snap.PID)
	assert.Equal(t, "sleep", snap.Label)
	assert.Equal(t, fixed, snap.StartedAt)
	assert.Equal(t, Absent, snap.ExitCode)
	assert.Equal(t, Absent, snap.Signal)
	assert.False(t, snap.Terminated)
	assert.False(t, snap.EscalationArmed)
}

// TestRegistry_RecordExit tests reconciliation of exit statuses
// TestRegistry_RecordExit 测试退出状态的同步
func TestRegistry_RecordExit(t *testing.T) {
	tests := []struct {
		name         string
		status       syscall.WaitStatus
		wantExitCode int
		wantSignal   int
		wantEvent    EventType
	}{
		{"normal exit", exitedStatus(0), 0, Absent, EventExited},
		{"failure exit", exitedStatus(3), 3, Absent, EventExited},
		{"killed by SIGKILL", signaledStatus(syscall.SIGKILL), Absent, int(syscall.SIGKILL), EventKilled},
		{"killed by SIGTERM", signaledStatus(syscall.SIGTERM), Absent, int(syscall.SIGTERM), EventKilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(3)
			var events []Event
			r.SetEventHandler(func(ev Event) { events = append(events, ev) })

			_, err := r.Launch("job", spawnPID(77))
			require.NoError(t, err)

			// A graceful request records a signal before the process dies
			_, sent, err := r.RequestGraceful(0, syscall.SIGTERM)
			require.NoError(t, err)
			require.True(t, sent)

			r.recordExit(77, tt.status)

			snap, ok := r.Get(0)
			require.True(t, ok)
			assert.True(t, snap.Terminated)
			assert.False(t, snap.ExitedAt.IsZero())
			assert.Equal(t, tt.wantExitCode, snap.ExitCode)
			assert.Equal(t, tt.wantSignal, snap.Signal)
			assert.NotEqual(t, snap.HasExitCode(), snap.HasSignal(), "exactly one outcome must be present")

			require.NotEmpty(t, events)
			assert.Equal(t, tt.wantEvent, events[len(events)-1].Type)
		})
	}
}

// TestRegistry_EntriesAreAppendOnly tests that terminated entries remain
// TestRegistry_EntriesAreAppendOnly 测试已终止条目仍然保留
func TestRegistry_EntriesAreAppendOnly(t *testing.T) {
	r, _ := newTestRegistry(3)

	_, err := r.Launch("a", spawnPID(10))
	require.NoError(t, err)
	r.recordExit(10, exitedStatus(0))

	_, err = r.Launch("b", spawnPID(11))
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Label)
	assert.True(t, all[0].Terminated)
	assert.Equal(t, "b", all[1].Label)

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Label)
	assert.Equal(t, 1, r.ActiveCount())
}

// TestRegistry_PIDReuseAfterTermination tests that a reused PID maps to the new entry
// TestRegistry_PIDReuseAfterTermination 测试复用的 PID 映射到新条目
func TestRegistry_PIDReuseAfterTermination(t *testing.T) {
	r, _ := newTestRegistry(3)

	_, err := r.Launch("first", spawnPID(500))
	require.NoError(t, err)
	r.recordExit(500, exitedStatus(0))

	_, err = r.Launch("second", spawnPID(500))
	require.NoError(t, err)
	r.recordExit(500, signaledStatus(syscall.SIGKILL))

	all := r.All()
	assert.Equal(t, 0, all[0].ExitCode)
	assert.Equal(t, Absent, all[0].Signal)
	assert.Equal(t, Absent, all[1].ExitCode)
	assert.Equal(t, int(syscall.SIGKILL), all[1].Signal)
}

// TestRegistry_RequestGracefulIsIdempotent tests the escalation guard
// TestRegistry_RequestGracefulIsIdempotent 测试升级标记的防重复
func TestRegistry_RequestGracefulIsIdempotent(t *testing.T) {
	r, k := newTestRegistry(3)
	_, err := r.Launch("sleep", spawnPID(99))
	require.NoError(t, err)

	snap, sent, err := r.RequestGraceful(0, syscall.SIGTERM)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, snap.EscalationArmed)
	assert.Equal(t, int(syscall.SIGTERM), snap.Signal)

	_, sent, err = r.RequestGraceful(0, syscall.SIGTERM)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Equal(t, []sentSignal{{pid: 99, sig: syscall.SIGTERM}}, k.signals())
}

// TestRegistry_RequestGracefulKillError tests that a failed send changes nothing
// TestRegistry_RequestGracefulKillError 测试发送失败时状态不变
func TestRegistry_RequestGracefulKillError(t *testing.T) {
	r, k := newTestRegistry(3)
	k.err = errors.New("operation not permitted")
	_, err := r.Launch("sleep", spawnPID(99))
	require.NoError(t, err)

	_, sent, err := r.RequestGraceful(0, syscall.SIGTERM)
	assert.Error(t, err)
	assert.False(t, sent)

	snap, _ := r.Get(0)
	assert.False(t, snap.EscalationArmed)
	assert.Equal(t, Absent, snap.Signal)
}

// TestRegistry_SignalIfAliveSkipsTerminated tests the liveness re-check
// TestRegistry_SignalIfAliveSkipsTerminated 测试存活性复查
func TestRegistry_SignalIfAliveSkipsTerminated(t *testing.T) {
	r, k := newTestRegistry(3)
	_, err := r.Launch("sleep", spawnPID(123))
	require.NoError(t, err)

	r.recordExit(123, exitedStatus(0))

	sent, err := r.SignalIfAlive(0, syscall.SIGKILL)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, k.signals())

	snap, _ := r.Get(0)
	assert.Equal(t, 0, snap.ExitCode)
	assert.Equal(t, Absent, snap.Signal)
}

// TestRegistry_SignalIfAliveRecordsSignal tests a forceful send
// TestRegistry_SignalIfAliveRecordsSignal 测试强制信号的发送与记录
func TestRegistry_SignalIfAliveRecordsSignal(t *testing.T) {
	r, k := newTestRegistry(3)
	_, err := r.Launch("sleep", spawnPID(123))
	require.NoError(t, err)

	sent, err := r.SignalIfAlive(0, syscall.SIGKILL)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []sentSignal{{pid: 123, sig: syscall.SIGKILL}}, k.signals())

	snap, _ := r.Get(0)
	assert.Equal(t, int(syscall.SIGKILL), snap.Signal)
	assert.False(t, snap.Terminated, "a signal request never marks an entry terminated")
}

// TestRegistry_UnknownIndex tests out-of-range indexes
// TestRegistry_UnknownIndex 测试越界索引
func TestRegistry_UnknownIndex(t *testing.T) {
	r, _ := newTestRegistry(3)

	_, _, err := r.RequestGraceful(5, syscall.SIGTERM)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = r.SignalIfAlive(-1, syscall.SIGKILL)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, ok := r.Get(0)
	assert.False(t, ok)
}

// TestRegistry_UntrackedChild tests a reaped PID without entry
// TestRegistry_UntrackedChild 测试没有条目的已回收 PID
func TestRegistry_UntrackedChild(t *testing.T) {
	r, _ := newTestRegistry(3)
	var events []Event
	r.SetEventHandler(func(ev Event) { events = append(events, ev) })

	r.recordExit(31337, exitedStatus(1))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.Untracked())
	require.Len(t, events, 1)
	assert.Equal(t, EventUntracked, events[0].Type)
	assert.Equal(t, 31337, events[0].Snapshot.PID)
	assert.Equal(t, 1, events[0].Snapshot.ExitCode)
}

// TestRegistry_LabelTruncation tests bounded labels
// TestRegistry_LabelTruncation 测试标签长度限制
func TestRegistry_LabelTruncation(t *testing.T) {
	r, _ := newTestRegistry(3)
	r.SetLabelMaxLen(8)

	snap, err := r.Launch(strings.Repeat("x", 20), spawnPID(1))
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxx", snap.Label)
}

// TestTruncateLabel tests UTF-8 safe truncation
// TestTruncateLabel 测试 UTF-8 安全截断
func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "short", truncateLabel("short", 255))
	assert.Equal(t, "abc", truncateLabel("abcdef", 3))
	// "é" is two bytes; cutting inside it backs off to the rune start
	assert.Equal(t, "ab", truncateLabel("abé", 3))
	assert.Equal(t, "abé", truncateLabel("abé", 4))
}

// TestSnapshot_ElapsedSeconds tests elapsed time rounding
// TestSnapshot_ElapsedSeconds 测试运行时长取整
func TestSnapshot_ElapsedSeconds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartedAt: start}

	assert.Equal(t, int64(0), snap.ElapsedSeconds(start))
	assert.Equal(t, int64(3), snap.ElapsedSeconds(start.Add(3*time.Second+100*time.Millisecond)))
	assert.Equal(t, int64(10), snap.ElapsedSeconds(start.Add(9700*time.Millisecond)))
}

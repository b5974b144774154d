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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/seatunnel/procadmin/internal/escalation"
	"github.com/seatunnel/procadmin/internal/process"
	"gopkg.in/yaml.v3"
)

// ReportEntry is one process in the final report
// ReportEntry 是最终报告中的一个进程
type ReportEntry struct {
	PID            int       `yaml:"pid"`
	Label          string    `yaml:"label"`
	ElapsedSeconds int64     `yaml:"elapsed_seconds"`
	ExitCode       int       `yaml:"exit_code"`
	Signal         int       `yaml:"signal"`
	Terminated     bool      `yaml:"terminated"`
	StartedAt      time.Time `yaml:"started_at"`
	ExitedAt       time.Time `yaml:"exited_at,omitempty"`
}

// Report is the final report written at shutdown
// Report 是关闭时写出的最终报告
type Report struct {
	GeneratedAt time.Time     `yaml:"generated_at"`
	Untracked   int           `yaml:"untracked"`
	Processes   []ReportEntry `yaml:"processes"`

	// Escalations lists every fired escalation timer
	// Escalations 列出所有已触发的升级定时器
	Escalations []escalation.Record `yaml:"escalations,omitempty"`
}

// buildReport covers every entry ever created
// buildReport 覆盖所有曾创建的条目
func buildReport(snaps []process.Snapshot, untracked int, escalations []escalation.Record, now time.Time) Report {
	report := Report{
		GeneratedAt: now,
		Untracked:   untracked,
		Processes:   make([]ReportEntry, 0, len(snaps)),
		Escalations: escalations,
	}
	for _, snap := range snaps {
		report.Processes = append(report.Processes, ReportEntry{
			PID:            snap.PID,
			Label:          snap.Label,
			ElapsedSeconds: snap.ElapsedSeconds(now),
			ExitCode:       snap.ExitCode,
			Signal:         snap.Signal,
			Terminated:     snap.Terminated,
			StartedAt:      snap.StartedAt,
			ExitedAt:       snap.ExitedAt,
		})
	}
	return report
}

// WriteText writes one "pid label elapsed exit signal" line per process
// WriteText 为每个进程写出一行 "pid label elapsed exit signal"
func (r Report) WriteText(w io.Writer) error {
	for _, e := range r.Processes {
		if _, err := fmt.Fprintf(w, "%d %s %d %d %d\n", e.PID, e.Label, e.ElapsedSeconds, e.ExitCode, e.Signal); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML writes the report to path as YAML
// WriteYAML 将报告以 YAML 格式写入 path
func (r Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// formatReportLine formats a snapshot as "pid label elapsed exit signal"
// formatReportLine 将快照格式化为 "pid label elapsed exit signal"
func formatReportLine(snap process.Snapshot, now time.Time) string {
	return fmt.Sprintf("%d %s %d %d %d", snap.PID, snap.Label, snap.ElapsedSeconds(now), snap.ExitCode, snap.Signal)
}

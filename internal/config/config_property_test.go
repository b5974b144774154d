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

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSupervisorConfig generates supervisor settings within or outside the valid ranges
// genSupervisorConfig 生成有效范围内或范围外的监管器设置
func genSupervisorConfig() gopter.Gen {
	return gopter.CombineGens(
		genMaxAge(),              // max_age
		gen.IntRange(-2, 64),     // capacity
		gen.Int64Range(-5, 60),   // escalation_delay seconds
		gen.Int64Range(-5, 60),   // grace_period seconds
		gen.Int64Range(-2, 10),   // settle_period seconds
		gen.Int64Range(-2, 10),   // enforce_interval seconds
	).Map(func(vals []interface{}) SupervisorConfig {
		return SupervisorConfig{
			MaxAge:          vals[0].(int),
			Capacity:        vals[1].(int),
			LabelMaxLen:     DefaultLabelMaxLen,
			EscalationDelay: time.Duration(vals[2].(int64)) * time.Second,
			GracePeriod:     time.Duration(vals[3].(int64)) * time.Second,
			SettlePeriod:    time.Duration(vals[4].(int64)) * time.Second,
			EnforceInterval: time.Duration(vals[5].(int64)) * time.Second,
		}
	})
}

// genMaxAge mixes ordinary values with values around MaxAgeLimit
// genMaxAge 混合普通值与 MaxAgeLimit 附近的值
func genMaxAge() gopter.Gen {
	return gen.OneGenOf(
		gen.IntRange(-10, 3600),
		gen.Int64Range(MaxAgeLimit-5, MaxAgeLimit+5).Map(func(v int64) int { return int(v) }),
	)
}

// For any supervisor settings, Validate accepts exactly the values inside the
// documented ranges.
// 对于任意监管器设置，Validate 恰好接受文档所述范围内的值。
func TestProperty_ValidateRanges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("Validate accepts only in-range supervisor settings", prop.ForAll(
		func(s SupervisorConfig, level string) bool {
			cfg := Default()
			cfg.Supervisor = s
			cfg.Log.Level = level

			want := s.MaxAge >= 0 &&
				int64(s.MaxAge) <= MaxAgeLimit &&
				s.Capacity >= 1 &&
				s.EscalationDelay > 0 &&
				s.GracePeriod > 0 &&
				s.SettlePeriod >= 0 &&
				s.EnforceInterval >= 0

			err := cfg.Validate()
			if want {
				return err == nil
			}
			return errors.Is(err, ErrInvalidConfig)
		},
		genSupervisorConfig(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t)
}

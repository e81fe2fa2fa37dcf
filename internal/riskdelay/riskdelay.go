/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package riskdelay maps a payment risk score to the settlement delay that
// guards against chargebacks. The same band table serves purchases and
// direct fiat settlements.
package riskdelay

import (
	"fmt"
	"time"
)

const (
	MinScore = 0
	MaxScore = 100

	// DefaultUnscoredDays applies when the payment provider did not score a payment.
	DefaultUnscoredDays = 7
)

type band struct {
	maxScore int
	days     int
}

var bands = []band{
	{maxScore: 20, days: 0},
	{maxScore: 40, days: 7},
	{maxScore: 60, days: 30},
	{maxScore: 80, days: 60},
	{maxScore: 100, days: 120},
}

// MaxDays is the longest delay any score can produce.
var MaxDays = bands[len(bands)-1].days

// Days returns the delay for a score using the default unscored delay.
// Scores outside 0..100 clamp to the nearest band.
func Days(score *int) int {
	return Policy{UnscoredDays: DefaultUnscoredDays}.Days(score)
}

// Policy applies the band table with a pipeline-specific unscored default.
type Policy struct {
	UnscoredDays int
}

// Days returns the delay in days for score.
func (p Policy) Days(score *int) int {
	if score == nil {
		return p.UnscoredDays
	}
	s := *score
	for _, b := range bands {
		if s <= b.maxScore {
			return b.days
		}
	}
	return MaxDays
}

// Delay returns the delay as a duration.
func (p Policy) Delay(score *int) time.Duration {
	return time.Duration(p.Days(score)) * 24 * time.Hour
}

// Validate rejects scores outside 0..100.
func Validate(score *int) error {
	if score == nil {
		return nil
	}
	if *score < MinScore || *score > MaxScore {
		return fmt.Errorf("risk score %d out of range %d-%d", *score, MinScore, MaxScore)
	}
	return nil
}

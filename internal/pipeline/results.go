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

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Results applies execution outcomes that arrive after the executor
// returned Submitted. Redelivered results and results for a superseded
// submission are ignored.
type Results struct {
	store store.PayoutStore
	cfg   models.ProcessorConfig
	now   Clock
}

func NewResults(s store.PayoutStore, cfg models.ProcessorConfig) *Results {
	return &Results{store: s, cfg: Defaults(cfg), now: systemClock}
}

// SetClock replaces the time source.
func (r *Results) SetClock(c Clock) { r.now = c }

// Handle finalizes the payout identified by res.RowId.
func (r *Results) Handle(ctx context.Context, res models.ExecutionResult) error {
	if res.RowId == "" {
		return fmt.Errorf("%w: execution result has no row id", store.ErrValidation)
	}
	p, err := r.store.FindPayout(ctx, res.RowId)
	if err != nil {
		return err
	}

	if stale(p, res) {
		zap.L().Info("Ignoring result for superseded submission",
			zap.String("payout_id", p.Id),
			zap.String("execution_ref", res.ExecutionRef),
			zap.String("current_ref", p.ExecutionRef))
		return nil
	}

	now := r.now()
	switch res.Status {
	case models.ExecutionSucceeded:
		err = r.store.CompletePayout(ctx, p.Kind, p.Id, "", res, now)
	case models.ExecutionFailed:
		err = r.store.FailPayout(ctx, p.Kind, p.Id, "", res.Error, backoff(r.cfg, now, p.RetryCount), now)
	case models.ExecutionSubmitted:
		zap.L().Debug("Execution still pending", zap.String("payout_id", p.Id))
		return nil
	default:
		return fmt.Errorf("%w: unknown execution status %q", store.ErrValidation, res.Status)
	}

	if errors.Is(err, store.ErrAlreadyTerminal) {
		zap.L().Info("Execution result already applied",
			zap.String("payout_id", p.Id),
			zap.String("status", p.Status))
		return nil
	}
	return err
}

// stale reports whether res belongs to an earlier submission of p. A row
// keeps the ref of its latest submission across retries.
func stale(p *models.Payout, res models.ExecutionResult) bool {
	return res.ExecutionRef != "" && p.ExecutionRef != "" && res.ExecutionRef != p.ExecutionRef
}

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
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// payoutRunner executes claimed payout rows and records the outcome. It
// is shared by the spend, cash-out and settlement pipelines.
type payoutRunner struct {
	store    store.PayoutStore
	executor Executor
	cfg      models.ProcessorConfig
	now      Clock
}

// nextRetryAt returns when a failed row may be retried, or nil once the
// retry budget is spent.
func (r *payoutRunner) nextRetryAt(now time.Time, retryCount int) *time.Time {
	return backoff(r.cfg, now, retryCount)
}

func backoff(cfg models.ProcessorConfig, now time.Time, retryCount int) *time.Time {
	if retryCount >= cfg.MaxRetries {
		return nil
	}
	shift := min(retryCount, 16)
	t := now.Add(cfg.RetryBackoff << shift)
	return &t
}

func (r *payoutRunner) executeInFlight(ctx context.Context, job string, kind models.PayoutKind) (models.BatchResult, error) {
	result := models.BatchResult{Job: job}
	now := r.now()
	params := claimParams(r.cfg, now)

	ids, err := r.store.ClaimInFlight(ctx, kind, params, now.Add(-r.cfg.ResubmitAfter))
	if err != nil {
		return result, fmt.Errorf("failed to claim in-flight %s rows: %w", kind, err)
	}
	result.Claimed = len(ids)

	for _, id := range ids {
		p, err := r.store.GetPayout(ctx, kind, id)
		if err != nil {
			tally(&result, job, id, err)
			continue
		}
		r.execute(ctx, job, p, params.Owner, &result)
	}
	return result, nil
}

func (r *payoutRunner) retry(ctx context.Context, job string, kind models.PayoutKind) (models.BatchResult, error) {
	result := models.BatchResult{Job: job}
	now := r.now()
	params := claimParams(r.cfg, now)

	ids, err := r.store.ClaimRetryable(ctx, kind, params, r.cfg.MaxRetries)
	if err != nil {
		return result, fmt.Errorf("failed to claim retryable %s rows: %w", kind, err)
	}
	result.Claimed = len(ids)

	for _, id := range ids {
		p, err := r.store.BeginRetry(ctx, kind, id, params.Owner, now)
		if err != nil {
			tally(&result, job, id, err)
			continue
		}
		r.execute(ctx, job, p, params.Owner, &result)
	}
	return result, nil
}

// execute submits one payout, bounded by ExecutionTimeout, and records
// what happened. The caller holds the row lease as owner.
func (r *payoutRunner) execute(ctx context.Context, job string, p *models.Payout, owner string, result *models.BatchResult) {
	req := models.PaymentRequest{
		Kind:            p.Kind,
		ChainId:         p.ChainId,
		Beneficiary:     p.Destination,
		Token:           p.Token,
		AmountBaseUnits: p.CryptoAmount,
		IdempotencyKey:  p.Id,
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecutionTimeout)
	res, err := r.executor.Execute(execCtx, req)
	cancel()
	now := r.now()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		count, recErr := r.store.RecordTimeout(ctx, p.Kind, p.Id, owner, err.Error(), r.cfg.MaxRetries, now)
		switch {
		case recErr != nil:
			tally(result, job, p.Id, recErr)
		case count > r.cfg.MaxRetries:
			result.Failed++
			zap.L().Error("Payout needs operator attention",
				zap.String("job", job),
				zap.String("payout_id", p.Id),
				zap.Error(store.ErrRetryExhausted))
		default:
			result.Skipped++
		}

	case errors.Is(err, store.ErrExecutorUnavailable), errors.Is(err, context.Canceled):
		result.Skipped++
		zap.L().Warn("Executor unavailable, releasing payout",
			zap.String("job", job),
			zap.String("payout_id", p.Id),
			zap.Error(err))
		if relErr := r.store.ReleasePayout(context.Background(), p.Kind, p.Id, owner, now); relErr != nil {
			zap.L().Warn("Failed to release payout lease", zap.String("payout_id", p.Id), zap.Error(relErr))
		}

	case err != nil:
		r.fail(ctx, job, p, owner, err.Error(), now, result)

	case res.Status == models.ExecutionSucceeded:
		if res.TokensReceived != "" && res.TokensReceived != p.CryptoAmount {
			zap.L().Warn("Partial on-chain delivery",
				zap.String("payout_id", p.Id),
				zap.String("expected", p.CryptoAmount),
				zap.String("received", res.TokensReceived))
		}
		tally(result, job, p.Id, r.store.CompletePayout(ctx, p.Kind, p.Id, owner, res, now))

	case res.Status == models.ExecutionSubmitted:
		tally(result, job, p.Id, r.store.MarkSubmitted(ctx, p.Kind, p.Id, owner, res.ExecutionRef, now))

	case res.Status == models.ExecutionFailed:
		r.fail(ctx, job, p, owner, res.Error, now, result)

	default:
		r.fail(ctx, job, p, owner, fmt.Sprintf("unknown execution status %q", res.Status), now, result)
	}
}

func (r *payoutRunner) fail(ctx context.Context, job string, p *models.Payout, owner, reason string, now time.Time, result *models.BatchResult) {
	next := r.nextRetryAt(now, p.RetryCount)
	if err := r.store.FailPayout(ctx, p.Kind, p.Id, owner, reason, next, now); err != nil {
		tally(result, job, p.Id, err)
		return
	}
	result.Failed++
	if next == nil {
		zap.L().Error("Payout failed with no retries left",
			zap.String("job", job),
			zap.String("payout_id", p.Id),
			zap.String("reason", reason))
	}
}

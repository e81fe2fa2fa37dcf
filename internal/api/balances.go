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

package api

import (
	"context"
	"fmt"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetBalanceSnapshot returns the balance and lifetime totals for a user.
// A user with no activity has an all-zero snapshot.
func (s *LedgerService) GetBalanceSnapshot(ctx context.Context, userId string) (*models.BalanceSnapshot, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", store.ErrValidation)
	}

	bal, err := s.db.GetBalance(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get juice balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance")
	}

	snapshot := &models.BalanceSnapshot{
		UserId:            userId,
		Balance:           bal.Balance,
		LifetimePurchased: bal.LifetimePurchased,
		LifetimeSpent:     bal.LifetimeSpent,
		LifetimeCashedOut: bal.LifetimeCashedOut,
	}
	if !bal.LastActivityAt.IsZero() {
		last := bal.LastActivityAt
		snapshot.LastActivityAt = &last
	}
	return snapshot, nil
}

// GetHistory returns paginated balance movements, newest first.
func (s *LedgerService) GetHistory(ctx context.Context, userId string, limit, offset int) ([]models.HistoryRecord, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", store.ErrValidation)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.db.GetLedgerHistory(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get ledger history", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve history")
	}

	result := make([]models.HistoryRecord, len(entries))
	for i, e := range entries {
		result[i] = models.HistoryRecord{
			Id:           e.Id,
			Kind:         string(e.Kind),
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		}
	}
	return result, nil
}

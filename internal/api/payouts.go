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
	"errors"
	"fmt"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"
)

// Display maps an internal payout status to what a user may see. A failed
// row still inside its retry budget shows as processing.
func Display(status string, retryCount, maxRetries int) models.DisplayStatus {
	switch status {
	case string(models.SpendStatusCompleted), string(models.FiatPaymentStatusSettled):
		return models.DisplayCompleted
	case string(models.SpendStatusRefunded):
		return models.DisplayRefunded
	case string(models.CashOutStatusCancelled):
		return models.DisplayCancelled
	case string(models.SpendStatusFailed):
		if retryCount >= maxRetries {
			return models.DisplayFailedContactSupport
		}
		return models.DisplayProcessing
	case string(models.FiatPaymentStatusDisputed):
		return models.DisplayFailedContactSupport
	default:
		return models.DisplayProcessing
	}
}

// GetSpend returns a spend owned by userId. Other users' rows read as not found.
func (s *LedgerService) GetSpend(ctx context.Context, userId, spendId string) (*models.PayoutView, error) {
	spend, err := s.db.GetSpend(ctx, spendId)
	if err != nil {
		return nil, notFoundOr(err, "spend", spendId)
	}
	if spend.UserId != userId {
		return nil, fmt.Errorf("%w: spend %s", store.ErrNotFound, spendId)
	}
	return &models.PayoutView{
		Id:     spend.Id,
		Kind:   models.PayoutKindSpend,
		Amount: spend.JuiceAmount,
		Status: Display(string(spend.Status), spend.RetryCount, s.maxRetries),
		TxHash: spend.TxHash,
	}, nil
}

// GetCashOut returns a cash-out owned by userId.
func (s *LedgerService) GetCashOut(ctx context.Context, userId, cashOutId string) (*models.PayoutView, error) {
	c, err := s.db.GetCashOut(ctx, cashOutId)
	if err != nil {
		return nil, notFoundOr(err, "cash-out", cashOutId)
	}
	if c.UserId != userId {
		return nil, fmt.Errorf("%w: cash-out %s", store.ErrNotFound, cashOutId)
	}
	return &models.PayoutView{
		Id:     c.Id,
		Kind:   models.PayoutKindCashOut,
		Amount: c.JuiceAmount,
		Status: Display(string(c.Status), c.RetryCount, s.maxRetries),
		TxHash: c.TxHash,
	}, nil
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to retrieve %s %s", kind, id)
}

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
)

// Backend is the storage the read API needs.
type Backend interface {
	store.LedgerStore
	GetSpend(ctx context.Context, id string) (*models.JuiceSpend, error)
	GetCashOut(ctx context.Context, id string) (*models.JuiceCashOut, error)
	Ping(ctx context.Context) error
}

// LedgerService is the read side shown to users: balance snapshots,
// history and coarse payout status.
type LedgerService struct {
	db         Backend
	maxRetries int
}

func NewLedgerService(db Backend, maxRetries int) *LedgerService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &LedgerService{
		db:         db,
		maxRetries: maxRetries,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

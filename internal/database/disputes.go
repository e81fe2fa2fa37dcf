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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) insertDispute(ctx context.Context, tx queryer, kind models.DisputeTarget, targetId, statusAtDispute string, notice models.DisputeNotice, now time.Time) (*models.FiatPaymentDispute, error) {
	d := &models.FiatPaymentDispute{
		Id:                uuid.New().String(),
		ExternalRef:       notice.ExternalRef,
		TargetKind:        kind,
		TargetId:          targetId,
		ReasonCode:        notice.ReasonCode,
		ProviderDisputeId: notice.ProviderDisputeId,
		StatusAtDispute:   statusAtDispute,
		CreatedAt:         now,
	}
	_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertDispute),
		d.Id, d.ExternalRef, string(d.TargetKind), d.TargetId, d.ReasonCode, d.ProviderDisputeId,
		d.StatusAtDispute, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dispute record: %w", err)
	}
	return d, nil
}

func (s *Service) GetDispute(ctx context.Context, id string) (*models.FiatPaymentDispute, error) {
	return s.getDispute(ctx, queryGetDispute, id)
}

func (s *Service) FindDisputeByProviderId(ctx context.Context, providerDisputeId string) (*models.FiatPaymentDispute, error) {
	if providerDisputeId == "" {
		return nil, fmt.Errorf("%w: provider dispute id is required", store.ErrValidation)
	}
	return s.getDispute(ctx, queryFindDisputeByProviderId, providerDisputeId)
}

func (s *Service) getDispute(ctx context.Context, query, key string) (*models.FiatPaymentDispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx, s.dialect.rebind(query), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dispute %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return d, nil
}

func (s *Service) ListDisputes(ctx context.Context, targetId string) ([]models.FiatPaymentDispute, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryListDisputes), targetId)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer closeRows(rows)

	var disputes []models.FiatPaymentDispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		disputes = append(disputes, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispute rows: %w", err)
	}
	return disputes, nil
}

func scanDispute(row scanner) (*models.FiatPaymentDispute, error) {
	var d models.FiatPaymentDispute
	var targetKind string
	var resolution sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&d.Id, &d.ExternalRef, &targetKind, &d.TargetId, &d.ReasonCode, &d.ProviderDisputeId,
		&d.StatusAtDispute, &resolution, &resolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.TargetKind = models.DisputeTarget(targetKind)
	if resolution.Valid {
		r, err := models.ParseDisputeResolution(resolution.String)
		if err != nil {
			return nil, err
		}
		d.Resolution = &r
	}
	d.ResolvedAt = timePtr(resolvedAt)
	return &d, nil
}

// ResolveDispute records the outcome of a dispute. A resolution is written once.
func (s *Service) ResolveDispute(ctx context.Context, id string, resolution models.DisputeResolution, now time.Time) (*models.FiatPaymentDispute, error) {
	if _, err := models.ParseDisputeResolution(string(resolution)); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryResolveDispute), string(resolution), utc(now), id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dispute: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		existing, err := s.GetDispute(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing.Resolution == nil {
			return nil, fmt.Errorf("%w: dispute %s", store.ErrConcurrentModification, id)
		}
		return existing, fmt.Errorf("%w: dispute %s already resolved as %s", store.ErrAlreadyTerminal, id, *existing.Resolution)
	}

	zap.L().Info("Dispute resolved",
		zap.String("dispute_id", id),
		zap.String("resolution", string(resolution)))
	return s.GetDispute(ctx, id)
}

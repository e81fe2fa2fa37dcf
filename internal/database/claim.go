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
	"slices"

	"juice-ledger-go/internal/store"

	"go.uber.org/zap"
)

// claimBatch leases up to params.Limit rows matching where and returns their
// ids. Rows whose lease is still held by another owner are skipped.
func (s *Service) claimBatch(ctx context.Context, table, where, orderBy string, whereArgs []any, params store.ClaimParams) ([]string, error) {
	if params.Owner == "" {
		return nil, fmt.Errorf("%w: claim owner is required", store.ErrValidation)
	}
	if params.Limit <= 0 {
		return nil, fmt.Errorf("%w: claim limit must be positive, got %d", store.ErrValidation, params.Limit)
	}
	if params.LeaseTTL <= 0 {
		return nil, fmt.Errorf("%w: lease ttl must be positive, got %v", store.ErrValidation, params.LeaseTTL)
	}

	now := utc(params.Now)
	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET lease_owner = ?, lease_expires_at = ?
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE %[2]s AND (lease_owner IS NULL OR lease_expires_at <= ?)
			ORDER BY %[3]s
			LIMIT ?%[4]s
		)
		RETURNING id`, table, where, orderBy, s.dialect.lockClause())

	args := make([]any, 0, len(whereArgs)+4)
	args = append(args, params.Owner, now.Add(params.LeaseTTL))
	args = append(args, whereArgs...)
	args = append(args, now, params.Limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s batch: %w", table, err)
	}
	defer closeRows(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claimed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed rows: %w", err)
	}

	if len(ids) > 0 {
		zap.L().Debug("Claimed batch",
			zap.String("table", table),
			zap.String("owner", params.Owner),
			zap.Int("count", len(ids)))
	}
	return ids, nil
}

// transitionError explains why a status CAS on id matched no row.
func (s *Service) transitionError(ctx context.Context, q queryer, table, id, owner string, from, terminal []string) error {
	var status string
	var leaseOwner sql.NullString
	query := fmt.Sprintf(`SELECT status, lease_owner FROM %s WHERE id = ?`, table)
	err := q.QueryRowContext(ctx, s.dialect.rebind(query), id).Scan(&status, &leaseOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", table, id, err)
	}
	if slices.Contains(terminal, status) {
		return fmt.Errorf("%w: %s %s is %s", store.ErrAlreadyTerminal, table, id, status)
	}
	if !slices.Contains(from, status) {
		return fmt.Errorf("%w: %s %s is %s", store.ErrInvalidTransition, table, id, status)
	}
	if owner != "" && leaseOwner.String != owner {
		return fmt.Errorf("%w: %s %s", store.ErrLeaseLost, table, id)
	}
	return fmt.Errorf("%w: %s %s", store.ErrConcurrentModification, table, id)
}

// leaseClause restricts a transition to the lease holder. An empty owner
// skips the check for transitions driven from outside a batch.
func leaseClause(owner string) (string, []any) {
	if owner == "" {
		return "", nil
	}
	return " AND lease_owner = ?", []any{owner}
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

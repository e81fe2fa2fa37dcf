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
)

const tableLedgerEntries = "juice_ledger_entries"

// ClaimUnexportedEntries leases ledger entries not yet written to the
// external journal, oldest first.
func (s *Service) ClaimUnexportedEntries(ctx context.Context, params store.ClaimParams) ([]models.LedgerEntry, error) {
	ids, err := s.claimBatch(ctx, tableLedgerEntries, "exported_at IS NULL", "created_at", nil, params)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := scanEntry(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetEntry), id))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *Service) MarkEntryExported(ctx context.Context, id, owner string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryMarkEntryExported), utc(now), id, owner)
	if err != nil {
		return fmt.Errorf("failed to mark entry exported: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exportedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT exported_at FROM juice_ledger_entries WHERE id = ?`), id).Scan(&exportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: ledger entry %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger entry: %w", err)
	}
	if exportedAt.Valid {
		return fmt.Errorf("%w: ledger entry %s already exported", store.ErrAlreadyTerminal, id)
	}
	return fmt.Errorf("%w: ledger entry %s", store.ErrLeaseLost, id)
}

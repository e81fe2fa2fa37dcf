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

package formance

import (
	"context"
	"errors"
	"time"

	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const JobExportJournal = "journal.export"

// EntryPoster writes one ledger entry to an external journal.
type EntryPoster interface {
	PostEntry(ctx context.Context, entry models.LedgerEntry) error
}

// Exporter copies new ledger entries to the journal in creation order.
// Entries that fail to post keep their lease until it expires and are
// claimed again by a later run.
type Exporter struct {
	store    store.JournalStore
	poster   EntryPoster
	limit    int
	leaseTTL time.Duration
	now      func() time.Time
}

func NewExporter(s store.JournalStore, poster EntryPoster, cfg models.ProcessorConfig) *Exporter {
	e := &Exporter{
		store:    s,
		poster:   poster,
		limit:    cfg.BatchSize,
		leaseTTL: cfg.LeaseTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if e.limit <= 0 {
		e.limit = 100
	}
	if e.leaseTTL <= 0 {
		e.leaseTTL = 5 * time.Minute
	}
	return e
}

func (e *Exporter) SetClock(now func() time.Time) { e.now = now }

// Export claims one batch of unexported entries and posts them.
func (e *Exporter) Export(ctx context.Context) (models.BatchResult, error) {
	result := models.BatchResult{Job: JobExportJournal}
	owner := uuid.New().String()

	entries, err := e.store.ClaimUnexportedEntries(ctx, store.ClaimParams{
		Now:      e.now(),
		Owner:    owner,
		Limit:    e.limit,
		LeaseTTL: e.leaseTTL,
	})
	if err != nil {
		return result, err
	}
	result.Claimed = len(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := e.poster.PostEntry(ctx, entry); err != nil {
			result.Failed++
			zap.L().Error("Failed to journal ledger entry",
				zap.String("entry_id", entry.Id),
				zap.String("user_id", entry.UserId),
				zap.Error(err))
			continue
		}

		err := e.store.MarkEntryExported(ctx, entry.Id, owner, e.now())
		switch {
		case err == nil:
			result.Advanced++
		case errors.Is(err, store.ErrAlreadyTerminal), errors.Is(err, store.ErrLeaseLost):
			result.Skipped++
		default:
			result.Failed++
			zap.L().Error("Failed to mark ledger entry exported",
				zap.String("entry_id", entry.Id),
				zap.Error(err))
		}
	}

	if result.Claimed > 0 {
		zap.L().Info("Journal export batch finished",
			zap.Int("claimed", result.Claimed),
			zap.Int("exported", result.Advanced),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

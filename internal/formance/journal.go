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
	"fmt"

	"juice-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Credits may drain an operator account below zero. Debits may not drain
// a user account, which mirrors the local non-negative balance rule.
const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $source
  account $user
  string $entry_kind
  string $source_ref
  string $balance_after
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $user
)

set_tx_meta("entry_kind", $entry_kind)
set_tx_meta("source_ref", $source_ref)
set_tx_meta("balance_after", $balance_after)
`

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $user
  account $destination
  string $entry_kind
  string $source_ref
  string $balance_after
}

send [$asset $amount] (
  source = $user
  destination = $destination
)

set_tx_meta("entry_kind", $entry_kind)
set_tx_meta("source_ref", $source_ref)
set_tx_meta("balance_after", $balance_after)
`

// counterparty is the operator account on the other side of each entry kind.
var counterparty = map[models.EntryKind]string{
	models.EntryKindPurchaseCredit:   "juice:purchases",
	models.EntryKindSpendDebit:       "juice:spends",
	models.EntryKindSpendRefund:      "juice:spends",
	models.EntryKindCashOutDebit:     "juice:cash_outs",
	models.EntryKindCashOutRefund:    "juice:cash_outs",
	models.EntryKindAdjustmentCredit: "juice:adjustments",
	models.EntryKindAdjustmentDebit:  "juice:adjustments",
}

func userAccount(userId string) string {
	return "users:" + userId
}

// entryScript builds the Numscript posting for one ledger entry.
func entryScript(entry models.LedgerEntry) (*shared.V2PostTransactionScript, error) {
	other, ok := counterparty[entry.Kind]
	if !ok {
		return nil, fmt.Errorf("no journal account for entry kind %q", entry.Kind)
	}
	if entry.Amount.IsZero() {
		return nil, fmt.Errorf("ledger entry %s has zero amount", entry.Id)
	}

	vars := map[string]string{
		"asset":         juiceAsset,
		"amount":        entry.Amount.Abs().Shift(juicePrecision).BigInt().String(),
		"user":          userAccount(entry.UserId),
		"entry_kind":    string(entry.Kind),
		"source_ref":    entry.SourceRef,
		"balance_after": entry.BalanceAfter.StringFixed(juicePrecision),
	}

	if entry.Amount.IsPositive() {
		vars["source"] = other
		return &shared.V2PostTransactionScript{Plain: numscriptCredit, Vars: vars}, nil
	}
	vars["destination"] = other
	return &shared.V2PostTransactionScript{Plain: numscriptDebit, Vars: vars}, nil
}

// PostEntry writes one ledger entry to the journal. The entry id is the
// Formance reference, so posting the same entry twice is a no-op.
func (s *Service) PostEntry(ctx context.Context, entry models.LedgerEntry) error {
	script, err := entryScript(entry)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: &entry.Id,
			Timestamp: &createdAt,
			Script:    script,
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Ledger entry already journaled",
				zap.String("entry_id", entry.Id))
			return nil
		}
		return fmt.Errorf("error posting ledger entry %s: %w", entry.Id, err)
	}

	zap.L().Debug("Ledger entry journaled",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.String()))
	return nil
}

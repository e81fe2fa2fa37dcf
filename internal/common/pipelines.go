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

package common

import (
	"juice-ledger-go/internal/chains"
	"juice-ledger-go/internal/models"
	"juice-ledger-go/internal/pipeline"
	"juice-ledger-go/internal/processor"
	"juice-ledger-go/internal/store"
	"juice-ledger-go/internal/webhook"
)

// Pipelines is every pipeline wired to one store and executor.
type Pipelines struct {
	Purchases   *pipeline.Purchases
	Spends      *pipeline.Spends
	CashOuts    *pipeline.CashOuts
	Settlements *pipeline.Settlements
	Disputes    *pipeline.Disputes
	Results     *pipeline.Results
}

// NewPipelines builds the pipelines. executor may be nil for tools that
// only record intake and never execute payouts.
func NewPipelines(s store.Store, registry *chains.Registry, executor pipeline.Executor, cfg *models.Config) *Pipelines {
	purchases := pipeline.NewPurchases(s, cfg.Processor, cfg.Pipelines.PurchaseUnscoredDays)
	settlements := pipeline.NewSettlements(s, registry, registry, executor, cfg.Processor, cfg.Pipelines.SettlementUnscoredDays)
	return &Pipelines{
		Purchases:   purchases,
		Spends:      pipeline.NewSpends(s, registry, registry, executor, cfg.Processor),
		CashOuts:    pipeline.NewCashOuts(s, registry, registry, executor, cfg.Processor, cfg.Pipelines.CashOutDelay),
		Settlements: settlements,
		Disputes:    pipeline.NewDisputes(s, purchases, settlements),
		Results:     pipeline.NewResults(s, cfg.Processor),
	}
}

// Dispatcher routes provider events into these pipelines.
func (p *Pipelines) Dispatcher() *webhook.Dispatcher {
	return webhook.NewDispatcher(p.Purchases, p.Settlements, p.Disputes)
}

// Jobs lists every batch job in the order the runner reports them.
func (p *Pipelines) Jobs() []processor.Job {
	return []processor.Job{
		processor.NewJob(pipeline.JobCreditPurchases, p.Purchases.CreditDue),
		processor.NewJob(pipeline.JobExecuteSpends, p.Spends.ExecuteInFlight),
		processor.NewJob(pipeline.JobRetrySpends, p.Spends.Retry),
		processor.NewJob(pipeline.JobProcessCashOuts, p.CashOuts.ProcessDue),
		processor.NewJob(pipeline.JobExecuteCashOuts, p.CashOuts.ExecuteInFlight),
		processor.NewJob(pipeline.JobRetryCashOuts, p.CashOuts.Retry),
		processor.NewJob(pipeline.JobSettleFiatPayments, p.Settlements.SettleDue),
		processor.NewJob(pipeline.JobExecuteSettlements, p.Settlements.ExecuteInFlight),
		processor.NewJob(pipeline.JobRetrySettlements, p.Settlements.Retry),
	}
}

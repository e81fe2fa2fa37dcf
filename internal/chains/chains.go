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

package chains

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"juice-ledger-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type chainsFile struct {
	Chains []models.Chain `yaml:"chains"`
}

// Registry is the set of chains and tokens payouts may target
type Registry struct {
	chains map[string]models.Chain
	order  []string
}

// LoadRegistry reads a chains.yaml file relative to the working directory.
func LoadRegistry(chainsFilePath string) (*Registry, error) {
	var path string
	if filepath.IsAbs(chainsFilePath) {
		path = chainsFilePath
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, chainsFilePath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", chainsFilePath, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a registry from YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var cfg chainsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse chains: %w", err)
	}
	return NewRegistry(cfg.Chains)
}

// NewRegistry validates chains and indexes them by id.
func NewRegistry(chains []models.Chain) (*Registry, error) {
	r := &Registry{chains: make(map[string]models.Chain, len(chains))}
	for i, c := range chains {
		if c.Id == "" {
			return nil, fmt.Errorf("chain at index %d missing id", i)
		}
		if _, dup := r.chains[c.Id]; dup {
			return nil, fmt.Errorf("chain %s defined twice", c.Id)
		}
		if len(c.Tokens) == 0 {
			return nil, fmt.Errorf("chain %s has no tokens", c.Id)
		}
		for j := range c.Tokens {
			tok := &c.Tokens[j]
			if tok.Symbol == "" {
				return nil, fmt.Errorf("chain %s token at index %d missing symbol", c.Id, j)
			}
			if tok.Decimals < 0 || tok.Decimals > 36 {
				return nil, fmt.Errorf("chain %s token %s has invalid decimals %d", c.Id, tok.Symbol, tok.Decimals)
			}
			if tok.RawUsdRate != "" {
				rate, err := decimal.NewFromString(tok.RawUsdRate)
				if err != nil {
					return nil, fmt.Errorf("chain %s token %s has invalid usd_rate %q: %w", c.Id, tok.Symbol, tok.RawUsdRate, err)
				}
				tok.UsdRate = rate
			}
			if !tok.UsdRate.IsPositive() {
				return nil, fmt.Errorf("chain %s token %s needs a positive usd_rate", c.Id, tok.Symbol)
			}
		}
		r.chains[c.Id] = c
		r.order = append(r.order, c.Id)
	}
	return r, nil
}

// Chains returns all chains in file order.
func (r *Registry) Chains() []models.Chain {
	out := make([]models.Chain, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}

// Lookup returns the chain with the given id.
func (r *Registry) Lookup(chainId string) (models.Chain, error) {
	c, ok := r.chains[chainId]
	if !ok {
		return models.Chain{}, fmt.Errorf("unsupported chain %q", chainId)
	}
	return c, nil
}

// Token returns the token on a chain.
func (r *Registry) Token(chainId, symbol string) (models.Token, error) {
	c, err := r.Lookup(chainId)
	if err != nil {
		return models.Token{}, err
	}
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return models.Token{}, fmt.Errorf("token %s not supported on chain %s", symbol, chainId)
}

// Quote returns the USD price of one token. Rates come from the registry file.
func (r *Registry) Quote(_ context.Context, chainId, symbol string) (decimal.Decimal, error) {
	t, err := r.Token(chainId, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.UsdRate, nil
}

// NormalizeAddress validates an EVM address and returns its checksummed form.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return "", fmt.Errorf("zero address is not a valid destination")
	}
	return addr.Hex(), nil
}

// ToBaseUnits converts a USD amount to token base units at rate (USD per
// token). The result is truncated so a payout never exceeds its funding.
func ToBaseUnits(usd, rate decimal.Decimal, decimals int32) (string, error) {
	if !rate.IsPositive() {
		return "", fmt.Errorf("exchange rate must be positive, got %s", rate.String())
	}
	if usd.IsNegative() {
		return "", fmt.Errorf("amount must not be negative, got %s", usd.String())
	}
	q, _ := usd.Shift(decimals).QuoRem(rate, 0)
	return q.BigInt().String(), nil
}

// FromBaseUnits converts a base-unit integer string back to whole tokens.
func FromBaseUnits(baseUnits string, decimals int32) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(baseUnits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base units %q: %w", baseUnits, err)
	}
	if !v.Equal(v.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("base units %q must be an integer", baseUnits)
	}
	return v.Shift(-decimals), nil
}

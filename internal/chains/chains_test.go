package chains

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

const testChains = `
chains:
  - id: base
    name: Base
    network_id: base
    network_type: mainnet
    tokens:
      - symbol: USDC
        decimals: 6
        usd_rate: "1.00"
        prime_wallet_id: wallet-usdc
      - symbol: ETH
        decimals: 18
        usd_rate: "2500.00"
        prime_wallet_id: wallet-eth
  - id: ethereum
    name: Ethereum
    network_id: ethereum
    network_type: mainnet
    tokens:
      - symbol: USDC
        decimals: 6
        usd_rate: "1"
`

func TestParseRegistry(t *testing.T) {
	r, err := ParseRegistry([]byte(testChains))
	if err != nil {
		t.Fatalf("ParseRegistry failed: %v", err)
	}
	if len(r.Chains()) != 2 {
		t.Fatalf("Expected 2 chains, got %d", len(r.Chains()))
	}
	tok, err := r.Token("base", "usdc")
	if err != nil {
		t.Fatalf("Token lookup failed: %v", err)
	}
	if tok.Decimals != 6 || tok.PrimeWalletId != "wallet-usdc" {
		t.Errorf("Unexpected token %+v", tok)
	}
	rate, err := r.Quote(context.Background(), "base", "ETH")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Expected rate 2500, got %s", rate)
	}
	if _, err := r.Lookup("solana"); err == nil {
		t.Error("Expected unsupported chain error")
	}
}

func TestParseRegistryRejectsBadRates(t *testing.T) {
	bad := `
chains:
  - id: base
    tokens:
      - symbol: USDC
        decimals: 6
        usd_rate: "0"
`
	if _, err := ParseRegistry([]byte(bad)); err == nil {
		t.Error("Expected error for zero usd_rate")
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	if err != nil {
		t.Fatalf("NormalizeAddress failed: %v", err)
	}
	if got != "0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Errorf("Unexpected checksum form %s", got)
	}
	for _, bad := range []string{"", "0x123", "not-an-address", "0x0000000000000000000000000000000000000000"} {
		if _, err := NormalizeAddress(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		usd      string
		rate     string
		decimals int32
		want     string
	}{
		{"20.00", "1", 6, "20000000"},
		{"10.00", "2500", 18, "4000000000000000"},
		{"1.00", "3", 6, "333333"}, // truncated, never rounded up
		{"0.01", "1", 6, "10000"},
	}
	for _, tt := range tests {
		got, err := ToBaseUnits(decimal.RequireFromString(tt.usd), decimal.RequireFromString(tt.rate), tt.decimals)
		if err != nil {
			t.Fatalf("ToBaseUnits(%s, %s) failed: %v", tt.usd, tt.rate, err)
		}
		if got != tt.want {
			t.Errorf("ToBaseUnits(%s, %s, %d) = %s, want %s", tt.usd, tt.rate, tt.decimals, got, tt.want)
		}
	}
	if _, err := ToBaseUnits(decimal.NewFromInt(1), decimal.Zero, 6); err == nil {
		t.Error("Expected error for zero rate")
	}
}

func TestFromBaseUnits(t *testing.T) {
	got, err := FromBaseUnits("1500000", 6)
	if err != nil {
		t.Fatalf("FromBaseUnits failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected 1.5, got %s", got)
	}
	if _, err := FromBaseUnits("1.5", 6); err == nil {
		t.Error("Expected error for fractional base units")
	}
}

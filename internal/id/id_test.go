package id

import (
	"strings"
	"testing"
)

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("base")
	if err != nil {
		t.Fatalf("ParseChain(base) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:8453" {
		t.Fatalf("unexpected CAIP2: %s", chain.CAIP2)
	}

	chain, err = ParseChain("137")
	if err != nil {
		t.Fatalf("ParseChain(137) failed: %v", err)
	}
	if chain.Slug != "matic" {
		t.Fatalf("expected marketplace slug matic, got %s", chain.Slug)
	}

	chain, err = ParseChain("eip155:1")
	if err != nil {
		t.Fatalf("ParseChain(eip155:1) failed: %v", err)
	}
	if chain.EVMChainID != 1 {
		t.Fatalf("unexpected chain ID: %d", chain.EVMChainID)
	}

	if _, err := ParseChain("eip155:999999"); err == nil {
		t.Fatal("expected unindexed chain to fail")
	}
	if _, err := ParseChain("solana"); err == nil {
		t.Fatal("expected non-EVM chain to fail")
	}
}

func TestSupportedChainsDeduplicatesAliases(t *testing.T) {
	chains := SupportedChains()
	seen := map[string]bool{}
	for _, c := range chains {
		if seen[c] {
			t.Fatalf("duplicate chain slug %s in %v", c, chains)
		}
		seen[c] = true
	}
	if !seen["ethereum"] || !seen["matic"] || seen["mainnet"] {
		t.Fatalf("unexpected chain list: %v", chains)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC", "--wallet")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr != "0x00000000000000adc04c56bf30ac9d3c0aaf14dc" {
		t.Fatalf("expected lower-cased address, got %s", addr)
	}
	if _, err := ParseAddress("0x1234", "--wallet"); err == nil {
		t.Fatal("expected short address to fail")
	}
}

func TestParseCollectionAndTokenID(t *testing.T) {
	slug, err := ParseCollection(" Pudgypenguins ")
	if err != nil || slug != "pudgypenguins" {
		t.Fatalf("unexpected slug %q err=%v", slug, err)
	}
	if _, err := ParseCollection("bad slug!"); err == nil {
		t.Fatal("expected invalid slug to fail")
	}

	n, err := ParseTokenID("456")
	if err != nil || n.Int64() != 456 {
		t.Fatalf("unexpected token id %v err=%v", n, err)
	}
	for _, bad := range []string{"", "-1", "0x10", "1.5"} {
		if _, err := ParseTokenID(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
	if _, err := ParseTokenID("1" + strings.Repeat("9", 77)); err == nil {
		t.Fatal("expected value above uint256 to fail")
	}
}

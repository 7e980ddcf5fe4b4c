package id

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	slugPattern        = regexp.MustCompile(`^[a-z0-9][a-z0-9-_]{0,127}$`)
	tokenIDPattern     = regexp.MustCompile(`^[0-9]{1,78}$`)
)

// Chain is an EVM network the marketplace indexes. Slug is the marketplace's
// own name for it, which is not always the common name.
type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"mainnet":   {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"base":      {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161},
	"optimism":  {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10},
	"polygon":   {Name: "Polygon", Slug: "matic", CAIP2: "eip155:137", EVMChainID: 137},
	"matic":     {Name: "Polygon", Slug: "matic", CAIP2: "eip155:137", EVMChainID: 137},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114},
	"zora":      {Name: "Zora", Slug: "zora", CAIP2: "eip155:7777777", EVMChainID: 7777777},
	"sepolia":   {Name: "Sepolia", Slug: "sepolia", CAIP2: "eip155:11155111", EVMChainID: 11155111},
}

var chainByID = map[int64]Chain{
	1:        chainBySlug["ethereum"],
	10:       chainBySlug["optimism"],
	137:      chainBySlug["polygon"],
	8453:     chainBySlug["base"],
	42161:    chainBySlug["arbitrum"],
	43114:    chainBySlug["avalanche"],
	7777777:  chainBySlug["zora"],
	11155111: chainBySlug["sepolia"],
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)
	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	idPart := norm
	if eip155ChainPattern.MatchString(norm) {
		idPart = strings.TrimPrefix(norm, "eip155:")
	}
	if n, err := strconv.ParseInt(idPart, 10, 64); err == nil {
		if chain, ok := chainByID[n]; ok {
			return chain, nil
		}
		return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("chain %d is not indexed by the marketplace", n))
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// SupportedChains lists the marketplace slugs in stable order.
func SupportedChains() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, chain := range chainBySlug {
		if _, ok := seen[chain.Slug]; ok {
			continue
		}
		seen[chain.Slug] = struct{}{}
		out = append(out, chain.Slug)
	}
	sort.Strings(out)
	return out
}

// ParseAddress validates a 0x address and returns it lower-cased.
func ParseAddress(input, field string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is required", field))
	}
	if !evmAddressPattern.MatchString(raw) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a 0x-prefixed 20-byte address", field))
	}
	return strings.ToLower(raw), nil
}

// ParseCollection validates a marketplace collection slug.
func ParseCollection(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", clierr.New(clierr.CodeUsage, "collection is required")
	}
	if !slugPattern.MatchString(slug) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid collection slug: %s", input))
	}
	return slug, nil
}

// ParseTokenID accepts a decimal uint256.
func ParseTokenID(input string) (*big.Int, error) {
	raw := strings.TrimSpace(input)
	if !tokenIDPattern.MatchString(raw) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("token id must be a decimal integer: %q", input))
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.BitLen() > 256 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("token id out of range: %s", input))
	}
	return n, nil
}

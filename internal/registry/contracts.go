package registry

import "strings"

const (
	// Seaport 1.6 is deployed at the same address on every supported chain.
	SeaportAddress = "0x0000000000000068F116a894984e2DB1123eB395"
	SeaportName    = "Seaport"
	SeaportVersion = "1.6"

	// OpenSea conduit. Approvals are granted to ConduitAddress; orders
	// reference it through ConduitKey.
	ConduitKey     = "0x0000007b02230091a7ed01230072f7006a004d60a8d4e71d599b8104250f0000"
	ConduitAddress = "0x1E0049783F008A0085193E00003D00cd54003c71"

	// Marketplace fee taken from every listing and offer.
	FeeRecipient = "0x0000a26b00c1F0DF003000390027140000fAa719"
	FeeBps       = 250

	ZeroAddress = "0x0000000000000000000000000000000000000000"
	ZeroHash    = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

var wrappedNativeByChainID = map[int64]string{
	1:        "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	10:       "0x4200000000000000000000000000000000000006",
	137:      "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619",
	8453:     "0x4200000000000000000000000000000000000006",
	42161:    "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	43114:    "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB",
	7777777:  "0x4200000000000000000000000000000000000006",
	11155111: "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9",
}

// WrappedNative returns the token used to pay for offers on chainID.
func WrappedNative(chainID int64) (string, bool) {
	value, ok := wrappedNativeByChainID[chainID]
	return value, ok
}

// IsSeaport reports whether addr is the supported Seaport deployment.
func IsSeaport(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), SeaportAddress)
}

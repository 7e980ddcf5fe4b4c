// Package orders builds Seaport order components for listings and offers
// and their EIP-712 typed data.
package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/registry"
)

type ItemType uint8

const (
	ItemNative  ItemType = 0
	ItemERC20   ItemType = 1
	ItemERC721  ItemType = 2
	ItemERC1155 ItemType = 3
)

// Full-open orders; anyone may fill them and partial fills are not allowed.
const orderTypeFullOpen uint8 = 0

type OfferItem struct {
	ItemType             ItemType `json:"itemType"`
	Token                string   `json:"token"`
	IdentifierOrCriteria string   `json:"identifierOrCriteria"`
	StartAmount          string   `json:"startAmount"`
	EndAmount            string   `json:"endAmount"`
}

type ConsiderationItem struct {
	ItemType             ItemType `json:"itemType"`
	Token                string   `json:"token"`
	IdentifierOrCriteria string   `json:"identifierOrCriteria"`
	StartAmount          string   `json:"startAmount"`
	EndAmount            string   `json:"endAmount"`
	Recipient            string   `json:"recipient"`
}

// Components is the signed portion of a Seaport order, shaped the way the
// marketplace API expects it in "parameters".
type Components struct {
	Offerer                         string              `json:"offerer"`
	Zone                            string              `json:"zone"`
	Offer                           []OfferItem         `json:"offer"`
	Consideration                   []ConsiderationItem `json:"consideration"`
	OrderType                       uint8               `json:"orderType"`
	StartTime                       string              `json:"startTime"`
	EndTime                         string              `json:"endTime"`
	ZoneHash                        string              `json:"zoneHash"`
	Salt                            string              `json:"salt"`
	ConduitKey                      string              `json:"conduitKey"`
	TotalOriginalConsiderationItems int                 `json:"totalOriginalConsiderationItems"`
	Counter                         string              `json:"counter"`
}

// Params describes one NFT priced in wei. Price is what the buyer pays for a
// listing and what the offerer pays for an offer; the marketplace fee comes
// out of it.
type Params struct {
	Offerer  string
	Contract string
	TokenID  *big.Int
	Price    *big.Int
	Start    time.Time
	Duration time.Duration
	Counter  *big.Int
	Salt     *big.Int
	FeeBps   int64
}

// NewListing sells an ERC721 for native currency. The seller receives the
// price minus the marketplace fee.
func NewListing(p Params) (Components, error) {
	if err := p.validate(); err != nil {
		return Components{}, err
	}
	fee, proceeds := split(p.Price, p.FeeBps)
	c := p.base()
	c.Offer = []OfferItem{{
		ItemType:             ItemERC721,
		Token:                p.Contract,
		IdentifierOrCriteria: p.TokenID.String(),
		StartAmount:          "1",
		EndAmount:            "1",
	}}
	c.Consideration = []ConsiderationItem{
		native(proceeds, p.Offerer),
	}
	if fee.Sign() > 0 {
		c.Consideration = append(c.Consideration, native(fee, registry.FeeRecipient))
	}
	c.TotalOriginalConsiderationItems = len(c.Consideration)
	return c, nil
}

// NewOffer bids wrapped native currency for an ERC721. The offerer pays the
// full price; the fee goes to the marketplace.
func NewOffer(p Params, paymentToken string) (Components, error) {
	if err := p.validate(); err != nil {
		return Components{}, err
	}
	if _, err := id.ParseAddress(paymentToken, "payment token"); err != nil {
		return Components{}, err
	}
	fee, _ := split(p.Price, p.FeeBps)
	c := p.base()
	c.Offer = []OfferItem{{
		ItemType:             ItemERC20,
		Token:                paymentToken,
		IdentifierOrCriteria: "0",
		StartAmount:          p.Price.String(),
		EndAmount:            p.Price.String(),
	}}
	c.Consideration = []ConsiderationItem{{
		ItemType:             ItemERC721,
		Token:                p.Contract,
		IdentifierOrCriteria: p.TokenID.String(),
		StartAmount:          "1",
		EndAmount:            "1",
		Recipient:            p.Offerer,
	}}
	if fee.Sign() > 0 {
		c.Consideration = append(c.Consideration, ConsiderationItem{
			ItemType:             ItemERC20,
			Token:                paymentToken,
			IdentifierOrCriteria: "0",
			StartAmount:          fee.String(),
			EndAmount:            fee.String(),
			Recipient:            registry.FeeRecipient,
		})
	}
	c.TotalOriginalConsiderationItems = len(c.Consideration)
	return c, nil
}

// NewSalt returns a random 256-bit salt.
func NewSalt() (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate order salt: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}

func (p Params) validate() error {
	if _, err := id.ParseAddress(p.Offerer, "offerer"); err != nil {
		return err
	}
	if _, err := id.ParseAddress(p.Contract, "contract"); err != nil {
		return err
	}
	if p.TokenID == nil || p.TokenID.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "token id is required")
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "price must be greater than zero")
	}
	if p.Duration <= 0 {
		return clierr.New(clierr.CodeUsage, "order duration must be positive")
	}
	if p.FeeBps < 0 || p.FeeBps >= 10_000 {
		return clierr.New(clierr.CodeUsage, "fee basis points out of range")
	}
	return nil
}

func (p Params) base() Components {
	counter := p.Counter
	if counter == nil {
		counter = new(big.Int)
	}
	salt := p.Salt
	if salt == nil {
		salt = new(big.Int)
	}
	start := p.Start.UTC().Truncate(time.Second)
	return Components{
		Offerer:    p.Offerer,
		Zone:       registry.ZeroAddress,
		OrderType:  orderTypeFullOpen,
		StartTime:  fmt.Sprintf("%d", start.Unix()),
		EndTime:    fmt.Sprintf("%d", start.Add(p.Duration).Unix()),
		ZoneHash:   registry.ZeroHash,
		Salt:       salt.String(),
		ConduitKey: registry.ConduitKey,
		Counter:    counter.String(),
	}
}

func split(price *big.Int, feeBps int64) (fee, rest *big.Int) {
	fee = id.BasisPoints(price, feeBps)
	rest = new(big.Int).Sub(price, fee)
	return fee, rest
}

func native(amount *big.Int, recipient string) ConsiderationItem {
	return ConsiderationItem{
		ItemType:             ItemNative,
		Token:                registry.ZeroAddress,
		IdentifierOrCriteria: "0",
		StartAmount:          amount.String(),
		EndAmount:            amount.String(),
		Recipient:            recipient,
	}
}

var eip712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"OrderComponents": {
		{Name: "offerer", Type: "address"},
		{Name: "zone", Type: "address"},
		{Name: "offer", Type: "OfferItem[]"},
		{Name: "consideration", Type: "ConsiderationItem[]"},
		{Name: "orderType", Type: "uint8"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "zoneHash", Type: "bytes32"},
		{Name: "salt", Type: "uint256"},
		{Name: "conduitKey", Type: "bytes32"},
		{Name: "counter", Type: "uint256"},
	},
	"OfferItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
	},
	"ConsiderationItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	},
}

// TypedData is the EIP-712 payload a wallet signs for c on chainID.
func TypedData(c Components, chainID int64) apitypes.TypedData {
	offer := make([]interface{}, 0, len(c.Offer))
	for _, item := range c.Offer {
		offer = append(offer, map[string]interface{}{
			"itemType":             fmt.Sprintf("%d", item.ItemType),
			"token":                item.Token,
			"identifierOrCriteria": item.IdentifierOrCriteria,
			"startAmount":          item.StartAmount,
			"endAmount":            item.EndAmount,
		})
	}
	consideration := make([]interface{}, 0, len(c.Consideration))
	for _, item := range c.Consideration {
		consideration = append(consideration, map[string]interface{}{
			"itemType":             fmt.Sprintf("%d", item.ItemType),
			"token":                item.Token,
			"identifierOrCriteria": item.IdentifierOrCriteria,
			"startAmount":          item.StartAmount,
			"endAmount":            item.EndAmount,
			"recipient":            item.Recipient,
		})
	}
	return apitypes.TypedData{
		Types:       eip712Types,
		PrimaryType: "OrderComponents",
		Domain: apitypes.TypedDataDomain{
			Name:              registry.SeaportName,
			Version:           registry.SeaportVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: registry.SeaportAddress,
		},
		Message: apitypes.TypedDataMessage{
			"offerer":       c.Offerer,
			"zone":          c.Zone,
			"offer":         offer,
			"consideration": consideration,
			"orderType":     fmt.Sprintf("%d", c.OrderType),
			"startTime":     c.StartTime,
			"endTime":       c.EndTime,
			"zoneHash":      c.ZoneHash,
			"salt":          c.Salt,
			"conduitKey":    c.ConduitKey,
			"counter":       c.Counter,
		},
	}
}

// Hash is the Seaport order hash: the EIP-712 struct hash of the components.
func Hash(c Components, chainID int64) (common.Hash, error) {
	typed := TypedData(c, chainID)
	raw, err := typed.HashStruct(typed.PrimaryType, typed.Message)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeInternal, "hash order components", err)
	}
	return common.BytesToHash(raw), nil
}

// Expiry parses EndTime back into a time.
func (c Components) Expiry() (time.Time, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(c.EndTime), 10)
	if !ok || !n.IsInt64() {
		return time.Time{}, fmt.Errorf("invalid order end time %q", c.EndTime)
	}
	return time.Unix(n.Int64(), 0).UTC(), nil
}

// Signed is an order ready to post to the marketplace.
type Signed struct {
	Parameters      Components `json:"parameters"`
	Signature       string     `json:"signature"`
	ProtocolAddress string     `json:"protocol_address"`
}

// TypedDataSigner produces a 65-byte EIP-712 signature.
type TypedDataSigner interface {
	Address() common.Address
	SignTypedData(typed apitypes.TypedData) ([]byte, error)
}

// Sign signs c for chainID and returns it with its order hash.
func Sign(c Components, chainID int64, s TypedDataSigner) (Signed, common.Hash, error) {
	if s == nil {
		return Signed{}, common.Hash{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if !strings.EqualFold(s.Address().Hex(), c.Offerer) {
		return Signed{}, common.Hash{}, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s is not the offerer %s", s.Address().Hex(), c.Offerer))
	}
	hash, err := Hash(c, chainID)
	if err != nil {
		return Signed{}, common.Hash{}, err
	}
	sig, err := s.SignTypedData(TypedData(c, chainID))
	if err != nil {
		return Signed{}, common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign order", err)
	}
	return Signed{
		Parameters:      c,
		Signature:       "0x" + common.Bytes2Hex(sig),
		ProtocolAddress: registry.SeaportAddress,
	}, hash, nil
}

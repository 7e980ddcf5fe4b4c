package opensea

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/registry"
)

var seaportABI = mustABI(registry.SeaportABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// basicOrderJSON mirrors fulfillment_data.transaction.input_data.parameters.
type basicOrderJSON struct {
	ConsiderationToken                string      `json:"considerationToken"`
	ConsiderationIdentifier           string      `json:"considerationIdentifier"`
	ConsiderationAmount               string      `json:"considerationAmount"`
	Offerer                           string      `json:"offerer"`
	Zone                              string      `json:"zone"`
	OfferToken                        string      `json:"offerToken"`
	OfferIdentifier                   string      `json:"offerIdentifier"`
	OfferAmount                       string      `json:"offerAmount"`
	BasicOrderType                    json.Number `json:"basicOrderType"`
	StartTime                         string      `json:"startTime"`
	EndTime                           string      `json:"endTime"`
	ZoneHash                          string      `json:"zoneHash"`
	Salt                              string      `json:"salt"`
	OffererConduitKey                 string      `json:"offererConduitKey"`
	FulfillerConduitKey               string      `json:"fulfillerConduitKey"`
	TotalOriginalAdditionalRecipients string      `json:"totalOriginalAdditionalRecipients"`
	AdditionalRecipients              []struct {
		Amount    string `json:"amount"`
		Recipient string `json:"recipient"`
	} `json:"additionalRecipients"`
	Signature string `json:"signature"`
}

type additionalRecipient struct {
	Amount    *big.Int
	Recipient common.Address
}

type basicOrderParameters struct {
	ConsiderationToken                common.Address
	ConsiderationIdentifier           *big.Int
	ConsiderationAmount               *big.Int
	Offerer                           common.Address
	Zone                              common.Address
	OfferToken                        common.Address
	OfferIdentifier                   *big.Int
	OfferAmount                       *big.Int
	BasicOrderType                    uint8
	StartTime                         *big.Int
	EndTime                           *big.Int
	ZoneHash                          [32]byte
	Salt                              *big.Int
	OffererConduitKey                 [32]byte
	FulfillerConduitKey               [32]byte
	TotalOriginalAdditionalRecipients *big.Int
	AdditionalRecipients              []additionalRecipient
	Signature                         []byte
}

func packFulfillBasicOrder(in basicOrderJSON) (string, error) {
	p := &numParser{}
	orderType := p.big(in.BasicOrderType.String(), "basicOrderType")
	params := basicOrderParameters{
		ConsiderationToken:                p.address(in.ConsiderationToken, "considerationToken"),
		ConsiderationIdentifier:           p.big(in.ConsiderationIdentifier, "considerationIdentifier"),
		ConsiderationAmount:               p.big(in.ConsiderationAmount, "considerationAmount"),
		Offerer:                           p.address(in.Offerer, "offerer"),
		Zone:                              p.address(in.Zone, "zone"),
		OfferToken:                        p.address(in.OfferToken, "offerToken"),
		OfferIdentifier:                   p.big(in.OfferIdentifier, "offerIdentifier"),
		OfferAmount:                       p.big(in.OfferAmount, "offerAmount"),
		BasicOrderType:                    uint8(orderType.Uint64()),
		StartTime:                         p.big(in.StartTime, "startTime"),
		EndTime:                           p.big(in.EndTime, "endTime"),
		ZoneHash:                          p.bytes32(in.ZoneHash, "zoneHash"),
		Salt:                              p.big(in.Salt, "salt"),
		OffererConduitKey:                 p.bytes32(in.OffererConduitKey, "offererConduitKey"),
		FulfillerConduitKey:               p.bytes32(in.FulfillerConduitKey, "fulfillerConduitKey"),
		TotalOriginalAdditionalRecipients: p.big(in.TotalOriginalAdditionalRecipients, "totalOriginalAdditionalRecipients"),
		AdditionalRecipients:              make([]additionalRecipient, 0, len(in.AdditionalRecipients)),
		Signature:                         common.FromHex(in.Signature),
	}
	for i, r := range in.AdditionalRecipients {
		params.AdditionalRecipients = append(params.AdditionalRecipients, additionalRecipient{
			Amount:    p.big(r.Amount, fmt.Sprintf("additionalRecipients[%d].amount", i)),
			Recipient: p.address(r.Recipient, fmt.Sprintf("additionalRecipients[%d].recipient", i)),
		})
	}
	if p.err != nil {
		return "", p.err
	}
	if orderType.Cmp(big.NewInt(255)) > 0 {
		return "", clierr.New(clierr.CodeUnavailable, "marketplace returned invalid basicOrderType")
	}
	data, err := seaportABI.Pack("fulfillBasicOrder", params)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "pack fulfillBasicOrder calldata", err)
	}
	return "0x" + common.Bytes2Hex(data), nil
}

// numParser records the first malformed field so callers check once.
type numParser struct {
	err error
}

func (p *numParser) fail(field, value string) {
	if p.err == nil {
		p.err = clierr.New(clierr.CodeUnavailable, fmt.Sprintf("marketplace returned invalid %s: %q", field, value))
	}
}

func (p *numParser) big(value, field string) *big.Int {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return new(big.Int)
	}
	base := 10
	if strings.HasPrefix(raw, "0x") {
		base = 0
	}
	n, ok := new(big.Int).SetString(raw, base)
	if !ok || n.Sign() < 0 {
		p.fail(field, value)
		return new(big.Int)
	}
	return n
}

func (p *numParser) address(value, field string) common.Address {
	if !common.IsHexAddress(strings.TrimSpace(value)) {
		p.fail(field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *numParser) bytes32(value, field string) [32]byte {
	var out [32]byte
	raw := common.FromHex(strings.TrimSpace(value))
	if len(raw) > 32 {
		p.fail(field, value)
		return out
	}
	copy(out[32-len(raw):], raw)
	return out
}

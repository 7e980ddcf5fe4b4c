// Package steps implements the listing wizard: one flow handler per state,
// plus the typed draft the finished flow decodes into.
package steps

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/mitchellh/mapstructure"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/id"
)

// Context keys written by the handlers.
const (
	KeyCollection     = "collectionId"
	KeyTokenID        = "nftId"
	KeyContract       = "contract"
	KeyName           = "nftName"
	KeyMethod         = "method"
	KeyValue          = "value"
	KeyPrice          = "price"
	KeyReferencePrice = "referencePrice"
	KeyConfirmedAt    = "confirmedAt"
)

type Method string

const (
	MethodFixed    Method = "fixed"
	MethodFloor    Method = "floor"
	MethodLastSale Method = "last-sale"
)

func Methods() []Method { return []Method{MethodFixed, MethodFloor, MethodLastSale} }

func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Methods() {
		if m == known {
			return m, nil
		}
	}
	return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown pricing method %q (expected fixed|floor|last-sale)", raw))
}

// Relative reports whether the method's value is a percent offset.
func (m Method) Relative() bool { return m == MethodFloor || m == MethodLastSale }

// ListingDraft is the typed view of a wizard context.
type ListingDraft struct {
	Collection     string `mapstructure:"collectionId" json:"collection"`
	TokenID        string `mapstructure:"nftId" json:"token_id"`
	Contract       string `mapstructure:"contract" json:"contract"`
	Name           string `mapstructure:"nftName" json:"name,omitempty"`
	Method         Method `mapstructure:"method" json:"method"`
	Value          string `mapstructure:"value" json:"value"`
	Price          string `mapstructure:"price" json:"price"`
	ReferencePrice string `mapstructure:"referencePrice" json:"reference_price,omitempty"`
	ConfirmedAt    string `mapstructure:"confirmedAt" json:"confirmed_at,omitempty"`
}

// DecodeDraft reads whatever the wizard has collected so far. Values that
// round-tripped through JSON (numbers as float64) are accepted.
func DecodeDraft(data map[string]any) (ListingDraft, error) {
	var d ListingDraft
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return ListingDraft{}, clierr.Wrap(clierr.CodeInternal, "build draft decoder", err)
	}
	if err := dec.Decode(data); err != nil {
		return ListingDraft{}, clierr.Wrap(clierr.CodeFlow, "decode listing draft", err)
	}
	return d, nil
}

// Validate checks a completed draft before it is turned into an order.
func (d ListingDraft) Validate() error {
	if _, err := id.ParseCollection(d.Collection); err != nil {
		return err
	}
	if _, err := id.ParseTokenID(d.TokenID); err != nil {
		return err
	}
	if _, err := id.ParseAddress(d.Contract, "contract"); err != nil {
		return err
	}
	if _, err := ParseMethod(string(d.Method)); err != nil {
		return err
	}
	if _, err := d.PriceWei(); err != nil {
		return err
	}
	return nil
}

// PriceWei is the listing price in wei.
func (d ListingDraft) PriceWei() (*big.Int, error) {
	price, err := id.ParseDecimal(d.Price, "price")
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, clierr.New(clierr.CodeUsage, "price must be greater than zero")
	}
	return id.ToBaseUnits(price, id.EtherDecimals)
}

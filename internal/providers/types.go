package providers

import (
	"context"

	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/orders"
)

type Provider interface {
	Info() model.ProviderInfo
}

// MarketReader answers pricing questions about a collection.
type MarketReader interface {
	Provider
	CollectionStats(ctx context.Context, collection string) (model.CollectionStats, error)
	LastSale(ctx context.Context, collection string) (*model.Price, error)
	BestListings(ctx context.Context, collection string, limit int) ([]model.Listing, error)
	BestListing(ctx context.Context, collection, tokenID string) (model.Listing, error)
}

// HoldingsReader lists the NFTs a wallet owns.
type HoldingsReader interface {
	Provider
	AccountNFTs(ctx context.Context, chain id.Chain, owner, collection string) ([]model.NFT, error)
}

type FulfillRequest struct {
	Chain     id.Chain
	OrderHash string
	Protocol  string
	Fulfiller string
}

type OrderKind string

const (
	OrderKindListing OrderKind = "listing"
	OrderKindOffer   OrderKind = "offer"
)

// Trader builds buy transactions and posts signed orders.
type Trader interface {
	Provider
	FulfillListing(ctx context.Context, req FulfillRequest) (model.TxRequest, error)
	PostOrder(ctx context.Context, kind OrderKind, chain id.Chain, order orders.Signed) (string, error)
}

// Marketplace is everything the commands need from one marketplace.
type Marketplace interface {
	MarketReader
	HoldingsReader
	Trader
}

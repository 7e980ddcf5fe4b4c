package opensea

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/httpx"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/orders"
	"github.com/ggonzalez94/nft-cli/internal/providers"
	"github.com/ggonzalez94/nft-cli/internal/registry"
)

const (
	accountPageSize = 200
	maxAccountPages = 25
	maxListingLimit = 100
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

var _ providers.Marketplace = (*Client)(nil)

func New(httpClient *httpx.Client, apiKey, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.OpenSeaBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		now:     time.Now,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        registry.OpenSeaProviderTag,
		Type:        "marketplace",
		RequiresKey: true,
		KeyEnvVar:   registry.OpenSeaAPIKeyEnv,
		Capabilities: []string{
			"collection.stats",
			"collection.last_sale",
			"listings.best",
			"listings.fulfill",
			"orders.post",
			"account.nfts",
		},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, c.headers(), out)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode marketplace request", err)
	}
	_, err = httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+path, buf, c.headers(), out)
	return err
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-API-KEY": c.apiKey}
}

type statsResp struct {
	Total struct {
		Volume      float64 `json:"volume"`
		Sales       float64 `json:"sales"`
		NumOwners   int     `json:"num_owners"`
		FloorPrice  float64 `json:"floor_price"`
		FloorSymbol string  `json:"floor_price_symbol"`
	} `json:"total"`
}

func (c *Client) CollectionStats(ctx context.Context, collection string) (model.CollectionStats, error) {
	slug, err := id.ParseCollection(collection)
	if err != nil {
		return model.CollectionStats{}, err
	}
	var resp statsResp
	if err := c.get(ctx, "/api/v2/collections/"+url.PathEscape(slug)+"/stats", nil, &resp); err != nil {
		return model.CollectionStats{}, err
	}
	stats := model.CollectionStats{
		Collection: slug,
		Owners:     resp.Total.NumOwners,
		TotalSales: int64(resp.Total.Sales),
		FetchedAt:  c.now().UTC().Format(time.RFC3339),
	}
	if resp.Total.FloorPrice > 0 {
		floor, err := priceFromFloat(resp.Total.FloorPrice, resp.Total.FloorSymbol)
		if err != nil {
			return model.CollectionStats{}, err
		}
		stats.Floor = &floor
	}
	return stats, nil
}

type payment struct {
	Quantity     string `json:"quantity"`
	TokenAddress string `json:"token_address"`
	Decimals     int    `json:"decimals"`
	Symbol       string `json:"symbol"`
}

type eventsResp struct {
	AssetEvents []struct {
		EventType   string  `json:"event_type"`
		Payment     payment `json:"payment"`
		ClosingDate int64   `json:"closing_date"`
	} `json:"asset_events"`
}

// LastSale returns nil when the collection has no recorded sale.
func (c *Client) LastSale(ctx context.Context, collection string) (*model.Price, error) {
	slug, err := id.ParseCollection(collection)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("event_type", "sale")
	query.Set("limit", "1")
	var resp eventsResp
	if err := c.get(ctx, "/api/v2/events/collection/"+url.PathEscape(slug), query, &resp); err != nil {
		return nil, err
	}
	for _, ev := range resp.AssetEvents {
		if ev.EventType != "" && ev.EventType != "sale" {
			continue
		}
		amount, err := id.ParseBaseUnits(ev.Payment.Quantity)
		if err != nil {
			return nil, err
		}
		price := id.NewPrice(symbolOrETH(ev.Payment.Symbol), amount, decimalsOrEther(ev.Payment.Decimals))
		return &price, nil
	}
	return nil, nil
}

type nftResp struct {
	Identifier    string `json:"identifier"`
	Collection    string `json:"collection"`
	Contract      string `json:"contract"`
	TokenStandard string `json:"token_standard"`
	Name          string `json:"name"`
	ImageURL      string `json:"image_url"`
}

type accountNFTsResp struct {
	NFTs []nftResp `json:"nfts"`
	Next string    `json:"next"`
}

// AccountNFTs follows the "next" cursor until the wallet is exhausted.
func (c *Client) AccountNFTs(ctx context.Context, chain id.Chain, owner, collection string) ([]model.NFT, error) {
	addr, err := id.ParseAddress(owner, "wallet")
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(accountPageSize))
	if strings.TrimSpace(collection) != "" {
		slug, err := id.ParseCollection(collection)
		if err != nil {
			return nil, err
		}
		query.Set("collection", slug)
	}
	path := fmt.Sprintf("/api/v2/chain/%s/account/%s/nfts", url.PathEscape(chain.Slug), addr)

	out := []model.NFT{}
	for page := 0; page < maxAccountPages; page++ {
		var resp accountNFTsResp
		if err := c.get(ctx, path, query, &resp); err != nil {
			return nil, err
		}
		for _, n := range resp.NFTs {
			out = append(out, model.NFT{
				Chain:      chain.Slug,
				Contract:   strings.ToLower(n.Contract),
				TokenID:    n.Identifier,
				Collection: n.Collection,
				Name:       n.Name,
				Standard:   n.TokenStandard,
				ImageURL:   n.ImageURL,
			})
		}
		if resp.Next == "" {
			return out, nil
		}
		query.Set("next", resp.Next)
	}
	return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("wallet holdings exceed %d pages", maxAccountPages))
}

type listingResp struct {
	OrderHash string `json:"order_hash"`
	Chain     string `json:"chain"`
	Price     struct {
		Current struct {
			Currency string `json:"currency"`
			Decimals int    `json:"decimals"`
			Value    string `json:"value"`
		} `json:"current"`
	} `json:"price"`
	ProtocolData struct {
		Parameters listingParams `json:"parameters"`
	} `json:"protocol_data"`
	ProtocolAddress string `json:"protocol_address"`
}

// listingParams is the slice of the order parameters the CLI reads. The
// marketplace mixes numbers and strings there, so only stable fields decode.
type listingParams struct {
	Offerer string `json:"offerer"`
	Offer   []struct {
		ItemType             orders.ItemType `json:"itemType"`
		Token                string          `json:"token"`
		IdentifierOrCriteria string          `json:"identifierOrCriteria"`
	} `json:"offer"`
	EndTime string `json:"endTime"`
}

type bestListingsResp struct {
	Listings []listingResp `json:"listings"`
	Next     string        `json:"next"`
}

// BestListings returns the cheapest active listings, lowest price first.
func (c *Client) BestListings(ctx context.Context, collection string, limit int) ([]model.Listing, error) {
	slug, err := id.ParseCollection(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxListingLimit {
		limit = maxListingLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	var resp bestListingsResp
	if err := c.get(ctx, "/api/v2/listings/collection/"+url.PathEscape(slug)+"/best", query, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Listing, 0, len(resp.Listings))
	for _, item := range resp.Listings {
		listing, err := toListing(slug, item)
		if err != nil {
			return nil, err
		}
		out = append(out, listing)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return comparePrice(out[i].Price, out[j].Price) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) BestListing(ctx context.Context, collection, tokenID string) (model.Listing, error) {
	slug, err := id.ParseCollection(collection)
	if err != nil {
		return model.Listing{}, err
	}
	token, err := id.ParseTokenID(tokenID)
	if err != nil {
		return model.Listing{}, err
	}
	var resp listingResp
	path := fmt.Sprintf("/api/v2/listings/collection/%s/nfts/%s/best", url.PathEscape(slug), token.String())
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return model.Listing{}, err
	}
	if resp.OrderHash == "" {
		return model.Listing{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no active listing for %s #%s", slug, token.String()))
	}
	return toListing(slug, resp)
}

func toListing(slug string, item listingResp) (model.Listing, error) {
	amount, err := id.ParseBaseUnits(item.Price.Current.Value)
	if err != nil {
		return model.Listing{}, err
	}
	listing := model.Listing{
		OrderHash:  item.OrderHash,
		Chain:      item.Chain,
		Protocol:   item.ProtocolAddress,
		Collection: slug,
		Maker:      strings.ToLower(item.ProtocolData.Parameters.Offerer),
		Price:      id.NewPrice(symbolOrETH(item.Price.Current.Currency), amount, decimalsOrEther(item.Price.Current.Decimals)),
	}
	for _, offer := range item.ProtocolData.Parameters.Offer {
		if offer.ItemType == orders.ItemERC721 || offer.ItemType == orders.ItemERC1155 {
			listing.Contract = strings.ToLower(offer.Token)
			listing.TokenID = offer.IdentifierOrCriteria
			break
		}
	}
	if end, err := strconv.ParseInt(item.ProtocolData.Parameters.EndTime, 10, 64); err == nil && end > 0 {
		listing.ExpiresAt = time.Unix(end, 0).UTC().Format(time.RFC3339)
	}
	return listing, nil
}

type fulfillmentResp struct {
	Protocol        string `json:"protocol"`
	FulfillmentData struct {
		Transaction struct {
			Function  string      `json:"function"`
			To        string      `json:"to"`
			Value     json.Number `json:"value"`
			InputData struct {
				Parameters basicOrderJSON `json:"parameters"`
			} `json:"input_data"`
		} `json:"transaction"`
	} `json:"fulfillment_data"`
}

// FulfillListing asks the marketplace for the fill parameters of a listing
// and packs them into a Seaport fulfillBasicOrder call.
func (c *Client) FulfillListing(ctx context.Context, req providers.FulfillRequest) (model.TxRequest, error) {
	fulfiller, err := id.ParseAddress(req.Fulfiller, "fulfiller")
	if err != nil {
		return model.TxRequest{}, err
	}
	if strings.TrimSpace(req.OrderHash) == "" {
		return model.TxRequest{}, clierr.New(clierr.CodeUsage, "order hash is required")
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = registry.SeaportAddress
	}
	body := map[string]any{
		"listing": map[string]any{
			"hash":             req.OrderHash,
			"chain":            req.Chain.Slug,
			"protocol_address": protocol,
		},
		"fulfiller": map[string]any{"address": fulfiller},
	}
	var resp fulfillmentResp
	if err := c.post(ctx, "/api/v2/listings/fulfillment_data", body, &resp); err != nil {
		return model.TxRequest{}, err
	}
	tx := resp.FulfillmentData.Transaction
	if !registry.IsSeaport(tx.To) {
		return model.TxRequest{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("fulfillment targets unexpected contract %s", tx.To))
	}
	value, ok := new(big.Int).SetString(tx.Value.String(), 10)
	if !ok {
		value = new(big.Int)
	}
	data, err := packFulfillBasicOrder(tx.InputData.Parameters)
	if err != nil {
		return model.TxRequest{}, err
	}
	return model.TxRequest{
		ChainID: req.Chain.CAIP2,
		To:      strings.ToLower(tx.To),
		Data:    data,
		Value:   value.String(),
	}, nil
}

type postOrderResp struct {
	Order struct {
		OrderHash string `json:"order_hash"`
	} `json:"order"`
}

// PostOrder publishes a signed listing or offer and returns its order hash.
func (c *Client) PostOrder(ctx context.Context, kind providers.OrderKind, chain id.Chain, order orders.Signed) (string, error) {
	var segment string
	switch kind {
	case providers.OrderKindListing:
		segment = "listings"
	case providers.OrderKindOffer:
		segment = "offers"
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported order kind %q", kind))
	}
	var resp postOrderResp
	path := fmt.Sprintf("/api/v2/orders/%s/seaport/%s", url.PathEscape(chain.Slug), segment)
	if err := c.post(ctx, path, order, &resp); err != nil {
		return "", err
	}
	return resp.Order.OrderHash, nil
}

func priceFromFloat(v float64, symbol string) (model.Price, error) {
	d := decimal.NewFromFloat(v).Truncate(id.EtherDecimals)
	base, err := id.ToBaseUnits(d, id.EtherDecimals)
	if err != nil {
		return model.Price{}, err
	}
	return id.NewPrice(symbolOrETH(symbol), base, id.EtherDecimals), nil
}

func comparePrice(a, b model.Price) int {
	x, errA := id.PriceDecimal(a)
	y, errB := id.PriceDecimal(b)
	if errA != nil || errB != nil {
		return 0
	}
	return x.Cmp(y)
}

func symbolOrETH(s string) string {
	if strings.TrimSpace(s) == "" {
		return "ETH"
	}
	return strings.ToUpper(s)
}

func decimalsOrEther(d int) int {
	if d <= 0 {
		return id.EtherDecimals
	}
	return d
}

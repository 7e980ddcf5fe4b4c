package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ggonzalez94/nft-cli/internal/cache"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/providers"
)

// holdingsSource reads a wallet's NFTs through the holdings cache. It is the
// wizard's inventory and backs the holdings command.
type holdingsSource struct {
	cache   *cache.Store
	market  providers.HoldingsReader
	chain   id.Chain
	wallet  string
	ttl     time.Duration
	refresh bool
	now     func() time.Time
	logger  *slog.Logger

	status    model.CacheStatus
	providers []model.ProviderStatus
	name      string
}

func (s *runtimeState) holdingsFor(wallet string, refresh bool) *holdingsSource {
	return &holdingsSource{
		cache:   s.cache,
		market:  s.market,
		chain:   s.chain,
		wallet:  strings.ToLower(wallet),
		ttl:     s.settings.HoldingsTTL,
		refresh: refresh,
		now:     s.runner.now,
		logger:  s.logger,
		status:  cacheMetaBypass(),
		name:    s.marketInfo.Name,
	}
}

// Load returns cached holdings while fresh, otherwise fetches and writes them
// back. Cache failures are logged and never fail the read.
func (h *holdingsSource) Load(ctx context.Context) (model.Holdings, error) {
	if h.cache != nil && !h.refresh {
		res, err := h.cache.Holdings(ctx, h.wallet, h.chain.Slug, h.ttl)
		switch {
		case err != nil:
			h.logger.Warn("holdings cache read failed", "wallet", h.wallet, "error", err)
		case res.Hit && !res.Stale:
			h.status = model.CacheStatus{Status: "hit", AgeMS: res.Age.Milliseconds()}
			return res.Holdings, nil
		}
	}

	start := time.Now()
	items, err := h.market.AccountNFTs(ctx, h.chain, h.wallet, "")
	h.providers = append(h.providers, model.ProviderStatus{Name: h.name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()})
	if err != nil {
		return model.Holdings{}, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Collection != items[j].Collection {
			return items[i].Collection < items[j].Collection
		}
		return lessTokenID(items[i].TokenID, items[j].TokenID)
	})
	holdings := model.Holdings{
		Wallet:    h.wallet,
		Chain:     h.chain.Slug,
		Items:     items,
		FetchedAt: h.now().UTC().Format(time.RFC3339),
	}
	h.status = cacheMetaMiss()
	if h.cache != nil {
		if err := h.cache.PutHoldings(ctx, holdings); err != nil {
			h.logger.Warn("holdings cache write failed", "wallet", h.wallet, "error", err)
		} else {
			h.status = model.CacheStatus{Status: "write"}
		}
	}
	return holdings, nil
}

func (h *holdingsSource) NFTs(ctx context.Context) ([]model.NFT, error) {
	holdings, err := h.Load(ctx)
	if err != nil {
		return nil, err
	}
	return holdings.Items, nil
}

// lessTokenID orders numeric ids by value; longer decimal strings are larger.
func lessTokenID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

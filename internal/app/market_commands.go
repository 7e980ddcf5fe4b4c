package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

const (
	floorTTL = time.Minute
	scanTTL  = 30 * time.Second
)

func (s *runtimeState) newFloorCommand() *cobra.Command {
	var collectionArg string
	cmd := &cobra.Command{
		Use:   "floor",
		Short: "Floor price and last sale for a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, err := s.allowedCollection(collectionArg)
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			key := cacheKey(path, map[string]any{"chain": s.chain.Slug, "collection": slug})
			return s.runCachedCommand(cmd.Context(), path, key, floorTTL, func(ctx context.Context) (any, []model.ProviderStatus, error) {
				start := time.Now()
				stats, err := s.market.CollectionStats(ctx, slug)
				if err == nil && stats.LastSale == nil {
					stats.LastSale, err = s.market.LastSale(ctx, slug)
				}
				return stats, []model.ProviderStatus{s.providerStatus(start, err)}, err
			})
		},
	}
	cmd.Flags().StringVar(&collectionArg, "collection", "", "Collection slug")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func (s *runtimeState) newScanCommand() *cobra.Command {
	var collectionArg, minGapArg string
	var limit, top int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find pricing gaps between the cheapest listings of a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, err := s.allowedCollection(collectionArg)
			if err != nil {
				return err
			}
			if limit < 2 || limit > 100 {
				return clierr.New(clierr.CodeUsage, "--limit must be between 2 and 100")
			}
			minGap, err := id.ParseDecimal(minGapArg, "--min-gap-pct")
			if err != nil {
				return err
			}
			if minGap.IsNegative() {
				return clierr.New(clierr.CodeUsage, "--min-gap-pct must be >= 0")
			}
			path := trimRootPath(cmd.CommandPath())
			req := map[string]any{"chain": s.chain.Slug, "collection": slug, "limit": limit, "min_gap_pct": minGap.String(), "top": top}
			return s.runCachedCommand(cmd.Context(), path, cacheKey(path, req), scanTTL, func(ctx context.Context) (any, []model.ProviderStatus, error) {
				start := time.Now()
				listings, err := s.market.BestListings(ctx, slug, limit)
				status := []model.ProviderStatus{s.providerStatus(start, err)}
				if err != nil {
					return nil, status, err
				}
				gaps, err := computeGaps(listings, minGap, top)
				if err != nil {
					return nil, status, err
				}
				result := model.ScanResult{
					Collection: slug,
					Scanned:    len(listings),
					Gaps:       gaps,
					FetchedAt:  s.runner.now().UTC().Format(time.RFC3339),
				}
				if len(listings) > 0 {
					floor := listings[0].Price
					result.Floor = &floor
				}
				return result, status, nil
			})
		},
	}
	cmd.Flags().StringVar(&collectionArg, "collection", "", "Collection slug")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of cheapest listings to scan (2-100)")
	cmd.Flags().StringVar(&minGapArg, "min-gap-pct", "0", "Only report gaps of at least this percent")
	cmd.Flags().IntVar(&top, "top", 10, "Maximum gaps to return (0 for all)")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func (s *runtimeState) newHoldingsCommand() *cobra.Command {
	var walletArg, collectionArg string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "NFTs held by a wallet (cached)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			wallet, err := s.resolveWallet(walletArg)
			if err != nil {
				return err
			}
			collection := ""
			if collectionArg != "" {
				if collection, err = id.ParseCollection(collectionArg); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			source := s.holdingsFor(wallet, refresh)
			holdings, err := source.Load(ctx)
			s.captureCommandDiagnostics(nil, source.providers)
			if err != nil {
				return err
			}
			items := s.collections.FilterNFTs(holdings.Items)
			if collection != "" {
				kept := items[:0]
				for _, item := range items {
					if item.Collection == collection {
						kept = append(kept, item)
					}
				}
				items = kept
			}
			holdings.Items = items
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), holdings, nil, source.status, source.providers)
		},
	}
	cmd.Flags().StringVar(&walletArg, "wallet", "", "Wallet address (defaults to config wallet, then the signer)")
	cmd.Flags().StringVar(&collectionArg, "collection", "", "Only show this collection")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass cached holdings and refetch")
	return cmd
}

func (s *runtimeState) allowedCollection(raw string) (string, error) {
	slug, err := id.ParseCollection(raw)
	if err != nil {
		return "", err
	}
	if err := s.collections.Check(slug); err != nil {
		return "", err
	}
	return slug, nil
}

// resolveWallet picks --wallet, then the configured wallet, then the address
// of the configured key.
func (s *runtimeState) resolveWallet(flagValue string) (string, error) {
	for _, candidate := range []string{flagValue, s.settings.Wallet} {
		if candidate != "" {
			return id.ParseAddress(candidate, "wallet")
		}
	}
	txSigner, err := s.runner.newSigner(s.settings.KeySource, "")
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "--wallet is required when no signing key is configured", err)
	}
	return id.ParseAddress(txSigner.Address().Hex(), "wallet")
}

package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/execution"
	"github.com/ggonzalez94/nft-cli/internal/execution/signer"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/orders"
	"github.com/ggonzalez94/nft-cli/internal/providers"
	"github.com/ggonzalez94/nft-cli/internal/registry"
)

// txFlags are shared by every command that signs.
type txFlags struct {
	privateKey     string
	rpcURL         string
	dryRun         bool
	maxFeeGwei     string
	maxPriorityFee string
}

func (f *txFlags) register(cmd *cobra.Command, dryRunUsage string) {
	cmd.Flags().StringVar(&f.privateKey, "private-key", "", "Hex private key (overrides the configured key source)")
	cmd.Flags().StringVar(&f.rpcURL, "rpc-url", "", "RPC endpoint (defaults to config, then the chain default)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, dryRunUsage)
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "EIP-1559 max fee per gas in gwei")
	cmd.Flags().StringVar(&f.maxPriorityFee, "max-priority-fee-gwei", "", "EIP-1559 priority fee in gwei")
}

func (s *runtimeState) signer(privateKey string) (signer.Signer, error) {
	txSigner, err := s.runner.newSigner(s.settings.KeySource, privateKey)
	if err != nil {
		if _, ok := clierr.As(err); ok {
			return nil, err
		}
		return nil, clierr.Wrap(clierr.CodeSigner, "load signer", err)
	}
	return txSigner, nil
}

func (s *runtimeState) chainBackend(ctx context.Context, override string) (execution.Backend, func(), error) {
	if override == "" {
		override = s.settings.RPCURL
	}
	rpcURL, err := registry.ResolveRPCURL(override, s.chain.EVMChainID)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	backend, closeFn, err := s.runner.dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return backend, closeFn, nil
}

func (s *runtimeState) executeOptions(f txFlags) execution.Options {
	opts := execution.DefaultOptions()
	opts.DryRun = f.dryRun
	opts.MaxFeeGwei = f.maxFeeGwei
	opts.MaxPriorityFeeGwei = f.maxPriorityFee
	opts.Logger = s.logger
	return opts
}

// orderNonce reads the offerer's Seaport counter and draws a fresh salt.
func orderNonce(ctx context.Context, backend execution.Backend, offerer string) (*big.Int, *big.Int, error) {
	counter, err := execution.Counter(ctx, backend, offerer)
	if err != nil {
		return nil, nil, err
	}
	salt, err := orders.NewSalt()
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeInternal, "generate order salt", err)
	}
	return counter, salt, nil
}

// signAndPost signs comps and, unless dryRun, posts it. receipt carries the
// collection, token and price; the rest is filled in here.
func (s *runtimeState) signAndPost(ctx context.Context, kind providers.OrderKind, comps orders.Components, txSigner signer.Signer, receipt model.OrderReceipt, dryRun bool) (model.OrderReceipt, []model.ProviderStatus, error) {
	signed, hash, err := orders.Sign(comps, s.chain.EVMChainID, txSigner)
	if err != nil {
		return model.OrderReceipt{}, nil, err
	}
	expiry, err := comps.Expiry()
	if err != nil {
		return model.OrderReceipt{}, nil, clierr.Wrap(clierr.CodeInternal, "read order expiry", err)
	}
	receipt.Kind = string(kind)
	receipt.OrderHash = hash.Hex()
	receipt.Chain = s.chain.Slug
	receipt.ExpiresAt = expiry.UTC().Format(time.RFC3339)
	if dryRun {
		return receipt, nil, nil
	}

	start := time.Now()
	orderHash, err := s.market.PostOrder(ctx, kind, s.chain, signed)
	status := []model.ProviderStatus{s.providerStatus(start, err)}
	if err != nil {
		return model.OrderReceipt{}, status, err
	}
	if orderHash != "" {
		receipt.OrderHash = orderHash
	}
	receipt.Posted = true
	s.logger.Info("order posted", "kind", kind, "order_hash", receipt.OrderHash, "collection", receipt.Collection, "token_id", receipt.TokenID)
	return receipt, status, nil
}

func (s *runtimeState) newBuyCommand() *cobra.Command {
	var collectionArg, tokenArg string
	var tx txFlags
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy the best listing for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			slug, err := s.allowedCollection(collectionArg)
			if err != nil {
				return err
			}
			tokenID, err := id.ParseTokenID(tokenArg)
			if err != nil {
				return err
			}
			txSigner, err := s.signer(tx.privateKey)
			if err != nil {
				return err
			}
			buyer := txSigner.Address().Hex()
			ctx := cmd.Context()

			start := time.Now()
			listing, err := s.market.BestListing(ctx, slug, tokenID.String())
			statuses := []model.ProviderStatus{s.providerStatus(start, err)}
			s.captureCommandDiagnostics(nil, statuses)
			if err != nil {
				return err
			}
			if strings.EqualFold(listing.Maker, buyer) {
				return clierr.New(clierr.CodeUsage, "the best listing for this token is your own")
			}

			start = time.Now()
			req, err := s.market.FulfillListing(ctx, providers.FulfillRequest{
				Chain:     s.chain,
				OrderHash: listing.OrderHash,
				Protocol:  listing.Protocol,
				Fulfiller: buyer,
			})
			statuses = append(statuses, s.providerStatus(start, err))
			s.captureCommandDiagnostics(nil, statuses)
			if err != nil {
				return err
			}

			backend, closeFn, err := s.chainBackend(ctx, tx.rpcURL)
			if err != nil {
				return err
			}
			defer closeFn()
			result, err := execution.Execute(ctx, backend, txSigner, req, s.executeOptions(tx))
			if err != nil {
				return err
			}

			receipt := model.PurchaseReceipt{
				OrderHash:  listing.OrderHash,
				Chain:      s.chain.Slug,
				Collection: slug,
				TokenID:    tokenID.String(),
				Price:      listing.Price,
				TxHash:     result.TxHash,
				Status:     result.Status,
				Simulated:  result.Status == execution.StatusSimulated,
			}
			if result.Status == execution.StatusConfirmed {
				receipt.BlockNumber = fmt.Sprintf("%d", result.BlockNumber)
				receipt.GasUsed = fmt.Sprintf("%d", result.GasUsed)
				if s.cache != nil {
					if err := s.cache.InvalidateHoldings(ctx, buyer, s.chain.Slug); err != nil {
						s.logger.Warn("invalidate holdings failed", "wallet", buyer, "error", err)
					}
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), receipt, nil, cacheMetaBypass(), statuses)
		},
	}
	cmd.Flags().StringVar(&collectionArg, "collection", "", "Collection slug")
	cmd.Flags().StringVar(&tokenArg, "token-id", "", "Token id")
	tx.register(cmd, "Simulate the purchase without broadcasting")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("token-id")
	return cmd
}

func (s *runtimeState) newOfferCommand() *cobra.Command {
	var collectionArg, tokenArg, priceArg, contractArg, durationArg string
	var tx txFlags
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Sign and post an offer on a token, paid in wrapped native currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			slug, err := s.allowedCollection(collectionArg)
			if err != nil {
				return err
			}
			tokenID, err := id.ParseTokenID(tokenArg)
			if err != nil {
				return err
			}
			amount, err := id.ParseDecimal(priceArg, "--price")
			if err != nil {
				return err
			}
			if !amount.IsPositive() {
				return clierr.New(clierr.CodeUsage, "--price must be greater than zero")
			}
			wei, err := id.ToBaseUnits(amount, id.EtherDecimals)
			if err != nil {
				return err
			}
			duration := s.settings.OfferDuration
			if durationArg != "" {
				if duration, err = time.ParseDuration(durationArg); err != nil || duration <= 0 {
					return clierr.New(clierr.CodeUsage, "--duration must be a positive duration like 72h")
				}
			}
			weth, ok := registry.WrappedNative(s.chain.EVMChainID)
			if !ok {
				return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("offers are not supported on %s", s.chain.Name))
			}
			txSigner, err := s.signer(tx.privateKey)
			if err != nil {
				return err
			}
			offerer := txSigner.Address().Hex()
			ctx := cmd.Context()

			var statuses []model.ProviderStatus
			contract := contractArg
			if contract == "" {
				start := time.Now()
				listing, err := s.market.BestListing(ctx, slug, tokenID.String())
				statuses = append(statuses, s.providerStatus(start, err))
				if err != nil {
					if cErr, ok := clierr.As(err); ok && cErr.Code == clierr.CodeNotFound {
						return clierr.New(clierr.CodeUsage, "--contract is required when the token has no active listing")
					}
					return err
				}
				contract = listing.Contract
			}
			if contract, err = id.ParseAddress(contract, "--contract"); err != nil {
				return err
			}

			backend, closeFn, err := s.chainBackend(ctx, tx.rpcURL)
			if err != nil {
				return err
			}
			defer closeFn()
			var warnings []string
			if err := execution.PaymentReadiness(ctx, backend, weth, offerer, wei); err != nil {
				if !tx.dryRun {
					return err
				}
				warnings = append(warnings, err.Error())
			}
			counter, salt, err := orderNonce(ctx, backend, offerer)
			if err != nil {
				return err
			}
			comps, err := orders.NewOffer(orders.Params{
				Offerer:  offerer,
				Contract: contract,
				TokenID:  tokenID,
				Price:    wei,
				Start:    s.runner.now(),
				Duration: duration,
				Counter:  counter,
				Salt:     salt,
				FeeBps:   registry.FeeBps,
			}, weth)
			if err != nil {
				return err
			}
			receipt, posted, err := s.signAndPost(ctx, providers.OrderKindOffer, comps, txSigner, model.OrderReceipt{
				Collection: slug,
				TokenID:    tokenID.String(),
				Price:      id.NewPrice("WETH", wei, id.EtherDecimals),
			}, tx.dryRun)
			statuses = append(statuses, posted...)
			s.captureCommandDiagnostics(warnings, statuses)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), receipt, warnings, cacheMetaBypass(), statuses)
		},
	}
	cmd.Flags().StringVar(&collectionArg, "collection", "", "Collection slug")
	cmd.Flags().StringVar(&tokenArg, "token-id", "", "Token id")
	cmd.Flags().StringVar(&priceArg, "price", "", "Offer amount in wrapped native currency, e.g. 0.5")
	cmd.Flags().StringVar(&contractArg, "contract", "", "NFT contract (defaults to the one on the token's best listing)")
	cmd.Flags().StringVar(&durationArg, "duration", "", "Offer lifetime (defaults to listing.offer_duration)")
	tx.register(cmd, "Sign the offer without posting it")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("token-id")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

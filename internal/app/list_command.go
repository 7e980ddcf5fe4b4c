package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/execution"
	"github.com/ggonzalez94/nft-cli/internal/execution/signer"
	"github.com/ggonzalez94/nft-cli/internal/flow"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/orders"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
	"github.com/ggonzalez94/nft-cli/internal/providers"
	"github.com/ggonzalez94/nft-cli/internal/registry"
	"github.com/ggonzalez94/nft-cli/internal/schema"
	"github.com/ggonzalez94/nft-cli/internal/session"
	"github.com/ggonzalez94/nft-cli/internal/steps"
)

const listCommand = "list"

func (s *runtimeState) newListCommand() *cobra.Command {
	var presets steps.Presets
	var resumeID string
	var noInput, approve bool
	var tx txFlags
	cmd := &cobra.Command{
		Use:         listCommand,
		Short:       "List an NFT for sale with a step-by-step wizard",
		Annotations: map[string]string{schema.AnnotationInteractive: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			ctx := cmd.Context()
			path := trimRootPath(cmd.CommandPath())
			txSigner, err := s.signer(tx.privateKey)
			if err != nil {
				return err
			}
			manager, err := s.openFlow(ctx, resumeID)
			if err != nil {
				return err
			}

			source := s.holdingsFor(txSigner.Address().Hex(), false)
			wizard := steps.New(steps.Config{
				Prompt:    s.prompter(noInput),
				Inventory: source,
				Prices:    s.market,
				Policy:    s.collections,
				Presets:   presets,
				Out:       s.runner.stderr,
				Duration:  s.settings.ListingDuration,
				Now:       s.runner.now,
			})
			controller := flow.NewController(manager, wizard.Handlers(),
				flow.WithLogger(s.logger),
				flow.WithCheckpoint(s.checkpoint(path)),
			)
			res, err := controller.Run(ctx)
			s.captureCommandDiagnostics(nil, source.providers)
			if err != nil {
				return flowError(err)
			}
			if res.Cancelled {
				s.forgetSession(ctx)
				return clierr.New(clierr.CodeCancelled, "listing cancelled")
			}

			draft, err := steps.DecodeDraft(res.Context)
			if err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return clierr.Wrap(clierr.CodeFlow, "incomplete listing", err)
			}
			receipt, warnings, posted, err := s.postListing(ctx, draft, txSigner, tx, approve)
			statuses := append(append([]model.ProviderStatus(nil), source.providers...), posted...)
			s.captureCommandDiagnostics(warnings, statuses)
			if err != nil {
				return err
			}
			s.forgetSession(ctx)
			return s.emitSuccess(path, receipt, warnings, source.status, statuses)
		},
	}
	cmd.Flags().StringVar(&resumeID, "resume", "", "Resume a saved listing session by id")
	cmd.Flags().StringVar(&presets.Collection, "collection", "", "Preselect the collection")
	cmd.Flags().StringVar(&presets.TokenID, "token-id", "", "Preselect the token id")
	cmd.Flags().StringVar(&presets.Method, "method", "", "Pricing method (fixed|floor|last-sale)")
	cmd.Flags().StringVar(&presets.Value, "value", "", "Price in ETH for fixed, percent offset otherwise")
	cmd.Flags().BoolVar(&presets.Yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt; every step must be preset by flags")
	cmd.Flags().BoolVar(&approve, "approve", false, "Send the conduit approval transaction if the collection is not yet approved")
	tx.register(cmd, "Sign the listing without posting it")
	return cmd
}

// prompter returns nil when the wizard must run from presets alone.
func (s *runtimeState) prompter(noInput bool) prompt.Prompter {
	if noInput {
		return nil
	}
	if s.runner.prompter != nil {
		return s.runner.prompter
	}
	if s.runner.interactive == nil || !s.runner.interactive() {
		return nil
	}
	return prompt.NewHuh(prompt.WithIO(s.runner.stdin, s.runner.stderr))
}

// openFlow starts a fresh wizard or restores the saved session resumeID.
func (s *runtimeState) openFlow(ctx context.Context, resumeID string) (*flow.Manager, error) {
	manager, err := flow.New(
		flow.WithMaxHistorySize(s.settings.FlowHistorySize),
		flow.WithClock(s.runner.now),
	)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create listing flow", err)
	}
	if resumeID == "" {
		s.sessionID = session.NewID()
		return manager, nil
	}

	rec, err := s.sessions.Load(ctx, resumeID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("session %s not found", resumeID))
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "load session", err)
	}
	if rec.Command != listCommand {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("session %s belongs to %q, not %q", rec.ID, rec.Command, listCommand))
	}
	if err := manager.Deserialize(rec.Payload); err != nil {
		return nil, clierr.Wrap(clierr.CodeFlow, "restore session", err)
	}
	// A completed session failed while posting; resuming it retries the post.
	if manager.IsCancelled() {
		return nil, clierr.New(clierr.CodeFlow, fmt.Sprintf("session %s was cancelled", rec.ID))
	}
	s.sessionID = rec.ID
	s.logger.Debug("session resumed", "session", rec.ID, "state", manager.CurrentState())
	return manager, nil
}

// checkpoint saves the flow after every applied step. A failed save is logged
// and the wizard carries on; only resumability is lost.
func (s *runtimeState) checkpoint(command string) flow.CheckpointFunc {
	return func(ctx context.Context, snap flow.Snapshot) error {
		if s.sessions == nil {
			return nil
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "encode session", err)
		}
		rec := session.Record{
			ID:        s.sessionID,
			Command:   command,
			State:     snap.CurrentState.String(),
			UpdatedAt: s.runner.now().UTC(),
			Payload:   payload,
		}
		if err := s.sessions.Save(ctx, rec); err != nil {
			s.logger.Warn("save session failed", "session", s.sessionID, "error", err)
		}
		return nil
	}
}

func (s *runtimeState) forgetSession(ctx context.Context) {
	if s.sessions == nil || s.sessionID == "" {
		return
	}
	if err := s.sessions.Delete(ctx, s.sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("delete session failed", "session", s.sessionID, "error", err)
	}
}

func flowError(err error) error {
	if _, ok := clierr.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, prompt.ErrAborted) {
		return clierr.Wrap(clierr.CodeCancelled, "listing interrupted; resume it with --resume", err)
	}
	var fe *flow.Error
	if errors.As(err, &fe) {
		return clierr.Wrap(clierr.CodeFlow, "listing flow", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "listing flow", err)
}

// postListing checks conduit approval, then builds, signs and posts the
// Seaport listing for draft.
func (s *runtimeState) postListing(ctx context.Context, draft steps.ListingDraft, txSigner signer.Signer, tx txFlags, approve bool) (model.OrderReceipt, []string, []model.ProviderStatus, error) {
	price, err := draft.PriceWei()
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	tokenID, err := id.ParseTokenID(draft.TokenID)
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	backend, closeFn, err := s.chainBackend(ctx, tx.rpcURL)
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	defer closeFn()

	owner := txSigner.Address().Hex()
	var warnings []string
	approved, err := execution.IsApprovedForAll(ctx, backend, draft.Contract, owner)
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	if !approved {
		notice := fmt.Sprintf("%s is not approved for the marketplace conduit", draft.Collection)
		switch {
		case tx.dryRun:
			warnings = append(warnings, notice+"; rerun with --approve before posting")
		case !approve:
			return model.OrderReceipt{}, nil, nil, clierr.New(clierr.CodeUsage, notice+"; rerun with --approve to grant it")
		default:
			req, err := execution.ApprovalTx(s.chain, draft.Contract)
			if err != nil {
				return model.OrderReceipt{}, nil, nil, err
			}
			result, err := execution.Execute(ctx, backend, txSigner, req, s.executeOptions(tx))
			if err != nil {
				return model.OrderReceipt{}, nil, nil, err
			}
			s.logger.Info("conduit approved", "collection", draft.Collection, "tx", result.TxHash)
		}
	}

	counter, salt, err := orderNonce(ctx, backend, owner)
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	comps, err := orders.NewListing(orders.Params{
		Offerer:  owner,
		Contract: draft.Contract,
		TokenID:  tokenID,
		Price:    price,
		Start:    s.runner.now(),
		Duration: s.settings.ListingDuration,
		Counter:  counter,
		Salt:     salt,
		FeeBps:   registry.FeeBps,
	})
	if err != nil {
		return model.OrderReceipt{}, nil, nil, err
	}
	receipt, statuses, err := s.signAndPost(ctx, providers.OrderKindListing, comps, txSigner, model.OrderReceipt{
		Collection: draft.Collection,
		TokenID:    draft.TokenID,
		Price:      id.NewPrice("ETH", price, id.EtherDecimals),
	}, tx.dryRun)
	return receipt, warnings, statuses, err
}

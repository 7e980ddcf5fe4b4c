package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/flow"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/policy"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
)

// Inventory is the wallet's NFTs, typically served from the holdings cache.
type Inventory interface {
	NFTs(ctx context.Context) ([]model.NFT, error)
}

// PriceSource resolves reference prices for relative pricing methods.
type PriceSource interface {
	CollectionStats(ctx context.Context, collection string) (model.CollectionStats, error)
	LastSale(ctx context.Context, collection string) (*model.Price, error)
}

// Presets pre-answer steps from command-line flags. Each preset is used only
// the first time its step runs; after a back-navigation the user is asked.
type Presets struct {
	Collection string
	TokenID    string
	Method     string
	Value      string
	Yes        bool
}

type Config struct {
	Prompt    prompt.Prompter
	Inventory Inventory
	Prices    PriceSource
	Policy    policy.Collections
	Presets   Presets
	// Out receives the confirm summary and notices; nil discards them.
	Out      io.Writer
	Duration time.Duration
	Now      func() time.Time
}

// Wizard holds one listing session's handlers.
type Wizard struct {
	cfg     Config
	visits  map[flow.State]int
	nftsErr error
	nfts    []model.NFT
	loaded  bool
}

func New(cfg Config) *Wizard {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Wizard{cfg: cfg, visits: map[flow.State]int{}}
}

// Handlers maps every non-terminal state to its step.
func (w *Wizard) Handlers() map[flow.State]flow.Handler {
	return map[flow.State]flow.Handler{
		flow.StateSelectCollection:    w.step(flow.StateSelectCollection, w.selectCollection),
		flow.StateSelectNFT:           w.step(flow.StateSelectNFT, w.selectNFT),
		flow.StateSelectPricingMethod: w.step(flow.StateSelectPricingMethod, w.selectPricingMethod),
		flow.StateInputPricingValue:   w.step(flow.StateInputPricingValue, w.inputPricingValue),
		flow.StateConfirm:             w.step(flow.StateConfirm, w.confirm),
	}
}

type stepFunc func(ctx context.Context, data map[string]any, first bool) (flow.Outcome, error)

func (w *Wizard) step(state flow.State, fn stepFunc) flow.Handler {
	return flow.HandlerFunc(func(ctx context.Context, data map[string]any) (flow.Outcome, error) {
		first := w.visits[state] == 0
		w.visits[state]++
		outcome, err := fn(ctx, data, first)
		if err != nil {
			return promptOutcome(err)
		}
		return outcome, nil
	})
}

// promptOutcome turns prompt navigation errors into flow outcomes.
func promptOutcome(err error) (flow.Outcome, error) {
	switch {
	case errors.Is(err, prompt.ErrBack):
		return flow.Back(), nil
	case errors.Is(err, prompt.ErrAborted):
		return flow.Cancel(), nil
	default:
		return flow.Outcome{}, err
	}
}

func (w *Wizard) inventory(ctx context.Context) ([]model.NFT, error) {
	if !w.loaded {
		w.loaded = true
		if w.cfg.Inventory == nil {
			w.nftsErr = clierr.New(clierr.CodeInternal, "wizard has no inventory")
		} else {
			items, err := w.cfg.Inventory.NFTs(ctx)
			w.nfts, w.nftsErr = w.cfg.Policy.FilterNFTs(items), err
		}
	}
	return w.nfts, w.nftsErr
}

func (w *Wizard) selectCollection(ctx context.Context, _ map[string]any, first bool) (flow.Outcome, error) {
	items, err := w.inventory(ctx)
	if err != nil {
		return flow.Outcome{}, err
	}
	counts := map[string]int{}
	for _, item := range items {
		counts[item.Collection]++
	}
	if len(counts) == 0 {
		return flow.Outcome{}, clierr.New(clierr.CodeNotFound, "wallet holds no listable NFTs")
	}

	if first && w.cfg.Presets.Collection != "" {
		slug, err := id.ParseCollection(w.cfg.Presets.Collection)
		if err != nil {
			return flow.Outcome{}, err
		}
		if err := w.cfg.Policy.Check(slug); err != nil {
			return flow.Outcome{}, err
		}
		if counts[slug] == 0 {
			return flow.Outcome{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("wallet holds no NFTs from %s", slug))
		}
		return flow.Forward(flow.StateSelectNFT, map[string]any{KeyCollection: slug}), nil
	}
	if err := w.requirePrompt("--collection"); err != nil {
		return flow.Outcome{}, err
	}

	slugs := make([]string, 0, len(counts))
	for slug := range counts {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	options := make([]prompt.Option, 0, len(slugs))
	for _, slug := range slugs {
		options = append(options, prompt.Option{Label: fmt.Sprintf("%s (%d)", slug, counts[slug]), Value: slug})
	}
	choice, err := w.cfg.Prompt.Select(ctx, "Which collection?", options)
	if err != nil {
		return flow.Outcome{}, err
	}
	return flow.Forward(flow.StateSelectNFT, map[string]any{KeyCollection: choice}), nil
}

func (w *Wizard) selectNFT(ctx context.Context, data map[string]any, first bool) (flow.Outcome, error) {
	draft, err := DecodeDraft(data)
	if err != nil {
		return flow.Outcome{}, err
	}
	items, err := w.inventory(ctx)
	if err != nil {
		return flow.Outcome{}, err
	}
	owned := map[string]model.NFT{}
	order := []string{}
	for _, item := range items {
		if item.Collection != draft.Collection {
			continue
		}
		if _, dup := owned[item.TokenID]; !dup {
			order = append(order, item.TokenID)
		}
		owned[item.TokenID] = item
	}
	if len(owned) == 0 {
		return flow.Outcome{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("wallet holds no NFTs from %s", draft.Collection))
	}

	tokenID := ""
	if first && w.cfg.Presets.TokenID != "" {
		n, err := id.ParseTokenID(w.cfg.Presets.TokenID)
		if err != nil {
			return flow.Outcome{}, err
		}
		if _, ok := owned[n.String()]; !ok {
			return flow.Outcome{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("wallet does not hold %s #%s", draft.Collection, n.String()))
		}
		tokenID = n.String()
	} else {
		if err := w.requirePrompt("--token-id"); err != nil {
			return flow.Outcome{}, err
		}
		options := make([]prompt.Option, 0, len(order))
		for _, tid := range order {
			options = append(options, prompt.Option{Label: nftLabel(owned[tid]), Value: tid})
		}
		tokenID, err = w.cfg.Prompt.Select(ctx, "Which NFT?", options)
		if err != nil {
			return flow.Outcome{}, err
		}
	}
	item := owned[tokenID]
	return flow.Forward(flow.StateSelectPricingMethod, map[string]any{
		KeyTokenID:  item.TokenID,
		KeyContract: item.Contract,
		KeyName:     item.Name,
	}), nil
}

func (w *Wizard) selectPricingMethod(ctx context.Context, _ map[string]any, first bool) (flow.Outcome, error) {
	if first && w.cfg.Presets.Method != "" {
		m, err := ParseMethod(w.cfg.Presets.Method)
		if err != nil {
			return flow.Outcome{}, err
		}
		return flow.Forward(flow.StateInputPricingValue, map[string]any{KeyMethod: string(m)}), nil
	}
	if err := w.requirePrompt("--method"); err != nil {
		return flow.Outcome{}, err
	}
	choice, err := w.cfg.Prompt.Select(ctx, "How do you want to price it?", []prompt.Option{
		{Label: "Fixed price in ETH", Value: string(MethodFixed)},
		{Label: "Relative to the collection floor (%)", Value: string(MethodFloor)},
		{Label: "Relative to the last sale (%)", Value: string(MethodLastSale)},
	})
	if err != nil {
		return flow.Outcome{}, err
	}
	return flow.Forward(flow.StateInputPricingValue, map[string]any{KeyMethod: choice}), nil
}

func (w *Wizard) inputPricingValue(ctx context.Context, data map[string]any, first bool) (flow.Outcome, error) {
	draft, err := DecodeDraft(data)
	if err != nil {
		return flow.Outcome{}, err
	}
	method, err := ParseMethod(string(draft.Method))
	if err != nil {
		return flow.Outcome{}, err
	}

	var reference decimal.Decimal
	if method.Relative() {
		ref, err := w.referencePrice(ctx, draft.Collection, method)
		if err != nil {
			return flow.Outcome{}, err
		}
		if ref == nil {
			fmt.Fprintf(w.cfg.Out, "%s has no %s price; pick another method\n", draft.Collection, method)
			if w.cfg.Prompt == nil {
				return flow.Outcome{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("%s has no %s price", draft.Collection, method))
			}
			return flow.Back(), nil
		}
		reference = *ref
	}

	validate := func(raw string) error {
		_, err := resolvePrice(method, raw, reference)
		return err
	}
	raw := ""
	if first && w.cfg.Presets.Value != "" {
		raw = w.cfg.Presets.Value
		if err := validate(raw); err != nil {
			return flow.Outcome{}, err
		}
	} else {
		if err := w.requirePrompt("--value"); err != nil {
			return flow.Outcome{}, err
		}
		title, placeholder := "Price in ETH", "0.25"
		if method.Relative() {
			title = fmt.Sprintf("Percent offset from %s (%s ETH)", method, reference.String())
			placeholder = "-5"
		}
		raw, err = w.cfg.Prompt.Input(ctx, title, placeholder, validate)
		if err != nil {
			return flow.Outcome{}, err
		}
	}
	price, err := resolvePrice(method, raw, reference)
	if err != nil {
		return flow.Outcome{}, err
	}
	delta := map[string]any{
		KeyValue: strings.TrimSpace(raw),
		KeyPrice: price.String(),
	}
	if method.Relative() {
		delta[KeyReferencePrice] = reference.String()
	}
	return flow.Forward(flow.StateConfirm, delta), nil
}

func (w *Wizard) confirm(ctx context.Context, data map[string]any, first bool) (flow.Outcome, error) {
	draft, err := DecodeDraft(data)
	if err != nil {
		return flow.Outcome{}, err
	}
	if err := draft.Validate(); err != nil {
		return flow.Outcome{}, err
	}
	fmt.Fprintln(w.cfg.Out, RenderSummary(draft, w.cfg.Duration))

	done := map[string]any{KeyConfirmedAt: w.cfg.Now().UTC().Format(time.RFC3339)}
	if first && w.cfg.Presets.Yes {
		return flow.Forward(flow.StateDone, done), nil
	}
	if err := w.requirePrompt("--yes"); err != nil {
		return flow.Outcome{}, err
	}
	ok, err := w.cfg.Prompt.Confirm(ctx, "Post this listing?", "Choose \"Go back\" to change the price")
	if err != nil {
		return flow.Outcome{}, err
	}
	if !ok {
		return flow.Back(), nil
	}
	return flow.Forward(flow.StateDone, done), nil
}

func (w *Wizard) referencePrice(ctx context.Context, collection string, method Method) (*decimal.Decimal, error) {
	if w.cfg.Prices == nil {
		return nil, clierr.New(clierr.CodeInternal, "wizard has no price source")
	}
	var price *model.Price
	switch method {
	case MethodFloor:
		stats, err := w.cfg.Prices.CollectionStats(ctx, collection)
		if err != nil {
			return nil, err
		}
		price = stats.Floor
	case MethodLastSale:
		p, err := w.cfg.Prices.LastSale(ctx, collection)
		if err != nil {
			return nil, err
		}
		price = p
	}
	if price == nil {
		return nil, nil
	}
	d, err := id.PriceDecimal(*price)
	if err != nil {
		return nil, err
	}
	if !d.IsPositive() {
		return nil, nil
	}
	return &d, nil
}

// resolvePrice turns the user's value into an ETH price. Relative methods
// take a percent offset from reference, e.g. -5 lists 5% under the floor.
func resolvePrice(method Method, raw string, reference decimal.Decimal) (decimal.Decimal, error) {
	field := "price"
	if method.Relative() {
		field = "percent offset"
	}
	v, err := id.ParseDecimal(raw, field)
	if err != nil {
		return decimal.Zero, err
	}
	price := v
	if method.Relative() {
		if v.LessThanOrEqual(decimal.NewFromInt(-100)) {
			return decimal.Zero, clierr.New(clierr.CodeUsage, "percent offset must be greater than -100")
		}
		price = id.ApplyPercent(reference, v, id.EtherDecimals)
	}
	if !price.IsPositive() {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "price must be greater than zero")
	}
	if _, err := id.ToBaseUnits(price, id.EtherDecimals); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func (w *Wizard) requirePrompt(flag string) error {
	if w.cfg.Prompt == nil {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is required when not running interactively", flag))
	}
	return nil
}

func nftOf(d ListingDraft) model.NFT {
	return model.NFT{Collection: d.Collection, TokenID: d.TokenID, Contract: d.Contract, Name: d.Name}
}

func nftLabel(n model.NFT) string {
	if strings.TrimSpace(n.Name) != "" {
		return fmt.Sprintf("%s (#%s)", n.Name, n.TokenID)
	}
	return "#" + n.TokenID
}

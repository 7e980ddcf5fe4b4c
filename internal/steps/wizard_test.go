package steps

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/flow"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/policy"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
)

const azukiContract = "0xed5af388653567af2f388e6224dc7c4b3241c544"

type staticInventory []model.NFT

func (s staticInventory) NFTs(context.Context) ([]model.NFT, error) { return s, nil }

type staticPrices struct {
	floor    *model.Price
	lastSale *model.Price
}

func (p staticPrices) CollectionStats(_ context.Context, slug string) (model.CollectionStats, error) {
	return model.CollectionStats{Collection: slug, Floor: p.floor}, nil
}

func (p staticPrices) LastSale(context.Context, string) (*model.Price, error) { return p.lastSale, nil }

func eth(t *testing.T, amount string) *model.Price {
	t.Helper()
	d, err := id.ParseDecimal(amount, "amount")
	require.NoError(t, err)
	base, err := id.ToBaseUnits(d, id.EtherDecimals)
	require.NoError(t, err)
	p := id.NewPrice("ETH", base, id.EtherDecimals)
	return &p
}

func wallet() staticInventory {
	return staticInventory{
		{Collection: "azuki", TokenID: "7", Contract: azukiContract, Name: "Azuki #7"},
		{Collection: "azuki", TokenID: "9", Contract: azukiContract},
		{Collection: "pudgypenguins", TokenID: "1", Contract: "0xbd3531da5cf5857e7cfaa92426877b022e612cf8"},
	}
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func run(t *testing.T, cfg Config) (flow.Result, error) {
	t.Helper()
	if cfg.Inventory == nil {
		cfg.Inventory = wallet()
	}
	if cfg.Now == nil {
		cfg.Now = fixedNow
	}
	manager, err := flow.New()
	require.NoError(t, err)
	return flow.NewController(manager, New(cfg).Handlers()).Run(context.Background())
}

func TestWizardInteractiveFloorPricing(t *testing.T) {
	p := prompt.NewScripted(
		prompt.Answer{Value: "azuki"},
		prompt.Answer{Value: "7"},
		prompt.Answer{Value: "floor"},
		prompt.Answer{Value: "-10"},
		prompt.Answer{Yes: true},
	)
	var out bytes.Buffer
	res, err := run(t, Config{Prompt: p, Prices: staticPrices{floor: eth(t, "2")}, Out: &out, Duration: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.True(t, res.Completed)
	assert.Equal(t, flow.StateDone, res.State)

	draft, err := DecodeDraft(res.Context)
	require.NoError(t, err)
	require.NoError(t, draft.Validate())
	assert.Equal(t, "azuki", draft.Collection)
	assert.Equal(t, "7", draft.TokenID)
	assert.Equal(t, azukiContract, draft.Contract)
	assert.Equal(t, MethodFloor, draft.Method)
	assert.Equal(t, "1.8", draft.Price)
	assert.Equal(t, "2", draft.ReferencePrice)
	assert.Equal(t, "2026-03-01T12:00:00Z", draft.ConfirmedAt)

	wei, err := draft.PriceWei()
	require.NoError(t, err)
	assert.Equal(t, "1800000000000000000", wei.String())
	assert.Contains(t, out.String(), "Review listing")
	assert.Contains(t, out.String(), "7 days")
	assert.Zero(t, p.Remaining())
}

func TestWizardBackNavigationRestoresContext(t *testing.T) {
	p := prompt.NewScripted(
		prompt.Answer{Value: "azuki"},
		prompt.Answer{Value: "back"},
		prompt.Answer{Value: "pudgypenguins"},
		prompt.Answer{Value: "1"},
		prompt.Answer{Value: "fixed"},
		prompt.Answer{Value: "0.5"},
		prompt.Answer{Yes: false},
		prompt.Answer{Value: "0.6"},
		prompt.Answer{Yes: true},
	)
	res, err := run(t, Config{Prompt: p})
	require.NoError(t, err)
	require.True(t, res.Completed)

	draft, err := DecodeDraft(res.Context)
	require.NoError(t, err)
	assert.Equal(t, "pudgypenguins", draft.Collection)
	assert.Equal(t, "0.6", draft.Price)
	assert.Empty(t, draft.ReferencePrice)
	assert.Equal(t, []string{
		"Which collection?",
		"Which NFT?",
		"Which collection?",
		"Which NFT?",
		"How do you want to price it?",
		"Price in ETH",
		"Post this listing?",
		"Price in ETH",
		"Post this listing?",
	}, p.Asked)
}

func TestWizardPresetsRunWithoutPrompt(t *testing.T) {
	res, err := run(t, Config{Presets: Presets{
		Collection: "Azuki",
		TokenID:    "9",
		Method:     "fixed",
		Value:      "1.25",
		Yes:        true,
	}})
	require.NoError(t, err)
	require.True(t, res.Completed)
	assert.Equal(t, 5, res.Steps)

	draft, err := DecodeDraft(res.Context)
	require.NoError(t, err)
	assert.Equal(t, "9", draft.TokenID)
	assert.Equal(t, "1.25", draft.Price)
}

func TestWizardPresetsOnlyAnswerFirstVisit(t *testing.T) {
	p := prompt.NewScripted(
		prompt.Answer{Yes: false},
		prompt.Answer{Value: "2"},
		prompt.Answer{Yes: true},
	)
	res, err := run(t, Config{Prompt: p, Presets: Presets{Collection: "azuki", TokenID: "7", Method: "fixed", Value: "1"}})
	require.NoError(t, err)
	require.True(t, res.Completed)
	draft, err := DecodeDraft(res.Context)
	require.NoError(t, err)
	assert.Equal(t, "2", draft.Price)
	assert.Equal(t, []string{"Post this listing?", "Price in ETH", "Post this listing?"}, p.Asked)
}

func TestWizardAbortCancels(t *testing.T) {
	p := prompt.NewScripted(
		prompt.Answer{Value: "azuki"},
		prompt.Answer{Err: prompt.ErrAborted},
	)
	res, err := run(t, Config{Prompt: p})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, flow.StateCancelled, res.State)
	assert.Equal(t, "azuki", res.Context[KeyCollection])
}

func TestWizardInterruptedPromptIsAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	w := New(Config{Prompt: prompt.NewHuh(prompt.WithIO(strings.NewReader(""), &out)), Inventory: wallet(), Now: fixedNow})

	outcome, err := w.Handlers()[flow.StateSelectCollection].Handle(ctx, map[string]any{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, prompt.ErrAborted)
	assert.Equal(t, flow.Outcome{}, outcome)
}

func TestWizardBackAtFirstStepCancels(t *testing.T) {
	res, err := run(t, Config{Prompt: prompt.NewScripted(prompt.Answer{Value: "back"})})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
}

func TestWizardNonInteractiveNamesMissingFlag(t *testing.T) {
	res, err := run(t, Config{Presets: Presets{Collection: "azuki", TokenID: "7"}})
	require.Error(t, err)
	cerr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeUsage, cerr.Code)
	assert.Contains(t, cerr.Message, "--method")
	assert.Equal(t, flow.StateSelectPricingMethod, res.State, "a failing step must not move the flow")
}

func TestWizardMissingFloorGoesBackToMethod(t *testing.T) {
	p := prompt.NewScripted(
		prompt.Answer{Value: "floor"},
		prompt.Answer{Value: "fixed"},
		prompt.Answer{Value: "1"},
		prompt.Answer{Yes: true},
	)
	var out bytes.Buffer
	res, err := run(t, Config{Prompt: p, Prices: staticPrices{}, Out: &out, Presets: Presets{Collection: "azuki", TokenID: "7"}})
	require.NoError(t, err)
	require.True(t, res.Completed)
	assert.Contains(t, out.String(), "has no floor price")
	assert.Equal(t, "fixed", res.Context[KeyMethod])
}

func TestWizardLastSaleWithoutPromptFails(t *testing.T) {
	_, err := run(t, Config{Prices: staticPrices{}, Presets: Presets{Collection: "azuki", TokenID: "7", Method: "last-sale", Value: "5"}})
	cerr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeNotFound, cerr.Code)
}

func TestWizardPolicyBlocksCollection(t *testing.T) {
	_, err := run(t, Config{
		Policy:  policy.NewCollections(nil, []string{"azuki"}),
		Presets: Presets{Collection: "azuki"},
	})
	cerr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeBlocked, cerr.Code)
}

func TestWizardPolicyFiltersChoices(t *testing.T) {
	p := prompt.NewScripted(prompt.Answer{Value: "azuki"})
	_, err := run(t, Config{Prompt: p, Policy: policy.NewCollections([]string{"pudgypenguins"}, nil)})
	require.Error(t, err, "azuki is not offered when only pudgypenguins is allowed")
}

func TestWizardEmptyWallet(t *testing.T) {
	_, err := run(t, Config{Inventory: staticInventory{}, Prompt: prompt.NewScripted()})
	cerr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeNotFound, cerr.Code)
}

func TestWizardPresetTokenNotOwned(t *testing.T) {
	_, err := run(t, Config{Presets: Presets{Collection: "azuki", TokenID: "8"}})
	cerr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, clierr.CodeNotFound, cerr.Code)
}

func TestResolvePrice(t *testing.T) {
	ref, err := id.ParseDecimal("2", "ref")
	require.NoError(t, err)

	cases := []struct {
		method Method
		raw    string
		want   string
		fails  bool
	}{
		{MethodFixed, "0.25", "0.25", false},
		{MethodFixed, "0", "", true},
		{MethodFixed, "abc", "", true},
		{MethodFloor, "10", "2.2", false},
		{MethodFloor, "-100", "", true},
		{MethodLastSale, "-50", "1", false},
		{MethodFixed, "0.0000000000000000001", "", true},
	}
	for _, tc := range cases {
		got, err := resolvePrice(tc.method, tc.raw, ref)
		if tc.fails {
			assert.Error(t, err, "%s %s", tc.method, tc.raw)
			continue
		}
		require.NoError(t, err, "%s %s", tc.method, tc.raw)
		assert.Equal(t, tc.want, got.String())
	}
}

func TestDecodeDraftAcceptsJSONNumbers(t *testing.T) {
	draft, err := DecodeDraft(map[string]any{
		KeyCollection: "azuki",
		KeyTokenID:    float64(7),
		KeyMethod:     "fixed",
		KeyPrice:      "0.5",
		"unrelated":   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", draft.TokenID)
	assert.Error(t, draft.Validate(), "contract is missing")
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Last-Sale ")
	require.NoError(t, err)
	assert.Equal(t, MethodLastSale, m)
	assert.True(t, m.Relative())
	_, err = ParseMethod("auction")
	assert.Error(t, err)
}
